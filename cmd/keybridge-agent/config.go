package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log    LogConfig
	Server ServerConfig
	Bridge BridgeConfig
	Worker WorkerConfig
}

type ServerConfig struct {
	URL     string `mapstructure:"url"`
	AgentID string `mapstructure:"agent_id"`
	Token   string `mapstructure:"token"`
}

type BridgeConfig struct {
	URL                 string `mapstructure:"url"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
}

type WorkerConfig struct {
	PollIntervalSeconds      int `mapstructure:"poll_interval_seconds"`
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
}

var config Config

func InitConfig() {
	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/keybridge-agent")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.token", "AGENT_TOKEN")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
