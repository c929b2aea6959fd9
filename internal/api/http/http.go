package http

import "github.com/lodgeon/keybridge/internal/auth"

type Config struct {
	Port        uint        `mapstructure:"port"`
	AdminAPIKey string      `mapstructure:"admin_api_key"`
	Auth        auth.Config `mapstructure:"auth"`
}
