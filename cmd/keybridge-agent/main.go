package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lodgeon/keybridge/internal/agent"
	"github.com/lodgeon/keybridge/internal/bridge"
	"github.com/lodgeon/keybridge/internal/cloudapi"
	"github.com/lodgeon/keybridge/internal/monitor"
)

var AppVersion string

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "enroll":
			if err := runEnroll(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			return
		case "program":
			if err := runProgram(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			return
		}
	}

	InitConfig()

	slog.Info("Keybridge Agent", "version", AppVersion)

	if config.Server.AgentID == "" || config.Server.Token == "" {
		slog.Error("Agent is not enrolled; run 'keybridge-agent enroll' first")
		os.Exit(1)
	}

	bridgeClient := bridge.NewClient(config.Bridge.URL)
	cloudClient := cloudapi.NewClient(config.Server.URL, config.Server.AgentID, config.Server.Token)
	mon := monitor.New(bridgeClient, time.Duration(config.Bridge.PollIntervalSeconds)*time.Second)
	worker := agent.NewWorker(cloudClient, bridgeClient, mon, agent.WorkerConfig{
		PollInterval:      time.Duration(config.Worker.PollIntervalSeconds) * time.Second,
		HeartbeatInterval: time.Duration(config.Worker.HeartbeatIntervalSeconds) * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mon.Run(ctx)
	go worker.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	slog.Info("Received shutdown signal", "signal", sig)

	cancel()
	slog.Info("Shutdown complete")
}
