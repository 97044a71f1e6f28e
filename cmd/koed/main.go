// Command koed is the voice command daemon.
//
// It owns the durable state (voice profile, command list, settings,
// detection history), accepts recognizer transcripts and audio over a
// WebSocket feed, runs the detection pipeline, and fans confirmed
// commands out to the configured sinks (history, shell hooks, NATS,
// metrics).
//
// Configuration is layered: built-in defaults, then the YAML file
// named by -config, then KOE_* environment variables. A .env file in
// the working directory is loaded first when present.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/koelabs/koe/pkg/config"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("koed %s\n", version)
		return
	}

	_ = godotenv.Load()

	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "koed: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)
	logger.Info("starting koed", "version", version, "data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := d.run(ctx); err != nil {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
