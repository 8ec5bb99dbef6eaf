package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/loqalabs/voicenav/internal/config"
	"github.com/loqalabs/voicenav/internal/runtime"
	cli "github.com/spf13/pflag"
)

var version = "0.1.0-dev"

func main() {
	configPath := cli.StringP("config", "c", "", "Path to configuration file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	showVersion := cli.BoolP("version", "v", false, "Print version and exit")
	cli.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	boot := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// VOICENAV_* overrides may live in the env file
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Warn("failed to load env file", slog.String("path", *envFile), slog.String("error", err.Error()))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := runtime.NewLogger(cfg.Telemetry, os.Stdout)
	slog.SetDefault(logger)

	rt := runtime.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
