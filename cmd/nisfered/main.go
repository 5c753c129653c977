// Package main is the entry point for the nisfered notification daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmylchreest/nisfere/internal/config"
	"github.com/jmylchreest/nisfere/internal/daemon"
)

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to nisfered.toml (default $XDG_CONFIG_HOME/nisfere/nisfered.toml)")
	monitorMode := flag.Bool("monitor", false, "Run in monitor mode (passive, works alongside another notification daemon)")
	verbose := flag.Bool("verbose", false, "Log at debug level regardless of config")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("nisfered version", version)
		os.Exit(0)
	}

	levelVar := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelVar,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, *monitorMode, *verbose, levelVar, logger); err != nil {
		logger.Error("nisfered failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, monitorMode, verbose bool, levelVar *slog.LevelVar, logger *slog.Logger) error {
	if configPath == "" {
		configPath = config.DaemonConfigPath()
	}

	cfg, err := config.LoadDaemonConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if monitorMode {
		cfg.Source.Mode = string(config.SourceModeMonitor)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger.Info("starting nisfered", "version", version, "config", configPath, "mode", cfg.Source.Mode)

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: configPath,
		LevelVar:   levelVar,
		Logger:     logger,
		Version:    version,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
