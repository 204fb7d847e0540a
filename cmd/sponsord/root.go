package main

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamtip/sponsord/internal/config"
	"github.com/streamtip/sponsord/pkg/logger"
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "sponsord",
	Short: "Sponsored donation service: fee-sponsored transfers and donation event fan-out",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(keygenCmd)
}

func loadConfig() (config.Config, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})

	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	logger.Info("Config loaded", "path", configPath, "environment", cfg.Environment)
	return cfg, nil
}
