package main

import (
	"log/slog"
	"os"

	"lsmview/pkg/config"
)

// initConfig loads the YAML config at path, falling back to config.Default()
// when the file does not exist.
func initConfig(path string) (config.Config, error) {
	return config.Load(path)
}

// initLogger installs the global slog.Logger (JSON or text).
func initLogger(cfg *config.Config) {
	level, _ := cfg.Logger.SlogLevel()
	opts := &slog.HandlerOptions{AddSource: true, Level: level}

	var handler slog.Handler
	if cfg.Logger.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", level.String(), "json", cfg.Logger.JSON)
}
