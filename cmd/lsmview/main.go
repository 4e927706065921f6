package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	lsmhttp "lsmview/internal/http"
	"lsmview/pkg/metrics"
	"lsmview/pkg/session"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the YAML config")
		dataPath   = flag.String("data", "", "manifest dump to open, overrides data.path")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataPath != "" {
		cfg.Data.Path = *dataPath
	}
	initLogger(&cfg)

	mr := metrics.NewRegistry("lsmview")
	registry := session.NewRegistry(mr, cfg.Data.Strict)
	defer registry.Close()

	if cfg.Data.Path != "" {
		sess, err := registry.Load(cfg.Data.Path)
		if err != nil {
			// Dumps can still be uploaded through the API.
			slog.Error("failed to open manifest dump", "path", cfg.Data.Path, "error", err)
		} else {
			slog.Info("default session ready", "id", sess.ID(), "edits", sess.NumEdits())
		}
	}

	server := lsmhttp.NewServer(registry, lsmhttp.Options{
		Port:              cfg.Server.Port,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		PlaybackInterval:  cfg.Playback.Interval,
		PlaybackIncrement: cfg.Playback.Increment,
		Metrics:           mr,
	})
	if err := server.Start(); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		slog.Error("error stopping server", "error", err)
	}
	slog.Info("lsmview stopped")
}
