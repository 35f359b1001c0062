package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spotlightworks/spotlight/spotlight"
	"github.com/spotlightworks/spotlight/spotlight/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := spotlight.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	customHandler := logger.NewHandler(cfg.Log.Level)
	slog.SetDefault(slog.New(customHandler))

	logger.LogSystem("Starting Spotlight economy service",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app := spotlight.New(cfg, version)

	setupStart := time.Now()
	if err := app.Setup(ctx); err != nil {
		logger.LogError("Failed to set up service", err,
			slog.Duration("attempted_for", time.Since(setupStart)))
		os.Exit(-1)
	}
	logger.LogSystem("Service components ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(setupStart)))

	go func() {
		if err := app.Start(); err != nil {
			logger.LogError("Server stopped unexpectedly", err)
		}
	}()
	logger.LogSystem("Listening", slog.String("addr", cfg.Server.Addr))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-s

	logger.LogSystem("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.LogError("Shutdown error", err)
	}

	logger.LogSystem("Shutdown complete")
}
