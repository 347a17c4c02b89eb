package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/cgint/voxmlx/internal/config"
	"github.com/cgint/voxmlx/internal/decode"
	"github.com/cgint/voxmlx/internal/metrics"
	"github.com/cgint/voxmlx/internal/model"
	"github.com/cgint/voxmlx/internal/server"
	"github.com/cgint/voxmlx/internal/worker"
)

const serviceName = "voxmlx-stt-worker"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the framed protocol, so logs go to stderr.
	logger := initLogger(cfg.Logging).With(slog.String("worker_id", uuid.NewString()))

	logger.Info("Worker starting",
		slog.String("service", serviceName),
		slog.String("config_path", *configPath),
		slog.String("model_path", cfg.Model.Path),
		slog.Float64("temperature", cfg.Model.Temperature),
		slog.Float64("partial_interval", cfg.Transcription.PartialInterval),
		slog.Int("min_chunks_for_partial", cfg.Transcription.MinChunksForPartial),
	)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	mdl, err := model.NewFake(model.FakeConfig{})
	if err != nil {
		logger.Error("Failed to initialize model backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	trans := worker.NewModelTranscriber(mdl, model.FakeTokenizer{}, decode.Options{
		Temperature: cfg.Model.Temperature,
		Seed:        cfg.Model.Seed,
	})

	w := worker.NewSTTWorker(os.Stdin, os.Stdout, trans, cfg, logger, appMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg, logger, w, registry)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(runCtx)
	})
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-runCtx.Done():
		}
		return nil
	})

	err = g.Wait()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if stopErr := httpServer.Stop(shutdownCtx); stopErr != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", stopErr.Error()))
		}
	}

	if err != nil {
		logger.Error("Worker exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

// initLogger creates the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
