// Package main is the entry point for the parley chat server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/densefog/parley/internal/api"
	"github.com/densefog/parley/internal/bedrock"
	"github.com/densefog/parley/internal/config"
	"github.com/densefog/parley/internal/dispatch"
	"github.com/densefog/parley/internal/memory"
	"github.com/densefog/parley/internal/metrics"
	"github.com/densefog/parley/internal/observability"
	"github.com/densefog/parley/internal/persona"
	"github.com/densefog/parley/internal/session"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting parley",
		"version", version,
		"model", cfg.Bedrock.ModelID,
		"regions", cfg.Bedrock.Regions,
		"storage", cfg.Storage.Mode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}()

	personaProvider, err := persona.New(ctx, cfg.Persona.Text, cfg.Persona.File, logger)
	if err != nil {
		logger.Error("failed to initialize persona", "error", err)
		os.Exit(1)
	}
	if closer, ok := personaProvider.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	store, err := memory.New(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize conversation store", "error", err)
		os.Exit(1)
	}
	logger.Info("conversation store ready", "backend", store.Backend())

	clients, err := bedrock.NewClients(ctx, cfg.Bedrock.Regions, cfg.Bedrock.ModelID, cfg.Bedrock.RequestTimeout)
	if err != nil {
		logger.Error("failed to initialize bedrock clients", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.NewFromClients(clients, logger)
	chat := session.New(store, dispatcher, personaProvider, logger)
	handler := api.NewHandler(chat, dispatcher, cfg.Storage.Mode, cfg.Bedrock.ModelID, logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	// Middleware, applied outermost-first: CORS, request id, metrics, rate limit.
	var httpHandler http.Handler = mux
	if cfg.RateLimit.Enabled {
		limiter := api.NewClientRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
		httpHandler = limiter.Middleware(httpHandler)
		logger.Info("rate limiting enabled",
			"requests_per_minute", cfg.RateLimit.RequestsPerMinute,
			"burst", cfg.RateLimit.BurstSize,
		)
	}
	httpHandler = metrics.Middleware(httpHandler)
	httpHandler = observability.RequestIDMiddleware(httpHandler)
	httpHandler = corsMiddleware(cfg.CORS, httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
