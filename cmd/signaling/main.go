package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/consult-signaling/config"
	"github.com/mossy-p/consult-signaling/internal/handlers"
	"github.com/mossy-p/consult-signaling/internal/metrics"
	"github.com/mossy-p/consult-signaling/internal/redis"
	"github.com/mossy-p/consult-signaling/internal/relay"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	for _, warning := range cfg.Validate() {
		logger.Warn("config", "warning", warning)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if !cfg.AuthEnabled() {
		logger.Warn("JWT_SECRET not set, signaling endpoints are unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	opts := relay.Options{
		Metrics:        m,
		Logger:         logger.With("component", "relay"),
		ExclusiveRooms: cfg.ExclusiveRooms,
	}

	var counter handlers.PresenceCounter
	if cfg.Redis.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		store, err := redis.Connect(connectCtx, cfg.Redis)
		cancel()
		if err != nil {
			logger.Error("failed to connect to Redis", "addr", cfg.Redis.Addr(), "error", err)
			os.Exit(1)
		}
		defer store.Close()

		logger.Info("Redis presence mirror enabled", "addr", cfg.Redis.Addr())
		opts.Presence = store
		counter = store
	}

	r := relay.New(opts)
	relayDone := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(relayDone)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(cfg, r, counter, m, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting signaling server", "port", cfg.Port, "exclusive_rooms", cfg.ExclusiveRooms)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	<-relayDone
}
