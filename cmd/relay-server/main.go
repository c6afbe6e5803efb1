// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BeTrashMonster/graceful-books-sub014/internal/config"
	"github.com/BeTrashMonster/graceful-books-sub014/internal/database"
	"github.com/BeTrashMonster/graceful-books-sub014/relay"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	limits := relay.Limits{
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		MaxBatchSize:    cfg.MaxBatchSize,
	}
	store, err := relay.NewPostgresStore(ctx, pool, limits, logger)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}

	// Presence is optional: without Redis the relay runs the same,
	// /devices just omits live status.
	var presenceTracker relay.PresenceTracker
	var presenceLister relay.PresenceLister
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("Failed to create redis client", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		presence := relay.NewRedisPresence(redisClient)
		presenceTracker = presence
		presenceLister = presence
	}

	hub := relay.NewHub(cfg.WSPingInterval, cfg.WSTimeout, presenceTracker, logger)
	monitor := relay.NewMonitor(cfg.SLATargetUptime, cfg.SLAAlertWebhook, logger)
	limiter := relay.NewRateLimiter(cfg.MaxRequestsPerMinute, time.Minute, logger)

	service := relay.NewSyncService(store, hub, relay.ServiceConfig{
		Limits:      limits,
		ExcludeSelf: true,
	}, logger)

	jwtAuth := relay.NewJWTAuth(cfg.JWTSecret)
	handlers := relay.NewHandlers(service, store, jwtAuth, hub, monitor, presenceLister, cfg.RequestTimeout, logger)

	pruner := relay.NewPruner(store, cfg.CleanupDays, logger)
	go pruner.Run(ctx)
	go monitor.Run(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handlers.Routes(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down relay")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", "error", err)
		}
		hub.CloseAll()
		cancel()
	}()

	logger.Info("Sync relay listening",
		"port", cfg.ServerPort,
		"protocol_version", relay.ProtocolVersion,
		"max_requests_per_minute", cfg.MaxRequestsPerMinute,
		"retention_days", cfg.CleanupDays)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	logger.Info("Relay stopped gracefully")
}
