// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the relay's environment configuration.
type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string // optional; empty disables presence tracking
	JWTSecret   string

	MaxRequestsPerMinute int
	MaxPayloadBytes      int
	MaxBatchSize         int
	CleanupDays          int

	WSPingInterval time.Duration
	WSTimeout      time.Duration

	SLATargetUptime float64 // percentage; 0 disables alerting
	SLAAlertWebhook string

	RequestTimeout time.Duration
}

// LoadConfig reads and validates the environment.
func LoadConfig() (*Config, error) {
	maxRequests, err := getIntEnv("MAX_REQUESTS_PER_MINUTE", 300)
	if err != nil {
		return nil, err
	}
	maxPayloadMB, err := getIntEnv("MAX_PAYLOAD_SIZE_MB", 1)
	if err != nil {
		return nil, err
	}
	maxBatch, err := getIntEnv("MAX_BATCH_SIZE", 500)
	if err != nil {
		return nil, err
	}
	cleanupDays, err := getIntEnv("DB_CLEANUP_DAYS", 30)
	if err != nil {
		return nil, err
	}
	pingMs, err := getIntEnv("WS_PING_INTERVAL_MS", 30000)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := getIntEnv("WS_TIMEOUT_MS", 2*pingMs)
	if err != nil {
		return nil, err
	}
	requestTimeoutMs, err := getIntEnv("REQUEST_TIMEOUT_MS", 30000)
	if err != nil {
		return nil, err
	}

	slaTarget := 0.0
	if v := os.Getenv("SLA_TARGET_UPTIME"); v != "" {
		slaTarget, err = strconv.ParseFloat(v, 64)
		if err != nil || slaTarget < 0 || slaTarget > 100 {
			return nil, errors.New("SLA_TARGET_UPTIME must be a percentage between 0 and 100")
		}
	}

	cfg := &Config{
		ServerPort:  getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		MaxRequestsPerMinute: maxRequests,
		MaxPayloadBytes:      maxPayloadMB * 1024 * 1024,
		MaxBatchSize:         maxBatch,
		CleanupDays:          cleanupDays,

		WSPingInterval: time.Duration(pingMs) * time.Millisecond,
		WSTimeout:      time.Duration(timeoutMs) * time.Millisecond,

		SLATargetUptime: slaTarget,
		SLAAlertWebhook: os.Getenv("SLA_ALERT_WEBHOOK"),

		RequestTimeout: time.Duration(requestTimeoutMs) * time.Millisecond,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.WSTimeout <= cfg.WSPingInterval {
		return nil, errors.New("WS_TIMEOUT_MS must exceed WS_PING_INTERVAL_MS")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
