// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/relay")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 300, cfg.MaxRequestsPerMinute)
	assert.Equal(t, 1024*1024, cfg.MaxPayloadBytes)
	assert.Equal(t, 500, cfg.MaxBatchSize)
	assert.Equal(t, 30, cfg.CleanupDays)
	assert.Equal(t, 30*time.Second, cfg.WSPingInterval)
	assert.Equal(t, time.Minute, cfg.WSTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Zero(t, cfg.SLATargetUptime)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MAX_REQUESTS_PER_MINUTE", "60")
	t.Setenv("MAX_PAYLOAD_SIZE_MB", "4")
	t.Setenv("MAX_BATCH_SIZE", "100")
	t.Setenv("DB_CLEANUP_DAYS", "7")
	t.Setenv("WS_PING_INTERVAL_MS", "5000")
	t.Setenv("WS_TIMEOUT_MS", "12000")
	t.Setenv("SLA_TARGET_UPTIME", "99.5")
	t.Setenv("SLA_ALERT_WEBHOOK", "https://hooks.example.com/sla")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 60, cfg.MaxRequestsPerMinute)
	assert.Equal(t, 4*1024*1024, cfg.MaxPayloadBytes)
	assert.Equal(t, 100, cfg.MaxBatchSize)
	assert.Equal(t, 7, cfg.CleanupDays)
	assert.Equal(t, 5*time.Second, cfg.WSPingInterval)
	assert.Equal(t, 12*time.Second, cfg.WSTimeout)
	assert.Equal(t, 99.5, cfg.SLATargetUptime)
	assert.Equal(t, "https://hooks.example.com/sla", cfg.SLAAlertWebhook)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Run("requires database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("JWT_SECRET", "test-secret")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("requires jwt secret", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/relay")
		t.Setenv("JWT_SECRET", "")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("rejects non numeric limit", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("MAX_BATCH_SIZE", "lots")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("rejects sla target above 100", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SLA_TARGET_UPTIME", "101")
		_, err := LoadConfig()
		require.Error(t, err)
	})

	t.Run("rejects ws timeout at or below ping interval", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("WS_PING_INTERVAL_MS", "10000")
		t.Setenv("WS_TIMEOUT_MS", "10000")
		_, err := LoadConfig()
		require.Error(t, err)
	})
}
