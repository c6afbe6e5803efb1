// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorSnapshot(t *testing.T) {
	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(0, "", testLogger())
	m.now = func() time.Time { return current }

	t.Run("empty window reports full uptime", func(t *testing.T) {
		snap := m.Snapshot(time.Hour)
		assert.Equal(t, 100.0, snap.UptimePct)
		assert.Zero(t, snap.TotalRequests)
		assert.Zero(t, snap.P99Ms)
	})

	// 100 samples at 1ms..100ms, every 10th one failed.
	for i := 1; i <= 100; i++ {
		m.RecordSample("/sync/push", time.Duration(i)*time.Millisecond, i%10 != 0)
	}

	snap := m.Snapshot(time.Hour)
	assert.Equal(t, int64(100), snap.TotalRequests)
	assert.Equal(t, int64(10), snap.FailedRequests)
	assert.Equal(t, 90.0, snap.UptimePct)
	assert.Equal(t, 50.5, snap.AvgLatencyMs)
	assert.Equal(t, 50.0, snap.P50Ms)
	assert.Equal(t, 95.0, snap.P95Ms)
	assert.Equal(t, 99.0, snap.P99Ms)

	t.Run("period filters old samples", func(t *testing.T) {
		current = current.Add(2 * time.Hour)
		m.RecordSample("/sync/pull", 10*time.Millisecond, true)

		snap := m.Snapshot(time.Hour)
		assert.Equal(t, int64(1), snap.TotalRequests)
		assert.Equal(t, 100.0, snap.UptimePct)
		assert.Equal(t, 10.0, snap.P99Ms)
	})
}

func TestMonitorSampleRetention(t *testing.T) {
	current := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	m := NewMonitor(0, "", testLogger())
	m.now = func() time.Time { return current }

	m.RecordSample("/sync/push", time.Millisecond, true)
	current = current.Add(25 * time.Hour)
	m.RecordSample("/sync/push", time.Millisecond, false)

	// The day-old success fell off; only the fresh failure remains.
	snap := m.Snapshot(0)
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
}

func TestMonitorCheckSLAFiresOncePerBreach(t *testing.T) {
	var hits atomic.Int64
	var lastBody atomic.Value
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		lastBody.Store(body)
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(99.5, webhook.URL, testLogger())
	m.now = func() time.Time { return current }

	ctx := context.Background()

	// Healthy: no alert.
	for i := 0; i < 100; i++ {
		m.RecordSample("/sync/push", time.Millisecond, true)
	}
	m.CheckSLA(ctx)
	assert.Equal(t, int64(0), hits.Load())

	// Push uptime below target: one alert, then the latch holds.
	for i := 0; i < 10; i++ {
		m.RecordSample("/sync/push", time.Millisecond, false)
	}
	m.CheckSLA(ctx)
	m.CheckSLA(ctx)
	m.CheckSLA(ctx)
	require.Equal(t, int64(1), hits.Load())

	body := lastBody.Load().(map[string]any)
	assert.Equal(t, "sla_breach", body["event"])
	assert.InDelta(t, 100.0*100.0/110.0, body["uptime_percentage"].(float64), 0.01)

	// Recovery resets the latch; a second breach alerts again.
	current = current.Add(25 * time.Hour)
	for i := 0; i < 100; i++ {
		m.RecordSample("/sync/push", time.Millisecond, true)
	}
	m.CheckSLA(ctx)
	assert.Equal(t, int64(1), hits.Load())

	for i := 0; i < 10; i++ {
		m.RecordSample("/sync/push", time.Millisecond, false)
	}
	m.CheckSLA(ctx)
	assert.Equal(t, int64(2), hits.Load())
}

func TestMonitorCheckSLADisabledWithoutWebhook(t *testing.T) {
	m := NewMonitor(99.9, "", testLogger())
	m.RecordSample("/sync/push", time.Millisecond, false)
	// Must not panic or attempt delivery.
	m.CheckSLA(context.Background())
}

func TestMonitorMiddleware(t *testing.T) {
	m := NewMonitor(0, "", testLogger())

	okHandler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest) // client errors count as served
	}))
	failHandler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/sync/push", nil)
	okHandler.ServeHTTP(httptest.NewRecorder(), req)
	failHandler.ServeHTTP(httptest.NewRecorder(), req)

	snap := m.Snapshot(time.Hour)
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.FailedRequests)
}
