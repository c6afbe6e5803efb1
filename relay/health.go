// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	sampleRetention = 24 * time.Hour
	slaCheckPeriod  = time.Minute
)

type slaSample struct {
	at       time.Time
	duration time.Duration
	success  bool
	endpoint string
}

// Monitor keeps a rolling in-memory window of request samples and
// drives outbound SLA alerting. Samples are retained just long enough
// for the 24h reporting window, then discarded.
type Monitor struct {
	mu      sync.Mutex
	samples []slaSample

	startedAt time.Time
	now       func() time.Time

	targetUptime float64 // percentage, e.g. 99.5; 0 disables alerting
	webhookURL   string
	httpClient   *http.Client
	breached     bool

	logger *slog.Logger
}

// SLASnapshot is the aggregate for one reporting period.
type SLASnapshot struct {
	UptimePct      float64
	AvgLatencyMs   float64
	P50Ms          float64
	P95Ms          float64
	P99Ms          float64
	TotalRequests  int64
	FailedRequests int64
}

// NewMonitor wires the alert sink; empty webhookURL or zero target
// disables CheckSLA alerts while snapshots keep working.
func NewMonitor(targetUptime float64, webhookURL string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		startedAt:    time.Now(),
		now:          time.Now,
		targetUptime: targetUptime,
		webhookURL:   webhookURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
	}
}

// RecordSample appends one request observation and drops samples past
// the retention horizon.
func (m *Monitor) RecordSample(endpoint string, duration time.Duration, success bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, slaSample{
		at:       now,
		duration: duration,
		success:  success,
		endpoint: endpoint,
	})

	cutoff := now.Add(-sampleRetention)
	firstLive := 0
	for firstLive < len(m.samples) && m.samples[firstLive].at.Before(cutoff) {
		firstLive++
	}
	if firstLive > 0 {
		m.samples = append(m.samples[:0:0], m.samples[firstLive:]...)
	}
}

// Snapshot aggregates the samples of the trailing period. An empty
// window reports 100% uptime, the relay's steady state when idle.
func (m *Monitor) Snapshot(period time.Duration) SLASnapshot {
	if period <= 0 || period > sampleRetention {
		period = sampleRetention
	}
	cutoff := m.now().Add(-period)

	m.mu.Lock()
	durations := make([]time.Duration, 0, len(m.samples))
	var total, failed int64
	var sum time.Duration
	for i := range m.samples {
		s := &m.samples[i]
		if s.at.Before(cutoff) {
			continue
		}
		total++
		if !s.success {
			failed++
		}
		durations = append(durations, s.duration)
		sum += s.duration
	}
	m.mu.Unlock()

	snap := SLASnapshot{
		UptimePct:      100.0,
		TotalRequests:  total,
		FailedRequests: failed,
	}
	if total == 0 {
		return snap
	}

	snap.UptimePct = float64(total-failed) / float64(total) * 100.0
	snap.AvgLatencyMs = float64(sum.Milliseconds()) / float64(total)

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	snap.P50Ms = percentileMs(durations, 50)
	snap.P95Ms = percentileMs(durations, 95)
	snap.P99Ms = percentileMs(durations, 99)
	return snap
}

// percentileMs expects sorted input.
func percentileMs(sorted []time.Duration, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p*len(sorted) + 99) / 100
	if idx < 1 {
		idx = 1
	}
	return float64(sorted[idx-1]) / float64(time.Millisecond)
}

// UptimeSeconds is process uptime for the health endpoint.
func (m *Monitor) UptimeSeconds() int64 {
	return int64(m.now().Sub(m.startedAt).Seconds())
}

// CheckSLA evaluates current uptime against the target and fires the
// alert webhook exactly once per breach episode: the latch holds while
// the breach persists and resets on recovery.
func (m *Monitor) CheckSLA(ctx context.Context) {
	if m.targetUptime <= 0 || m.webhookURL == "" {
		return
	}

	snap := m.Snapshot(sampleRetention)

	m.mu.Lock()
	inBreach := snap.UptimePct < m.targetUptime && snap.TotalRequests > 0
	fire := inBreach && !m.breached
	recovered := !inBreach && m.breached
	m.breached = inBreach
	m.mu.Unlock()

	if recovered {
		m.logger.Info("SLA recovered", "uptime_pct", snap.UptimePct, "target", m.targetUptime)
	}
	if !fire {
		return
	}

	m.logger.Warn("SLA breach detected",
		"uptime_pct", snap.UptimePct, "target", m.targetUptime,
		"total", snap.TotalRequests, "failed", snap.FailedRequests)

	body, err := json.Marshal(map[string]any{
		"event":             "sla_breach",
		"uptime_percentage": snap.UptimePct,
		"target":            m.targetUptime,
		"total_requests":    snap.TotalRequests,
		"failed_requests":   snap.FailedRequests,
		"at":                m.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		m.logger.Error("Failed to marshal SLA alert", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.webhookURL, bytes.NewReader(body))
	if err != nil {
		m.logger.Error("Failed to build SLA alert request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Error("Failed to deliver SLA alert", "error", err, "webhook", m.webhookURL)
		return
	}
	resp.Body.Close()
	m.logger.Info("SLA alert delivered", "status", resp.StatusCode)
}

// Run evaluates the SLA once a minute until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(slaCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckSLA(ctx)
		}
	}
}

// Middleware observes every request/response pair. Failures are server
// faults (5xx); client errors and rate-limit rejections count as served.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := m.now()
		next.ServeHTTP(ww, r)
		m.RecordSample(r.URL.Path, m.now().Sub(start), ww.Status() < http.StatusInternalServerError)
	})
}
