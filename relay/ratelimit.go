// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter does per-IP admission control with a fixed rolling
// window. State is in-memory only: a restart resets all counters, an
// explicit trade-off keeping the hot path free of I/O (this is a
// defense mechanism, not a ledger).
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket

	limit  int
	window time.Duration
	now    func() time.Time

	logger *slog.Logger
}

type rateBucket struct {
	windowStart time.Time
	count       int
}

// NewRateLimiter allows limit requests per source IP per window.
func NewRateLimiter(limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		buckets: make(map[string]*rateBucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
		logger:  logger,
	}
}

// Admit reports whether a request from ip may proceed. When rejected,
// retryAfter is the time left in the current window.
func (rl *RateLimiter) Admit(ip string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok || now.Sub(b.windowStart) >= rl.window {
		rl.buckets[ip] = &rateBucket{windowStart: now, count: 1}
		rl.maybeEvictLocked(now)
		return true, 0
	}

	if b.count >= rl.limit {
		return false, b.windowStart.Add(rl.window).Sub(now)
	}
	b.count++
	return true, 0
}

// maybeEvictLocked drops expired buckets once the table gets large so
// one-off IPs don't accumulate forever.
func (rl *RateLimiter) maybeEvictLocked(now time.Time) {
	const evictThreshold = 10000
	if len(rl.buckets) < evictThreshold {
		return
	}
	for ip, b := range rl.buckets {
		if now.Sub(b.windowStart) >= rl.window {
			delete(rl.buckets, ip)
		}
	}
}

// Middleware enforces admission in front of every handler, answering
// 429 with a positive Retry-After on rejection.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, retryAfter := rl.Admit(ip)
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(ErrorResponse{
				Error:     KindRateLimited,
				Message:   "rate limit exceeded, retry later",
				Retryable: true,
			})
			rl.logger.Debug("Request rate limited", "ip", ip, "retry_after_s", seconds)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the source address, honoring the first hop of
// X-Forwarded-For when a proxy sits in front of the relay.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
