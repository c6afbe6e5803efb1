// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/BeTrashMonster/graceful-books-sub014/internal/auth"
)

// PresenceLister resolves live presence for the /devices endpoint.
// *RedisPresence satisfies it; nil disables presence reporting.
type PresenceLister interface {
	Online(ctx context.Context, scope string, deviceIDs []string) (map[string]bool, error)
}

// Handlers provides the HTTP surface of the relay.
type Handlers struct {
	service       *SyncService
	store         Store
	authenticator ClientAuthenticator
	hub           *Hub
	monitor       *Monitor
	presence      PresenceLister

	requestTimeout time.Duration
	upgrader       websocket.Upgrader
	logger         *slog.Logger
}

func NewHandlers(
	service *SyncService,
	store Store,
	authenticator ClientAuthenticator,
	hub *Hub,
	monitor *Monitor,
	presence PresenceLister,
	requestTimeout time.Duration,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Handlers{
		service:        service,
		store:          store,
		authenticator:  authenticator,
		hub:            hub,
		monitor:        monitor,
		presence:       presence,
		requestTimeout: requestTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The payload is end-to-end encrypted; cross-origin reads
			// reveal nothing, so browser clients are not restricted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Routes assembles the router. The SLA monitor observes every request
// pair system-wide, so its middleware wraps even rate-limited ones.
func (h *Handlers) Routes(limiter *RateLimiter) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(h.monitor.Middleware)
	r.Use(limiter.Middleware)

	r.Get("/health", h.HandleHealth)
	r.Get("/version", h.HandleVersion)
	r.Get("/metrics/sla", h.HandleSLA)

	r.Group(func(r chi.Router) {
		if ja, ok := h.authenticator.(*JWTAuth); ok {
			r.Use(ja.Middleware)
		}
		r.Post("/sync/push", h.HandlePush)
		r.Post("/sync/pull", h.HandlePull)
		r.Get("/devices", h.HandleDevices)
		r.Get("/ws", h.HandleWS)
	})

	return r
}

// identity resolves company scope and device id, preferring the values
// the auth middleware already placed in the context.
func (h *Handlers) identity(r *http.Request) (scope, deviceID string, err error) {
	if s, ok := auth.GetCompanyScope(r.Context()); ok {
		scope = s
	} else if scope, err = h.authenticator.GetCompanyScope(r); err != nil {
		return "", "", err
	}
	if d, ok := auth.GetDeviceID(r.Context()); ok {
		deviceID = d
	} else if deviceID, err = h.authenticator.GetDeviceID(r); err != nil {
		return "", "", err
	}
	return scope, deviceID, nil
}

// HandlePush processes POST /sync/push.
func (h *Handlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	scope, deviceID, err := h.identity(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, KindUnauthorized, err.Error(), false)
		return
	}

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, KindValidation, "failed to parse push request", false)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.service.Push(ctx, scope, deviceID, &req)
	if err != nil {
		h.writeSyncError(w, err, deviceID)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandlePull processes POST /sync/pull.
func (h *Handlers) HandlePull(w http.ResponseWriter, r *http.Request) {
	scope, deviceID, err := h.identity(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, KindUnauthorized, err.Error(), false)
		return
	}

	var req PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, KindValidation, "failed to parse pull request", false)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.service.Pull(ctx, scope, deviceID, &req)
	if err != nil {
		h.writeSyncError(w, err, deviceID)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleWS upgrades GET /ws and subscribes the device for change hints.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	scope, deviceID, err := h.identity(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, KindUnauthorized, err.Error(), false)
		return
	}
	// device_id query param, when present, must match the token.
	if q := r.URL.Query().Get("device_id"); q != "" && q != deviceID {
		h.writeError(w, http.StatusBadRequest, KindValidation, "device_id does not match token", false)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WS upgrade failed", "error", err, "device", deviceID)
		return
	}
	h.hub.Register(scope, deviceID, conn)
}

// HandleDevices lists the device registry with optional live presence.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	scope, _, err := h.identity(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, KindUnauthorized, err.Error(), false)
		return
	}

	devices, err := h.service.Devices(r.Context(), scope)
	if err != nil {
		h.writeSyncError(w, err, "")
		return
	}

	infos := make([]DeviceInfo, len(devices))
	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.DeviceID
		infos[i] = DeviceInfo{
			DeviceID:   d.DeviceID,
			FirstSeen:  d.FirstSeen,
			LastSeen:   d.LastSeen,
			LastAckSeq: d.LastAckSeq,
		}
	}

	if h.presence != nil {
		online, perr := h.presence.Online(r.Context(), scope, ids)
		if perr != nil {
			h.logger.Warn("Presence lookup failed", "error", perr, "scope", scope)
		} else {
			for i := range infos {
				if online[infos[i].DeviceID] {
					infos[i].Presence = "online"
				} else {
					infos[i].Presence = "offline"
				}
			}
		}
	}

	h.writeJSON(w, http.StatusOK, infos)
}

// HandleHealth reports storage reachability; the endpoint itself stays
// cheap so liveness checks see sub-10ms responses when the database is healthy.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: h.monitor.UptimeSeconds(),
	}

	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "error"
		resp.Database = DatabaseHealth{Status: "unreachable"}
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Database = DatabaseHealth{
		Status:    "ok",
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleVersion reports build and protocol versions.
func (h *Handlers) HandleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, VersionResponse{
		Version:         Version,
		ProtocolVersion: ProtocolVersion,
		BuildDate:       BuildDate,
	})
}

// HandleSLA serves GET /metrics/sla?period=<hours>.
func (h *Handlers) HandleSLA(w http.ResponseWriter, r *http.Request) {
	periodHours := 24
	if p := r.URL.Query().Get("period"); p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v < 1 || v > 24 {
			h.writeError(w, http.StatusBadRequest, KindValidation, "period must be between 1 and 24 hours", false)
			return
		}
		periodHours = v
	}

	snap := h.monitor.Snapshot(time.Duration(periodHours) * time.Hour)
	h.writeJSON(w, http.StatusOK, SLAResponse{
		PeriodHours:      periodHours,
		UptimePercentage: snap.UptimePct,
		AvgLatencyMs:     snap.AvgLatencyMs,
		P50Ms:            snap.P50Ms,
		P95Ms:            snap.P95Ms,
		P99Ms:            snap.P99Ms,
		TotalRequests:    snap.TotalRequests,
		FailedRequests:   snap.FailedRequests,
	})
}

// writeSyncError maps the error taxonomy to HTTP statuses.
func (h *Handlers) writeSyncError(w http.ResponseWriter, err error, deviceID string) {
	se := AsSyncError(err)
	status := http.StatusInternalServerError
	switch se.Kind {
	case KindValidation, KindProtocolMismatch:
		status = http.StatusBadRequest
	case KindStorageTransient:
		status = http.StatusServiceUnavailable
	case KindStorageFatal:
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Sync request failed", "kind", se.Kind, "error", err, "device", deviceID)
	}
	h.writeError(w, status, se.Kind, se.Message, se.Retryable)
}

func (h *Handlers) writeError(w http.ResponseWriter, statusCode int, kind, message string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     kind,
		Message:   message,
		Retryable: retryable,
	})

	h.logger.Debug("HTTP error response",
		"status_code", statusCode, "kind", kind, "message", message)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}
