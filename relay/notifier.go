// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub is the in-memory WebSocket connection registry. Broadcast is a
// pure side-channel hint: delivery is fire-and-forget and the pull path
// remains the correctness backstop, so dropped messages are fine and
// registry state is intentionally lost on restart.
type Hub struct {
	mu     sync.RWMutex
	scopes map[string]map[string]*wsConn // scope -> device -> conn

	pingInterval time.Duration
	idleTimeout  time.Duration

	presence PresenceTracker
	logger   *slog.Logger
}

// PresenceTracker mirrors register/deregister into an external presence
// store. Failures are logged and ignored; presence is advisory.
type PresenceTracker interface {
	DeviceOnline(ctx context.Context, scope, deviceID string) error
	DeviceOffline(ctx context.Context, scope, deviceID string) error
	Refresh(ctx context.Context, scope, deviceID string) error
}

type wsConn struct {
	scope    string
	deviceID string
	conn     *websocket.Conn
	send     chan ChangeEvent
	closed   chan struct{}
	once     sync.Once
}

// NewHub creates the notifier. presence may be nil.
func NewHub(pingInterval, idleTimeout time.Duration, presence PresenceTracker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		scopes:       make(map[string]map[string]*wsConn),
		pingInterval: pingInterval,
		idleTimeout:  idleTimeout,
		presence:     presence,
		logger:       logger,
	}
}

// Register adds a connection for a device and starts its keep-alive
// loops. A device reconnecting replaces (and closes) its old entry.
func (h *Hub) Register(scope, deviceID string, conn *websocket.Conn) {
	c := &wsConn{
		scope:    scope,
		deviceID: deviceID,
		conn:     conn,
		send:     make(chan ChangeEvent, 8),
		closed:   make(chan struct{}),
	}

	h.mu.Lock()
	devices, ok := h.scopes[scope]
	if !ok {
		devices = make(map[string]*wsConn)
		h.scopes[scope] = devices
	}
	old := devices[deviceID]
	devices[deviceID] = c
	h.mu.Unlock()

	if old != nil {
		old.close()
	}

	if h.presence != nil {
		if err := h.presence.DeviceOnline(context.Background(), scope, deviceID); err != nil {
			h.logger.Debug("Presence online update failed", "error", err, "device", deviceID)
		}
	}

	go h.writePump(c)
	go h.readPump(c)

	h.logger.Debug("Device subscribed", "scope", scope, "device", deviceID)
}

// Broadcast sends a "changes available" hint to every device in the
// scope except the originator. A slow consumer's full buffer drops the
// hint rather than blocking the push path.
func (h *Hub) Broadcast(scope string, newSeq int64, exceptDevice string) {
	ev := ChangeEvent{Event: "changes_available", Cursor: newSeq}

	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.scopes[scope]))
	for deviceID, c := range h.scopes[scope] {
		if deviceID == exceptDevice {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- ev:
		default:
			h.logger.Debug("Dropped change hint, send buffer full",
				"scope", scope, "device", c.deviceID, "cursor", newSeq)
		}
	}
}

// deregister removes a connection on socket close, ping timeout or
// explicit disconnect. The registry entry is deleted only while it
// still maps to this exact connection: a replaced socket's delayed
// teardown must not evict the replacement that took its slot.
func (h *Hub) deregister(c *wsConn) {
	h.mu.Lock()
	removed := false
	if devices, ok := h.scopes[c.scope]; ok && devices[c.deviceID] == c {
		delete(devices, c.deviceID)
		removed = true
		if len(devices) == 0 {
			delete(h.scopes, c.scope)
		}
	}
	h.mu.Unlock()

	c.close()

	// A replaced connection keeps the device online through its successor.
	if removed && h.presence != nil {
		if err := h.presence.DeviceOffline(context.Background(), c.scope, c.deviceID); err != nil {
			h.logger.Debug("Presence offline update failed", "error", err, "device", c.deviceID)
		}
	}
}

// ConnectedDevices returns the device ids currently subscribed for a scope.
func (h *Hub) ConnectedDevices(scope string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.scopes[scope]))
	for deviceID := range h.scopes[scope] {
		ids = append(ids, deviceID)
	}
	return ids
}

// CloseAll drops every connection; used during graceful shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*wsConn
	for _, devices := range h.scopes {
		for _, c := range devices {
			all = append(all, c)
		}
	}
	h.scopes = make(map[string]map[string]*wsConn)
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// writePump owns all writes on the socket: queued hints plus the
// periodic ping. gorilla/websocket allows one writer at a time.
func (h *Hub) writePump(c *wsConn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.pingInterval))
			if err := c.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("WS write failed", "device", c.deviceID, "error", err)
				h.deregister(c)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.pingInterval)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.logger.Debug("WS ping failed", "device", c.deviceID, "error", err)
				h.deregister(c)
				return
			}
			if h.presence != nil {
				if err := h.presence.Refresh(context.Background(), c.scope, c.deviceID); err != nil {
					h.logger.Debug("Presence refresh failed", "error", err, "device", c.deviceID)
				}
			}
		}
	}
}

// readPump consumes the socket so pongs and close frames are
// processed. The read deadline spans two ping cycles: a peer that
// misses two consecutive pongs is forcibly disconnected.
func (h *Hub) readPump(c *wsConn) {
	defer h.deregister(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	})
	c.conn.SetReadLimit(1024) // clients only ever send control frames

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
