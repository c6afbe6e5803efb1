// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "time"

// REST/JSON models for HTTP API requests and responses

// PushRequest represents a batch push from one device.
// company_scope is derived from the JWT sub claim, never from the body.
type PushRequest struct {
	ProtocolVersion string         `json:"protocol_version"`
	DeviceID        string         `json:"device_id"`
	BatchID         string         `json:"batch_id,omitempty"` // optional idempotency key (UUID)
	Records         []RecordUpload `json:"records"`
}

// RecordUpload is a single encrypted change record in a push batch.
type RecordUpload struct {
	LocalID       string        `json:"local_id"`       // client-local id, echoed in conflicts
	EntityRef     string        `json:"entity_ref"`     // opaque, used only for conflict grouping
	VersionVector VersionVector `json:"version_vector"` // client-authoritative causal clock
	Payload       Payload       `json:"payload"`        // encrypted bytes, base64 on the wire
}

// PushResponse returns the assigned sequence range and any conflict
// pairs detected against the pre-batch state.
type PushResponse struct {
	AcceptedFrom int64           `json:"accepted_from"`
	AcceptedTo   int64           `json:"accepted_to"`
	Conflicts    []ConflictEntry `json:"conflicts"`
	Replayed     bool            `json:"replayed,omitempty"` // batch_id was already sequenced
}

// ConflictEntry pairs an incoming record with the stored record it is
// concurrent with. Resolution happens on the client.
type ConflictEntry struct {
	LocalID     string `json:"local_id"`
	EntityRef   string `json:"entity_ref"`
	ExistingSeq int64  `json:"existing_seq"`
}

// PullRequest asks for records after since_seq.
type PullRequest struct {
	ProtocolVersion string `json:"protocol_version"`
	DeviceID        string `json:"device_id"`
	SinceSeq        int64  `json:"since_seq"`
	Limit           int    `json:"limit,omitempty"`
	IncludeSelf     bool   `json:"include_self,omitempty"` // recovery: return own writes too
}

// PullResponse carries records in ascending sequence order.
// Empty records with NewCursor == since_seq means fully caught up.
type PullResponse struct {
	Records   []RecordDownload `json:"records"`
	NewCursor int64            `json:"new_cursor"`
	HasMore   bool             `json:"has_more"`
}

// RecordDownload is a single change record in a pull response.
type RecordDownload struct {
	Seq            int64         `json:"seq"`
	EntityRef      string        `json:"entity_ref"`
	OriginDeviceID string        `json:"origin_device_id"`
	VersionVector  VersionVector `json:"version_vector"`
	Payload        Payload       `json:"payload"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ChangeEvent is the hint streamed over /ws when new sequences land.
type ChangeEvent struct {
	Event  string `json:"event"` // always "changes_available"
	Cursor int64  `json:"cursor"`
}

// HealthResponse for GET /health.
type HealthResponse struct {
	Status        string         `json:"status"` // ok, degraded, error
	Database      DatabaseHealth `json:"database"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

// DatabaseHealth reports storage reachability.
type DatabaseHealth struct {
	Status    string  `json:"status"`
	LatencyMs float64 `json:"latency_ms"`
}

// VersionResponse for GET /version.
type VersionResponse struct {
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocol_version"`
	BuildDate       string `json:"build_date"`
}

// SLAResponse for GET /metrics/sla.
type SLAResponse struct {
	PeriodHours      int     `json:"period_hours"`
	UptimePercentage float64 `json:"uptime_percentage"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	P50Ms            float64 `json:"p50_ms"`
	P95Ms            float64 `json:"p95_ms"`
	P99Ms            float64 `json:"p99_ms"`
	TotalRequests    int64   `json:"total_requests"`
	FailedRequests   int64   `json:"failed_requests"`
}

// DeviceInfo for GET /devices: registry row plus live presence when
// presence tracking is enabled.
type DeviceInfo struct {
	DeviceID   string    `json:"device_id"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	LastAckSeq int64     `json:"last_ack_seq"`
	Presence   string    `json:"presence,omitempty"` // online, offline
}

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error     string `json:"error"` // machine-readable kind
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
