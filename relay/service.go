// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"
)

// Broadcaster is the side-channel hint sink; *Hub satisfies it.
// Delivery failures never affect push outcomes.
type Broadcaster interface {
	Broadcast(scope string, newSeq int64, exceptDevice string)
}

// ServiceConfig holds the protocol handler's knobs.
type ServiceConfig struct {
	Limits           Limits
	DefaultPullLimit int  // applied when a pull omits limit
	ExcludeSelf      bool // default: pulls skip the requester's own writes
}

// SyncService implements the push/pull contract, orchestrating the
// store and the realtime notifier.
type SyncService struct {
	store    Store
	notifier Broadcaster
	config   ServiceConfig
	logger   *slog.Logger
}

func NewSyncService(store Store, notifier Broadcaster, config ServiceConfig, logger *slog.Logger) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultPullLimit <= 0 {
		config.DefaultPullLimit = 200
	}
	return &SyncService{
		store:    store,
		notifier: notifier,
		config:   config,
		logger:   logger,
	}
}

// Push validates, detects conflicts against the pre-batch state,
// appends, then hints connected peers. Acceptance is all-or-nothing:
// a rejected batch consumes no sequence numbers.
func (s *SyncService) Push(ctx context.Context, scope, deviceID string, req *PushRequest) (*PushResponse, error) {
	if err := CheckProtocolVersion(req.ProtocolVersion); err != nil {
		return nil, err
	}
	if req.DeviceID != "" && req.DeviceID != deviceID {
		return nil, validationError(ErrDeviceMismatch,
			"body device_id %q does not match authenticated device %q", req.DeviceID, deviceID)
	}
	if err := validateBatch(s.config.Limits, deviceID, req.BatchID, req.Records); err != nil {
		return nil, err
	}

	// Conflict metadata reflects the state prior to this batch being
	// durable; the store detects under the same scope lock that
	// assigns sequences, so concurrent pushes cannot miss each other.
	firstSeq, lastSeq, replayed, conflicts, err := s.store.AppendBatch(ctx, scope, deviceID, req.BatchID, req.Records)
	if err != nil {
		return nil, AsSyncError(err)
	}

	if !replayed {
		s.notifier.Broadcast(scope, lastSeq, deviceID)
	}

	s.logger.Info("Push accepted",
		"scope", scope, "device", deviceID, "records", len(req.Records),
		"from", firstSeq, "to", lastSeq, "conflicts", len(conflicts), "replayed", replayed)

	resp := &PushResponse{
		AcceptedFrom: firstSeq,
		AcceptedTo:   lastSeq,
		Conflicts:    conflicts2entries(conflicts),
		Replayed:     replayed,
	}
	return resp, nil
}

// Pull returns the next page after the client's cursor. An empty page
// with NewCursor == SinceSeq means fully caught up. The returned
// cursor is persisted as the device's ack watermark.
func (s *SyncService) Pull(ctx context.Context, scope, deviceID string, req *PullRequest) (*PullResponse, error) {
	if err := CheckProtocolVersion(req.ProtocolVersion); err != nil {
		return nil, err
	}
	if req.DeviceID != "" && req.DeviceID != deviceID {
		return nil, validationError(ErrDeviceMismatch,
			"body device_id %q does not match authenticated device %q", req.DeviceID, deviceID)
	}
	if req.SinceSeq < 0 {
		return nil, validationError(ErrBadRecord, "since_seq must be >= 0")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.config.DefaultPullLimit
	}

	exclude := deviceID
	if req.IncludeSelf || !s.config.ExcludeSelf {
		exclude = ""
	}

	records, hasMore, err := s.store.FetchSince(ctx, scope, req.SinceSeq, exclude, limit)
	if err != nil {
		return nil, AsSyncError(err)
	}

	newCursor := req.SinceSeq
	if len(records) > 0 {
		newCursor = records[len(records)-1].Seq
	}

	if err := s.store.AckDevice(ctx, scope, deviceID, newCursor); err != nil {
		// A lost ack only delays the watermark; the pull result stands.
		s.logger.Warn("Failed to ack device cursor", "error", err, "scope", scope, "device", deviceID)
	}

	return &PullResponse{
		Records:   records,
		NewCursor: newCursor,
		HasMore:   hasMore,
	}, nil
}

// Devices lists the registry for a scope; presence is merged in by the
// handler when a tracker is configured.
func (s *SyncService) Devices(ctx context.Context, scope string) ([]DeviceEntity, error) {
	devices, err := s.store.ListDevices(ctx, scope)
	if err != nil {
		return nil, AsSyncError(err)
	}
	return devices, nil
}

func conflicts2entries(conflicts []Conflict) []ConflictEntry {
	entries := make([]ConflictEntry, len(conflicts))
	for i, c := range conflicts {
		entries[i] = ConflictEntry{
			LocalID:     c.LocalID,
			EntityRef:   c.EntityRef,
			ExistingSeq: c.ExistingSeq,
		}
	}
	return entries
}
