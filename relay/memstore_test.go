// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store used by service and handler tests.
// It mirrors the PostgresStore semantics: serialized gapless sequence
// assignment per scope, whole-batch atomicity, replay by batch id.
type memStore struct {
	mu      sync.Mutex
	limits  Limits
	logs    map[string][]StoredRecord          // scope -> records in seq order
	devices map[string]map[string]DeviceEntity // scope -> device -> entity
	batches map[string]map[string][2]int64     // scope -> device|batch -> [first,last]

	pingErr   error
	appendErr error // injected storage failure
}

func newMemStore(limits Limits) *memStore {
	return &memStore{
		limits:  limits,
		logs:    make(map[string][]StoredRecord),
		devices: make(map[string]map[string]DeviceEntity),
		batches: make(map[string]map[string][2]int64),
	}
}

func (m *memStore) AppendBatch(ctx context.Context, scope, originDevice, batchID string, records []RecordUpload) (int64, int64, bool, []Conflict, error) {
	if err := validateBatch(m.limits, originDevice, batchID, records); err != nil {
		return 0, 0, false, nil, err
	}
	if m.appendErr != nil {
		return 0, 0, false, nil, m.appendErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if batchID != "" {
		if ranges, ok := m.batches[scope]; ok {
			if r, ok := ranges[originDevice+"|"+batchID]; ok {
				m.touchLocked(scope, originDevice)
				return r[0], r[1], true, nil, nil
			}
		}
	}

	conflicts := pairConflicts(records, m.latestLocked(scope, records))

	next := int64(len(m.logs[scope])) + 1
	now := time.Now()
	for i := range records {
		rec := records[i]
		var bid *string
		if batchID != "" {
			b := batchID
			bid = &b
		}
		m.logs[scope] = append(m.logs[scope], StoredRecord{
			CompanyScope:   scope,
			Seq:            next + int64(i),
			EntityRef:      rec.EntityRef,
			OriginDeviceID: originDevice,
			VersionVector:  rec.VersionVector.Clone(),
			Payload:        rec.Payload,
			PayloadSize:    rec.Payload.Size(),
			BatchID:        bid,
			CreatedAt:      now,
		})
	}
	first := next
	last := next + int64(len(records)) - 1

	if batchID != "" {
		if m.batches[scope] == nil {
			m.batches[scope] = make(map[string][2]int64)
		}
		m.batches[scope][originDevice+"|"+batchID] = [2]int64{first, last}
	}
	m.touchLocked(scope, originDevice)
	return first, last, false, conflicts, nil
}

// latestLocked builds the newest-record-per-entity baseline for the
// batch's entity refs. Caller holds the mutex.
func (m *memStore) latestLocked(scope string, records []RecordUpload) map[string]latestByEntity {
	wanted := make(map[string]struct{})
	for _, ref := range entityRefs(records) {
		wanted[ref] = struct{}{}
	}
	latest := make(map[string]latestByEntity)
	for _, rec := range m.logs[scope] { // ascending seq, last write wins
		if _, ok := wanted[rec.EntityRef]; !ok {
			continue
		}
		latest[rec.EntityRef] = latestByEntity{seq: rec.Seq, vector: rec.VersionVector}
	}
	return latest
}

func (m *memStore) touchLocked(scope, deviceID string) {
	if m.devices[scope] == nil {
		m.devices[scope] = make(map[string]DeviceEntity)
	}
	now := time.Now()
	d, ok := m.devices[scope][deviceID]
	if !ok {
		d = DeviceEntity{CompanyScope: scope, DeviceID: deviceID, FirstSeen: now}
	}
	d.LastSeen = now
	m.devices[scope][deviceID] = d
}

func (m *memStore) FetchSince(ctx context.Context, scope string, sinceSeq int64, excludeDevice string, limit int) ([]RecordDownload, bool, error) {
	limit = clampPullLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []RecordDownload
	hasMore := false
	for _, rec := range m.logs[scope] {
		if rec.Seq <= sinceSeq {
			continue
		}
		if excludeDevice != "" && rec.OriginDeviceID == excludeDevice {
			continue
		}
		if len(out) == limit {
			hasMore = true
			break
		}
		d := rec.download()
		d.VersionVector = rec.VersionVector.Clone()
		out = append(out, d)
	}
	return out, hasMore, nil
}

func (m *memStore) PruneOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for scope, log := range m.logs {
		kept := log[:0]
		for _, rec := range log {
			if rec.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, rec)
		}
		m.logs[scope] = kept
	}
	return deleted, nil
}

func (m *memStore) AckDevice(ctx context.Context, scope, deviceID string, ackSeq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked(scope, deviceID)
	d := m.devices[scope][deviceID]
	if ackSeq > d.LastAckSeq {
		d.LastAckSeq = ackSeq
	}
	m.devices[scope][deviceID] = d
	return nil
}

func (m *memStore) ListDevices(ctx context.Context, scope string) ([]DeviceEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DeviceEntity
	for _, d := range m.devices[scope] {
		out = append(out, d)
	}
	return out, nil
}

func (m *memStore) HighestSeq(ctx context.Context, scope string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.logs[scope])), nil
}

func (m *memStore) Ping(ctx context.Context) error { return m.pingErr }

// recordingBroadcaster captures hints for assertions.
type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

type broadcastCall struct {
	scope  string
	seq    int64
	except string
}

func (b *recordingBroadcaster) Broadcast(scope string, newSeq int64, exceptDevice string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{scope: scope, seq: newSeq, except: exceptDevice})
}

func (b *recordingBroadcaster) all() []broadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastCall(nil), b.calls...)
}
