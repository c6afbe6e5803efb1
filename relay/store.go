// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable, ordered change log plus device registry. It
// exclusively owns sequence assignment: there is deliberately no
// "peek next sequence" operation.
type Store interface {
	// AppendBatch assigns consecutive sequence numbers to the batch in
	// array order inside one serialized transaction per company scope.
	// Conflicts are detected under the same scope lock, against the
	// most recent stored record per entity_ref as it stood before this
	// batch. batchID, when non-empty, makes a timed-out client retry
	// safe: a replayed batch returns the originally assigned range
	// without consuming new sequences (and no conflicts, they were
	// reported on the first acceptance).
	AppendBatch(ctx context.Context, scope, originDevice, batchID string, records []RecordUpload) (firstSeq, lastSeq int64, replayed bool, conflicts []Conflict, err error)

	// FetchSince returns records with seq > sinceSeq in ascending
	// order, excluding excludeDevice's own writes when set, bounded by
	// limit. hasMore reports whether records beyond the page exist.
	FetchSince(ctx context.Context, scope string, sinceSeq int64, excludeDevice string, limit int) (records []RecordDownload, hasMore bool, err error)

	// PruneOlderThan deletes change records older than the cutoff and
	// reports how many were removed. Device rows are never touched.
	PruneOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)

	// AckDevice records the highest sequence a device has pulled.
	AckDevice(ctx context.Context, scope, deviceID string, ackSeq int64) error

	// ListDevices returns the device registry for a scope.
	ListDevices(ctx context.Context, scope string) ([]DeviceEntity, error)

	// HighestSeq returns the current top of the log for a scope.
	HighestSeq(ctx context.Context, scope string) (int64, error)

	// Ping verifies storage reachability for health reporting.
	Ping(ctx context.Context) error
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	limits Limits
}

// NewPostgresStore creates the store and initializes the relay schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, limits Limits, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PostgresStore{
		pool:   pool,
		logger: logger,
		limits: limits,
	}
	if err := s.initializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize relay schema: %w", err)
	}
	logger.Debug("Relay schema initialized")
	return s, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) HighestSeq(ctx context.Context, scope string) (int64, error) {
	var maxSeq int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM relay.change_log WHERE company_scope = $1`,
		scope,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get highest seq: %w", err)
	}
	return maxSeq, nil
}
