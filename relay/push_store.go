// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// AppendBatch sequences and persists a push batch. The per-scope
// advisory lock is the single serialization point of the relay: while
// held, MAX(seq)+1 assignment is race-free and gapless, and conflict
// detection sees exactly the pre-batch state. The whole batch commits
// or nothing does.
func (s *PostgresStore) AppendBatch(
	ctx context.Context,
	scope, originDevice, batchID string,
	records []RecordUpload,
) (int64, int64, bool, []Conflict, error) {
	if err := validateBatch(s.limits, originDevice, batchID, records); err != nil {
		return 0, 0, false, nil, err
	}

	var (
		firstSeq  int64
		lastSeq   int64
		replayed  bool
		conflicts []Conflict
	)

	err := withAppendRetry(ctx, func() error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}, func(tx pgx.Tx) error {
			// Bound lock wait times under contention
			if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '3s'"); err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}

			// Scope-level serialization for sequence assignment
			if _, err := tx.Exec(ctx,
				`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, scope,
			); err != nil {
				return fmt.Errorf("failed to acquire scope lock: %w", err)
			}

			if batchID != "" {
				var from, to *int64
				err := tx.QueryRow(ctx, `
					SELECT MIN(seq), MAX(seq)
					FROM relay.change_log
					WHERE company_scope = @scope
					  AND origin_device_id = @device
					  AND batch_id = @batch_id::uuid`,
					pgx.NamedArgs{"scope": scope, "device": originDevice, "batch_id": batchID},
				).Scan(&from, &to)
				if err != nil {
					return fmt.Errorf("failed idempotency lookup: %w", err)
				}
				if from != nil && to != nil {
					firstSeq, lastSeq, replayed = *from, *to, true
					return s.touchDeviceInTx(ctx, tx, scope, originDevice)
				}
			}

			found, err := detectConflictsInTx(ctx, tx, scope, records)
			if err != nil {
				return err
			}
			conflicts = found

			var next int64
			if err := tx.QueryRow(ctx,
				`SELECT COALESCE(MAX(seq), 0) + 1 FROM relay.change_log WHERE company_scope = $1`,
				scope,
			).Scan(&next); err != nil {
				return fmt.Errorf("failed to read sequence head: %w", err)
			}

			batch := &pgx.Batch{}
			for i := range records {
				rec := &records[i]
				var bid any
				if batchID != "" {
					bid = batchID
				}
				batch.Queue(`
					INSERT INTO relay.change_log
						(company_scope, seq, entity_ref, origin_device_id,
						 version_vector, payload, payload_size, batch_id)
					VALUES (@scope, @seq, @entity_ref, @device, @vv, @payload, @payload_size, @batch_id)`,
					pgx.NamedArgs{
						"scope":        scope,
						"seq":          next + int64(i),
						"entity_ref":   rec.EntityRef,
						"device":       originDevice,
						"vv":           rec.VersionVector,
						"payload":      []byte(rec.Payload),
						"payload_size": rec.Payload.Size(),
						"batch_id":     bid,
					},
				)
			}
			br := tx.SendBatch(ctx, batch)
			for range records {
				if _, err := br.Exec(); err != nil {
					br.Close()
					return fmt.Errorf("failed to insert change record: %w", err)
				}
			}
			if err := br.Close(); err != nil {
				return fmt.Errorf("failed to close insert batch: %w", err)
			}

			firstSeq = next
			lastSeq = next + int64(len(records)) - 1
			replayed = false

			return s.touchDeviceInTx(ctx, tx, scope, originDevice)
		})
	})
	if err != nil {
		s.logger.Error("AppendBatch failed",
			"scope", scope, "device", originDevice, "records", len(records), "error", err)
		return 0, 0, false, nil, err
	}

	return firstSeq, lastSeq, replayed, conflicts, nil
}
