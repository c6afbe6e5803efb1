// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// initializeSchema creates the relay tables if they don't exist.
func (s *PostgresStore) initializeSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return s.initializeSchemaInTx(ctx, tx)
	})
}

func (s *PostgresStore) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	migrations := []string{
		// Dedicated schema so the relay never collides with application tables
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS relay`,

		// Ordered encrypted change log. seq is assigned under a
		// per-scope advisory lock: strictly increasing, gapless,
		// immutable once written. payload is opaque ciphertext.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS relay.change_log (
			company_scope    TEXT        NOT NULL,
			seq              BIGINT      NOT NULL,
			entity_ref       TEXT        NOT NULL,
			origin_device_id TEXT        NOT NULL,
			version_vector   JSONB       NOT NULL,
			payload          BYTEA       NOT NULL,
			payload_size     INTEGER     NOT NULL,
			batch_id         UUID,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (company_scope, seq)
		)`,

		// Latest-change-per-entity lookup for conflict detection
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS change_log_entity_idx
			ON relay.change_log (company_scope, entity_ref, seq DESC)`,

		// Retention pruning scans by age
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS change_log_created_idx
			ON relay.change_log (created_at)`,

		// Idempotent batch replay lookup
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS change_log_batch_idx
			ON relay.change_log (company_scope, origin_device_id, batch_id)
			WHERE batch_id IS NOT NULL`,

		// Device registry. Rows are created on first contact and only
		// ever updated; account deletion (out of band) is the sole
		// removal path.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS relay.devices (
			company_scope TEXT        NOT NULL,
			device_id     TEXT        NOT NULL,
			first_seen    TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen     TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_ack_seq  BIGINT      NOT NULL DEFAULT 0,
			PRIMARY KEY (company_scope, device_id)
		)`,
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
