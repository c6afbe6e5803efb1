// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// latestByEntity is the newest stored record per entity_ref, the
// comparison baseline for conflict detection.
type latestByEntity struct {
	seq    int64
	vector VersionVector
}

// detectConflictsInTx surfaces concurrent-edit pairs from metadata
// alone. It runs inside the append transaction while the scope lock is
// held, so the baseline is exactly the pre-batch state even when two
// devices push at once: for each incoming record the most recent stored
// record with the same entity_ref is fetched and the version vectors
// compared. Neither dominating the other makes the pair a conflict; the
// relay only reports it, merging is the client's job.
func detectConflictsInTx(ctx context.Context, tx pgx.Tx, scope string, records []RecordUpload) ([]Conflict, error) {
	refs := entityRefs(records)
	if len(refs) == 0 {
		return nil, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT DISTINCT ON (entity_ref) entity_ref, seq, version_vector
		FROM relay.change_log
		WHERE company_scope = @scope
		  AND entity_ref = ANY(@refs)
		ORDER BY entity_ref, seq DESC`,
		pgx.NamedArgs{"scope": scope, "refs": refs},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest records per entity: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]latestByEntity, len(refs))
	for rows.Next() {
		var (
			ref    string
			seq    int64
			vvJSON []byte
		)
		if err := rows.Scan(&ref, &seq, &vvJSON); err != nil {
			return nil, fmt.Errorf("failed to scan latest record: %w", err)
		}
		var vv VersionVector
		if err := json.Unmarshal(vvJSON, &vv); err != nil {
			return nil, fmt.Errorf("failed to decode stored version vector for %s: %w", ref, err)
		}
		latest[ref] = latestByEntity{seq: seq, vector: vv}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading latest records: %w", err)
	}

	return pairConflicts(records, latest), nil
}

// pairConflicts compares incoming vectors against the stored baseline.
// Split out so the in-memory store and tests share the exact semantics.
func pairConflicts(records []RecordUpload, latest map[string]latestByEntity) []Conflict {
	var conflicts []Conflict
	for i := range records {
		rec := &records[i]
		existing, ok := latest[rec.EntityRef]
		if !ok {
			continue
		}
		if rec.VersionVector.ConcurrentWith(existing.vector) {
			conflicts = append(conflicts, Conflict{
				LocalID:     rec.LocalID,
				EntityRef:   rec.EntityRef,
				ExistingSeq: existing.seq,
			})
		}
	}
	return conflicts
}
