// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// FetchSince returns the page of records after sinceSeq in ascending
// sequence order. Clients normally want only other devices' changes, so
// excludeDevice is set to the requester; pass empty to include self
// (recovery after local data loss).
func (s *PostgresStore) FetchSince(
	ctx context.Context,
	scope string,
	sinceSeq int64,
	excludeDevice string,
	limit int,
) ([]RecordDownload, bool, error) {
	limit = clampPullLimit(limit)

	rows, err := s.pool.Query(ctx, `
		SELECT seq, entity_ref, origin_device_id, version_vector, payload, created_at
		FROM relay.change_log
		WHERE company_scope = @scope
		  AND seq > @since
		  AND (@exclude::text = '' OR origin_device_id <> @exclude)
		ORDER BY seq
		LIMIT @limit`,
		pgx.NamedArgs{
			"scope":   scope,
			"since":   sinceSeq,
			"exclude": excludeDevice,
			"limit":   limit + 1, // one extra row signals has_more
		},
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch changes: %w", err)
	}
	defer rows.Close()

	records := make([]RecordDownload, 0, limit)
	for rows.Next() {
		var (
			row     StoredRecord
			vvJSON  []byte
			payload []byte
		)
		if err := rows.Scan(&row.Seq, &row.EntityRef, &row.OriginDeviceID, &vvJSON, &payload, &row.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("failed to scan change record: %w", err)
		}
		if err := json.Unmarshal(vvJSON, &row.VersionVector); err != nil {
			return nil, false, fmt.Errorf("failed to decode version vector for seq %d: %w", row.Seq, err)
		}
		row.CompanyScope = scope
		row.Payload = Payload(payload)
		records = append(records, row.download())
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed reading change rows: %w", err)
	}

	hasMore := false
	if len(records) > limit {
		hasMore = true
		records = records[:limit]
	}
	return records, hasMore, nil
}
