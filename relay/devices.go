// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// touchDeviceInTx registers a device on first contact and advances
// last_seen on every push. Runs inside the append transaction so a
// rejected batch leaves no trace.
func (s *PostgresStore) touchDeviceInTx(ctx context.Context, tx pgx.Tx, scope, deviceID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO relay.devices (company_scope, device_id)
		VALUES (@scope, @device)
		ON CONFLICT (company_scope, device_id)
		DO UPDATE SET last_seen = now()`,
		pgx.NamedArgs{"scope": scope, "device": deviceID},
	)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	return nil
}

// AckDevice records the highest sequence the device has pulled. The
// cursor only moves forward; a stale ack from a lagging request is a
// no-op.
func (s *PostgresStore) AckDevice(ctx context.Context, scope, deviceID string, ackSeq int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO relay.devices (company_scope, device_id, last_ack_seq)
		VALUES (@scope, @device, @ack)
		ON CONFLICT (company_scope, device_id)
		DO UPDATE SET
			last_seen    = now(),
			last_ack_seq = GREATEST(relay.devices.last_ack_seq, EXCLUDED.last_ack_seq)`,
		pgx.NamedArgs{"scope": scope, "device": deviceID, "ack": ackSeq},
	)
	if err != nil {
		return fmt.Errorf("failed to ack device: %w", err)
	}
	return nil
}

// ListDevices returns every device that has ever contacted the relay
// under this scope, newest activity first.
func (s *PostgresStore) ListDevices(ctx context.Context, scope string) ([]DeviceEntity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT company_scope, device_id, first_seen, last_seen, last_ack_seq
		FROM relay.devices
		WHERE company_scope = $1
		ORDER BY last_seen DESC`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []DeviceEntity
	for rows.Next() {
		var d DeviceEntity
		if err := rows.Scan(&d.CompanyScope, &d.DeviceID, &d.FirstSeen, &d.LastSeen, &d.LastAckSeq); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}
