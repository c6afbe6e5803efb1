// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "time"

// Database entity models for the relay schema

// StoredRecord represents a row in relay.change_log. Rows are immutable
// after insert; the retention pruner is the only delete path.
type StoredRecord struct {
	CompanyScope   string        `db:"company_scope"`
	Seq            int64         `db:"seq"`
	EntityRef      string        `db:"entity_ref"`
	OriginDeviceID string        `db:"origin_device_id"`
	VersionVector  VersionVector `db:"version_vector"`
	Payload        Payload       `db:"payload"`
	PayloadSize    int           `db:"payload_size"`
	BatchID        *string       `db:"batch_id"`
	CreatedAt      time.Time     `db:"created_at"`
}

// download projects the row onto its pull wire form.
func (r *StoredRecord) download() RecordDownload {
	return RecordDownload{
		Seq:            r.Seq,
		EntityRef:      r.EntityRef,
		OriginDeviceID: r.OriginDeviceID,
		VersionVector:  r.VersionVector,
		Payload:        r.Payload,
		CreatedAt:      r.CreatedAt,
	}
}

// DeviceEntity represents a row in relay.devices. Created on first
// contact from an unseen device id, updated on every interaction,
// never deleted by the relay.
type DeviceEntity struct {
	CompanyScope string    `db:"company_scope"`
	DeviceID     string    `db:"device_id"`
	FirstSeen    time.Time `db:"first_seen"`
	LastSeen     time.Time `db:"last_seen"`
	LastAckSeq   int64     `db:"last_ack_seq"`
}

// Conflict pairs an incoming record (by local id) with the most recent
// stored record for the same entity_ref whose version vector is
// concurrent with the incoming one.
type Conflict struct {
	LocalID     string
	EntityRef   string
	ExistingSeq int64
}
