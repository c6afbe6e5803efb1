// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"github.com/google/uuid"
)

// Limits caps a single push. Zero means unlimited, matching the
// behavior of an unset environment option.
type Limits struct {
	MaxPayloadBytes int // per-record encrypted payload size
	MaxBatchSize    int // records per push
}

// validateBatch enforces the whole-batch acceptance contract: if any
// record fails, the entire push is rejected and no sequence numbers are
// consumed.
func validateBatch(limits Limits, originDevice string, batchID string, records []RecordUpload) error {
	if len(records) == 0 {
		return validationError(ErrEmptyBatch, "push requires at least one record")
	}
	if limits.MaxBatchSize > 0 && len(records) > limits.MaxBatchSize {
		return validationError(ErrBatchTooLarge, "batch too large: records=%d limit=%d", len(records), limits.MaxBatchSize)
	}
	if batchID != "" {
		if _, err := uuid.Parse(batchID); err != nil {
			return validationError(ErrBadRecord, "batch_id must be a UUID")
		}
	}

	seenLocal := make(map[string]struct{}, len(records))
	for i := range records {
		if err := validateRecord(limits, originDevice, &records[i]); err != nil {
			return err
		}
		if records[i].LocalID != "" {
			if _, dup := seenLocal[records[i].LocalID]; dup {
				return validationError(ErrBadRecord, "duplicate local_id %q in batch", records[i].LocalID)
			}
			seenLocal[records[i].LocalID] = struct{}{}
		}
	}
	return nil
}

func validateRecord(limits Limits, originDevice string, rec *RecordUpload) error {
	if rec.EntityRef == "" {
		return validationError(ErrBadRecord, "entity_ref is required")
	}
	if len(rec.Payload) == 0 {
		return validationError(ErrBadRecord, "payload is required for entity %s", rec.EntityRef)
	}
	if limits.MaxPayloadBytes > 0 && rec.Payload.Size() > limits.MaxPayloadBytes {
		return validationError(ErrPayloadTooLarge, "payload for entity %s is %d bytes, limit is %d",
			rec.EntityRef, rec.Payload.Size(), limits.MaxPayloadBytes)
	}
	if err := rec.VersionVector.Validate(originDevice); err != nil {
		return validationError(err, "version_vector for entity %s: %v", rec.EntityRef, err)
	}
	return nil
}

// clampPullLimit bounds a client-supplied pull limit the same way for
// every caller.
func clampPullLimit(limit int) int {
	const (
		defaultLimit = 200
		maxLimit     = 1000
	)
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// entityRefs collects the distinct entity refs of a batch for the
// conflict lookup query.
func entityRefs(records []RecordUpload) []string {
	seen := make(map[string]struct{}, len(records))
	refs := make([]string, 0, len(records))
	for i := range records {
		if _, ok := seen[records[i].EntityRef]; ok {
			continue
		}
		seen[records[i].EntityRef] = struct{}{}
		refs = append(refs, records[i].EntityRef)
	}
	return refs
}
