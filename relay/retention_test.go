// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneOlderThanMemStore(t *testing.T) {
	store := newMemStore(Limits{})
	ctx := context.Background()

	_, _, _, _, err := store.AppendBatch(ctx, "acme", "device-x", "", []RecordUpload{
		uploadRecord("l1", "bill:1", VersionVector{"device-x": 1}, 16),
	})
	require.NoError(t, err)

	// Fresh records survive a generous cutoff.
	deleted, err := store.PruneOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	// Backdate the record past the horizon.
	store.mu.Lock()
	store.logs["acme"][0].CreatedAt = time.Now().Add(-48 * time.Hour)
	store.mu.Unlock()

	deleted, err = store.PruneOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The device registry is retention-proof.
	devices, err := store.ListDevices(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}
