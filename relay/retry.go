// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	appendMaxAttempts = 3
	appendBackoffBase = 50 * time.Millisecond
)

func isRetryablePGTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.SQLState() {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available (incl. lock_timeout)
		"53100", // disk_full
		"53200", // out_of_memory
		"53300": // too_many_connections
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withAppendRetry runs fn up to appendMaxAttempts times, backing off on
// transient storage errors. The exhausted transient case surfaces as a
// retryable error so the client resubmits the whole batch; anything
// else is fatal.
func withAppendRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < appendMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := appendBackoffBase << (attempt - 1)
			if serr := sleepWithContext(ctx, backoff); serr != nil {
				return storageTransient(serr)
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		var se *SyncError
		if errors.As(err, &se) {
			return err // validation and replay outcomes pass through untouched
		}
		if !isRetryablePGTxError(err) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return storageTransient(err)
			}
			return storageFatal(err)
		}
	}
	return storageTransient(err)
}
