// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"fmt"
)

// Error kinds surfaced in JSON error bodies. Clients branch on these,
// not on the human-readable message.
const (
	KindValidation       = "validation"
	KindProtocolMismatch = "protocol_mismatch"
	KindRateLimited      = "rate_limited"
	KindStorageTransient = "storage_transient"
	KindStorageFatal     = "storage_fatal"
	KindUnauthorized     = "unauthorized"
)

// Validation error sentinels for better error mapping
var (
	ErrMalformedVector  = errors.New("malformed_version_vector")
	ErrPayloadTooLarge  = errors.New("payload_too_large")
	ErrBatchTooLarge    = errors.New("batch_too_large")
	ErrEmptyBatch       = errors.New("empty_batch")
	ErrBadRecord        = errors.New("bad_record")
	ErrDeviceMismatch   = errors.New("device_mismatch")
	ErrProtocolMismatch = errors.New("protocol_mismatch")
)

// SyncError is the structured error returned from push/pull processing.
// Kind is machine-readable, Message is for humans, Retryable tells the
// client whether resubmitting the same request can succeed.
type SyncError struct {
	Kind      string
	Message   string
	Retryable bool
	cause     error
}

func (e *SyncError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *SyncError) Unwrap() error { return e.cause }

// validationError builds a non-retryable validation error wrapping a sentinel.
func validationError(sentinel error, format string, args ...any) *SyncError {
	return &SyncError{
		Kind:      KindValidation,
		Message:   fmt.Sprintf(format, args...),
		Retryable: false,
		cause:     sentinel,
	}
}

// protocolError names the protocol version the server requires.
func protocolError(clientVersion string) *SyncError {
	return &SyncError{
		Kind:      KindProtocolMismatch,
		Message:   fmt.Sprintf("unsupported protocol version %q, required client protocol is %s.x", clientVersion, protocolMajor),
		Retryable: false,
		cause:     ErrProtocolMismatch,
	}
}

// storageTransient marks a storage failure the client may retry after backoff.
func storageTransient(err error) *SyncError {
	return &SyncError{
		Kind:      KindStorageTransient,
		Message:   "storage temporarily unavailable, retry the batch",
		Retryable: true,
		cause:     err,
	}
}

// storageFatal marks a storage failure that retrying will not fix.
func storageFatal(err error) *SyncError {
	return &SyncError{
		Kind:      KindStorageFatal,
		Message:   "storage failure",
		Retryable: false,
		cause:     err,
	}
}

// AsSyncError unwraps err to a *SyncError, or wraps it as storage_fatal
// so handlers always have a kind to report.
func AsSyncError(err error) *SyncError {
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}
	return storageFatal(err)
}
