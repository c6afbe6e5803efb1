// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "fmt"

// VersionVector maps a device id to that device's local change counter.
// It is supplied by clients and is authoritative for causal ordering;
// the relay compares vectors but never rewrites them.
type VersionVector map[string]int64

// VectorOrder is the result of comparing two version vectors.
type VectorOrder int

const (
	VectorEqual VectorOrder = iota
	VectorDominates
	VectorDominated
	VectorConcurrent
)

// Compare determines the causal relationship between v and other.
// Missing coordinates count as zero. VectorDominates means v happened
// after other; VectorConcurrent means neither edit saw the other.
func (v VersionVector) Compare(other VersionVector) VectorOrder {
	greater := false
	less := false

	for device, clock := range v {
		o := other[device]
		if clock > o {
			greater = true
		} else if clock < o {
			less = true
		}
	}
	for device, o := range other {
		if _, seen := v[device]; seen {
			continue
		}
		if o > 0 {
			less = true
		}
	}

	switch {
	case greater && less:
		return VectorConcurrent
	case greater:
		return VectorDominates
	case less:
		return VectorDominated
	default:
		return VectorEqual
	}
}

// ConcurrentWith reports whether v and other are mutually non-dominating,
// which makes the pair a conflict candidate.
func (v VersionVector) ConcurrentWith(other VersionVector) bool {
	return v.Compare(other) == VectorConcurrent
}

// Validate checks the well-formedness rules for an uploaded vector:
// the origin device must have a positive entry, and no coordinate may
// be negative.
func (v VersionVector) Validate(originDevice string) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrMalformedVector)
	}
	for device, clock := range v {
		if device == "" {
			return fmt.Errorf("%w: empty device id key", ErrMalformedVector)
		}
		if clock < 0 {
			return fmt.Errorf("%w: negative counter %d for device %s", ErrMalformedVector, clock, device)
		}
	}
	origin, ok := v[originDevice]
	if !ok {
		return fmt.Errorf("%w: missing origin device key %s", ErrMalformedVector, originDevice)
	}
	if origin <= 0 {
		return fmt.Errorf("%w: origin device %s counter must be positive", ErrMalformedVector, originDevice)
	}
	return nil
}

// Clone returns an independent copy of the vector.
func (v VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(v))
	for device, clock := range v {
		out[device] = clock
	}
	return out
}
