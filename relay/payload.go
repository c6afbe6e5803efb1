// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/base64"
	"fmt"
	"log/slog"
)

// Payload is an opaque encrypted blob. The relay stores, orders and
// forwards payloads without any decode path: this type deliberately has
// no parse operation, its JSON form is base64, and its log form is a
// byte count. Keys never reach this process.
type Payload []byte

// Size returns the payload size in bytes, the only attribute of the
// blob the relay is allowed to act on.
func (p Payload) Size() int { return len(p) }

// MarshalJSON encodes the blob as standard base64.
func (p Payload) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, base64.StdEncoding.EncodedLen(len(p))+2)
	buf = append(buf, '"')
	buf = base64.StdEncoding.AppendEncode(buf, p)
	buf = append(buf, '"')
	return buf, nil
}

// UnmarshalJSON decodes a base64 JSON string into the blob.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("payload must be a base64 string")
	}
	decoded, err := base64.StdEncoding.AppendDecode(nil, data[1:len(data)-1])
	if err != nil {
		return fmt.Errorf("payload is not valid base64: %w", err)
	}
	*p = decoded
	return nil
}

// String redacts the content so accidental %v formatting never leaks
// ciphertext into logs or error messages.
func (p Payload) String() string {
	return fmt.Sprintf("payload(%d bytes)", len(p))
}

// LogValue implements slog.LogValuer with the same redaction.
func (p Payload) LogValue() slog.Value {
	return slog.StringValue(p.String())
}
