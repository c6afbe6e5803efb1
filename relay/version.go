// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "strings"

// ProtocolVersion is the sync protocol the server speaks. Clients whose
// major version differs are rejected; minor/patch skew is tolerated.
const ProtocolVersion = "1.2.0"

// protocolMajor is the hard compatibility gate.
const protocolMajor = "1"

// Build metadata, overridden at link time:
//
//	go build -ldflags "-X .../relay.Version=v0.4.1 -X .../relay.BuildDate=2026-08-28"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// CheckProtocolVersion validates the protocol_version field carried by
// every push/pull request. An empty version is rejected the same way as
// a mismatched one so old clients get an actionable message.
func CheckProtocolVersion(clientVersion string) error {
	if majorOf(clientVersion) != protocolMajor {
		return protocolError(clientVersion)
	}
	return nil
}

func majorOf(version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if i := strings.IndexByte(version, '.'); i >= 0 {
		return version[:i]
	}
	return version
}
