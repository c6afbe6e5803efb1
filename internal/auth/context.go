// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "context"

type contextKey string

const (
	companyScopeKey contextKey = "company_scope"
	deviceIDKey     contextKey = "device_id"
)

// SetCompanyScope sets the opaque tenant key in the context.
func SetCompanyScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, companyScopeKey, scope)
}

// GetCompanyScope retrieves the tenant key from the context.
func GetCompanyScope(ctx context.Context) (string, bool) {
	scope, ok := ctx.Value(companyScopeKey).(string)
	return scope, ok
}

// SetDeviceID sets the authenticated device id in the context.
func SetDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// GetDeviceID retrieves the authenticated device id from the context.
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceIDKey).(string)
	return deviceID, ok
}
