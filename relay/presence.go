// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "relay:presence:"
	presenceTTL       = 90 * time.Second
)

// RedisPresence tracks which devices hold a live WebSocket, keyed with
// a TTL so a crashed relay or dropped socket converges to offline
// without cleanup. Entirely optional: the relay runs without Redis and
// /devices simply omits presence.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func (p *RedisPresence) DeviceOnline(ctx context.Context, scope, deviceID string) error {
	if err := p.client.Set(ctx, presenceKey(scope, deviceID), "online", presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (p *RedisPresence) DeviceOffline(ctx context.Context, scope, deviceID string) error {
	if err := p.client.Del(ctx, presenceKey(scope, deviceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	return nil
}

// Refresh extends the TTL for a still-connected device; the hub calls
// this from its keep-alive path.
func (p *RedisPresence) Refresh(ctx context.Context, scope, deviceID string) error {
	if err := p.client.Expire(ctx, presenceKey(scope, deviceID), presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

// Online resolves presence for a set of devices in one round trip.
func (p *RedisPresence) Online(ctx context.Context, scope string, deviceIDs []string) (map[string]bool, error) {
	if len(deviceIDs) == 0 {
		return map[string]bool{}, nil
	}

	keys := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		keys[i] = presenceKey(scope, id)
	}

	results, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	online := make(map[string]bool, len(deviceIDs))
	for i, result := range results {
		online[deviceIDs[i]] = result != nil
	}
	return online, nil
}

func presenceKey(scope, deviceID string) string {
	return presenceKeyPrefix + scope + ":" + deviceID
}
