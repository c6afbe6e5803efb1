// Copyright 2026 The graceful-books Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"log/slog"
	"time"
)

// PruneOlderThan deletes change records past the retention cutoff.
// This is the relay's only garbage collection: records are immutable
// between append and pruning, and device rows are never touched.
func (s *PostgresStore) PruneOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM relay.change_log WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Pruner runs retention cleanup on a fixed daily schedule.
type Pruner struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewPruner keeps records for retentionDays days.
func NewPruner(store Store, retentionDays int, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  24 * time.Hour,
		logger:    logger,
	}
}

// Run prunes once immediately, then daily until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	p.pruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

func (p *Pruner) pruneOnce(ctx context.Context) {
	deleted, err := p.store.PruneOlderThan(ctx, p.retention)
	if err != nil {
		p.logger.Error("Retention pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("Retention pruning complete", "deleted", deleted, "retention", p.retention)
	}
}
