package services

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// Reconciler removes duplicate (source, index) chunk rows left behind
// by interrupted or retried ingestion. It runs one pass at startup and
// then on a timer; a busy store skips the collection until the next
// cycle.
type Reconciler struct {
	registry *Registry
	interval time.Duration
}

// NewReconciler creates a reconciler. A zero or negative interval
// disables the timer; Run then performs only the startup pass.
func NewReconciler(registry *Registry, interval time.Duration) *Reconciler {
	return &Reconciler{registry: registry, interval: interval}
}

// Run blocks until ctx is cancelled, reconciling at the configured
// interval after an immediate first pass.
func (r *Reconciler) Run(ctx context.Context) error {
	r.Pass(ctx)

	if r.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Pass(ctx)
		}
	}
}

// Pass deduplicates every discovered collection once. Returns the
// total number of rows removed.
func (r *Reconciler) Pass(ctx context.Context) int {
	names, err := r.registry.Discover()
	if err != nil {
		logger.Warn("Reconcile discovery failed: %v", err)
		return 0
	}

	total := 0
	for _, name := range names {
		col, err := r.registry.Get(name)
		if err != nil {
			logger.Warn("Reconcile skipping %s: %v", name, err)
			continue
		}

		removed, err := col.Store().Dedup(ctx)
		switch {
		case errors.Is(err, domain.ErrStoreBusy):
			// Another writer holds the store; next cycle gets it.
			logger.Debug("Reconcile skipping %s: store busy", name)
			continue
		case err != nil:
			logger.Warn("Reconcile failed for %s: %v", name, err)
			continue
		}

		if removed > 0 {
			col.ActionLog().Log("dedup", map[string]any{"removed": removed})
			logger.Info("Removed %d duplicate chunks from %s", removed, name)
		}
		total += removed
	}
	return total
}
