package app

import (
	"context"
	"errors"
	"time"
)

// PruneOptions bound the retention window for the alert audit trail.
type PruneOptions struct {
	OlderThan time.Duration
}

// Prune deletes audit records older than the retention window.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.OlderThan <= 0 {
		return errors.New("--older-than must be greater than zero")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().Add(-opts.OlderThan)
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return err
	}

	remaining, err := store.CountAlerts(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Time("cutoff", cutoff).
		Int64("remaining", remaining).
		Msg("alert audit trail pruned")
	return nil
}
