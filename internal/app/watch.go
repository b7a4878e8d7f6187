package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/watchlist"
)

// WatchAdd registers a wallet for balance monitoring.
func (a *App) WatchAdd(ctx context.Context, opts WatchOptions) error {
	entry := watchlist.Entry{
		Address: opts.Address,
		Chain:   opts.Chain,
		Label:   opts.Label,
	}
	if opts.ThresholdOverride > 0 {
		override := decimal.NewFromFloat(opts.ThresholdOverride)
		entry.ThresholdOverride = &override
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := store.UpsertWatchEntry(ctx, entry); err != nil {
		return err
	}
	a.Logger.Info().Str("chain", entry.Chain).Msg("watch entry registered")
	return nil
}

// WatchRemove unregisters a wallet.
func (a *App) WatchRemove(ctx context.Context, opts WatchOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := store.DeleteWatchEntry(ctx, opts.Address, opts.Chain); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("no watch entry for %s on %s", opts.Address, opts.Chain)
		}
		return err
	}
	a.Logger.Info().Str("chain", opts.Chain).Msg("watch entry removed")
	return nil
}

// WatchList prints registered watch entries.
func (a *App) WatchList(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	entries, err := store.ListWatchEntries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no watch entries registered")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Chain\tAddress\tThreshold Override\tLabel\tRegistered (UTC)")
	for _, entry := range entries {
		override := ""
		if entry.ThresholdOverride != nil {
			override = entry.ThresholdOverride.String()
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			entry.Chain,
			entry.Address,
			override,
			entry.Label,
			entry.CreatedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}
