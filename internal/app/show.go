package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gas-topup-alerts/internal/logging"
)

// Show prints recent alert dispatches.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tChain\tAddress\tBalance\tThreshold\tDelivered\tError")

	for _, alert := range alerts {
		errMsg := ""
		if alert.Error != nil {
			errMsg = sanitizeInline(*alert.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.Chain,
			logging.MaskAddress(alert.Address),
			alert.Balance.String(),
			alert.Threshold.String(),
			alert.Delivered,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
