package cli

import (
	"time"

	"github.com/spf13/cobra"

	"gas-topup-alerts/internal/app"
)

var pruneOlderThan time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete alert audit records older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Prune(cmd.Context(), app.PruneOptions{
			OlderThan: pruneOlderThan,
		})
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Retention window; records older than this are deleted")
}
