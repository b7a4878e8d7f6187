package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"gas-topup-alerts/internal/app"
)

var (
	watchChain    string
	watchAddress  string
	watchOverride float64
	watchLabel    string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage registered watch entries",
}

var watchAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a wallet for balance monitoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireWatchKey(); err != nil {
			return err
		}
		return getApp().WatchAdd(cmd.Context(), app.WatchOptions{
			Address:           watchAddress,
			Chain:             watchChain,
			ThresholdOverride: watchOverride,
			Label:             watchLabel,
		})
	},
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Unregister a wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireWatchKey(); err != nil {
			return err
		}
		return getApp().WatchRemove(cmd.Context(), app.WatchOptions{
			Address: watchAddress,
			Chain:   watchChain,
		})
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered watch entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WatchList(cmd.Context())
	},
}

func requireWatchKey() error {
	if watchChain == "" || watchAddress == "" {
		return errors.New("--chain and --address must be provided")
	}
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{watchAddCmd, watchRemoveCmd} {
		cmd.Flags().StringVar(&watchChain, "chain", "", "Chain of the watch entry")
		cmd.Flags().StringVar(&watchAddress, "address", "", "Wallet address to watch")
	}
	watchAddCmd.Flags().Float64Var(&watchOverride, "threshold-override", 0, "Entry-level threshold replacing the chain default")
	watchAddCmd.Flags().StringVar(&watchLabel, "label", "", "Free-form label for the entry")

	watchCmd.AddCommand(watchAddCmd)
	watchCmd.AddCommand(watchRemoveCmd)
	watchCmd.AddCommand(watchListCmd)
}
