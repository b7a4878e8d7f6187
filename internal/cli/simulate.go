package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"gas-topup-alerts/internal/app"
)

var (
	simulateChain   string
	simulateAddress string
	simulateBalance float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run one synthetic entry through the real dispatch path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateChain == "" || simulateAddress == "" {
			return errors.New("--chain and --address must be provided")
		}
		if simulateBalance < 0 {
			return errors.New("--balance cannot be negative")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Chain:   simulateChain,
			Address: simulateAddress,
			Balance: simulateBalance,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateChain, "chain", "", "Chain of the synthetic entry")
	simulateCmd.Flags().StringVar(&simulateAddress, "address", "", "Wallet address of the synthetic entry")
	simulateCmd.Flags().Float64Var(&simulateBalance, "balance", 0, "Fixed balance observed for the entry")
}
