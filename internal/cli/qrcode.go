package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"gas-topup-alerts/internal/app"
)

var (
	qrChain   string
	qrAddress string
	qrAmount  float64
	qrOut     string
)

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Render a top-up deep link as a QR code PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if qrChain == "" || qrAddress == "" {
			return errors.New("--chain and --address must be provided")
		}

		return getApp().GenerateQR(app.QRCodeOptions{
			Chain:   qrChain,
			Address: qrAddress,
			Amount:  qrAmount,
			OutPath: qrOut,
		})
	},
}

func init() {
	qrCmd.Flags().StringVar(&qrChain, "chain", "", "Chain for the deep link")
	qrCmd.Flags().StringVar(&qrAddress, "address", "", "Target wallet address")
	qrCmd.Flags().Float64Var(&qrAmount, "amount", 0, "Suggested top-up amount")
	qrCmd.Flags().StringVar(&qrOut, "out", "", "Path to write the PNG")
}
