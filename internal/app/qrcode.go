package app

import (
	"errors"
	"os"

	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/qr"
)

// GenerateQR renders a top-up deep link as a QR PNG on disk, for embedding
// in dashboards or printed runbooks.
func (a *App) GenerateQR(opts QRCodeOptions) error {
	if opts.OutPath == "" {
		return errors.New("--out path is required")
	}
	if opts.Amount <= 0 {
		return errors.New("--amount must be greater than zero")
	}

	builder, err := a.newBuilder()
	if err != nil {
		return err
	}

	link := builder.Build(opts.Chain, decimal.NewFromFloat(opts.Amount), opts.Address)
	png, err := qr.Encode(link, qr.Options{Level: a.Config.QR.Level, Size: a.Config.QR.Size})
	if err != nil {
		return err
	}

	if err := ensureDir(opts.OutPath); err != nil {
		return err
	}
	if err := os.WriteFile(opts.OutPath, png, 0o644); err != nil {
		return err
	}

	a.Logger.Info().Str("out", opts.OutPath).Msg("qr code written")
	return nil
}
