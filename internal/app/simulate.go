package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/balance"
	"gas-topup-alerts/internal/dedup"
	"gas-topup-alerts/internal/service"
	"gas-topup-alerts/internal/watchlist"
)

// SimulateAlert drives the real dispatch path over a single synthetic entry
// with a fixed balance. It exercises policy, dedup, deep link build, and
// delivery exactly as a scheduled pass would.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	entry := watchlist.Entry{Address: opts.Address, Chain: opts.Chain, Label: "simulated"}
	if err := entry.Validate(); err != nil {
		return err
	}

	builder, err := a.newBuilder()
	if err != nil {
		return err
	}

	reader := &staticBalanceReader{amount: decimal.NewFromFloat(opts.Balance)}
	source := watchlist.NewStaticSource([]watchlist.Entry{entry})
	states := dedup.NewMemory(a.Config.Alerting.Cooldown)

	svc := service.New(a.Config, nil, source, reader, a.newPolicy(), states, builder, notifier, nil, a.Logger)

	at := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	summary, err := svc.RunPass(ctx, at)
	if err != nil {
		return err
	}

	totals := summary.Totals()
	switch {
	case totals.DeliveryFailed > 0:
		return errors.New("alert delivery failed; see logs")
	case totals.Failed > 0:
		return errors.New("simulated entry failed evaluation; see logs")
	case totals.Alerted == 0:
		a.Logger.Info().Msg("simulated balance not below threshold; no alert dispatched")
	}
	return nil
}

// staticBalanceReader returns a fixed balance for any entry.
type staticBalanceReader struct {
	amount decimal.Decimal
}

func (s *staticBalanceReader) ReadBalance(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	return s.amount, nil
}

var _ balance.Reader = (*staticBalanceReader)(nil)
