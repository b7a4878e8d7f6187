package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/alerting"
	"gas-topup-alerts/internal/balance"
	"gas-topup-alerts/internal/config"
	"gas-topup-alerts/internal/dedup"
	"gas-topup-alerts/internal/deeplink"
	"gas-topup-alerts/internal/logging"
	"gas-topup-alerts/internal/policy"
	"gas-topup-alerts/internal/scheduler"
	"gas-topup-alerts/internal/service"
	"gas-topup-alerts/internal/storage"
	"gas-topup-alerts/internal/watchlist"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newReader() balance.Reader {
	endpoints := make(map[string]balance.Endpoint, len(a.Config.Chains))
	for name, chain := range a.Config.Chains {
		endpoints[name] = balance.Endpoint{
			RPCURL:   chain.RPCURL,
			Decimals: chain.ChainDecimals(),
			Timeout:  chain.RequestTimeout,
		}
	}
	return balance.NewEVM(endpoints, a.Logger)
}

func (a *App) newPolicy() *policy.Policy {
	rules := make([]policy.Rule, 0, len(a.Config.Chains))
	for name, chain := range a.Config.Chains {
		rules = append(rules, policy.Rule{
			Chain:          name,
			MinBalance:     decimal.NewFromFloat(chain.MinBalance),
			SuggestedTopUp: decimal.NewFromFloat(chain.SuggestedTopUp),
		})
	}
	return policy.New(rules)
}

func (a *App) newBuilder() (*deeplink.Builder, error) {
	return deeplink.NewBuilder(a.Config.DeepLink.BaseOrigin)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) configSource() *watchlist.StaticSource {
	entries := make([]watchlist.Entry, 0, len(a.Config.Watchlist.Entries))
	for _, e := range a.Config.Watchlist.Entries {
		entry := watchlist.Entry{
			Address: e.Address,
			Chain:   e.Chain,
			Label:   e.Label,
		}
		if e.ThresholdOverride > 0 {
			override := decimal.NewFromFloat(e.ThresholdOverride)
			entry.ThresholdOverride = &override
		}
		entries = append(entries, entry)
	}
	return watchlist.NewStaticSource(entries)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// requireStore opens the store and fails when the database is not configured.
func (a *App) requireStore(ctx context.Context) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured")
	}
	return store, closeStore, nil
}

// Run executes the long-running watchlist monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; alert state is in-memory only")
	}
	if closeStore != nil {
		defer closeStore()
	}

	var source watchlist.Source
	if a.Config.Watchlist.Source == "database" {
		if store == nil {
			return errors.New("watchlist.source=database requires database.dsn")
		}
		source = databaseSource{store: store}
	} else {
		source = a.configSource()
	}

	// The shared Postgres state store preserves the one-dispatch-per-cooldown
	// invariant across instances; the memory store covers single-instance
	// deployments.
	var states dedup.Store
	if store != nil {
		states = dedup.NewPostgres(store, a.Config.Alerting.Cooldown)
	} else {
		states = dedup.NewMemory(a.Config.Alerting.Cooldown)
	}

	builder, err := a.newBuilder()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var audit storage.AlertAuditStore
	if store != nil {
		audit = store
	}

	svc := service.New(a.Config, sched, source, a.newReader(), a.newPolicy(), states, builder, a.newNotifier(), audit, a.Logger)

	a.Logger.Info().Msg("starting watchlist monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("watchlist monitoring service stopped")
	return nil
}

// databaseSource adapts the watch entry repository to a watchlist source.
type databaseSource struct {
	store storage.WatchEntryStore
}

func (d databaseSource) List(ctx context.Context) ([]watchlist.Entry, error) {
	entries, err := d.store.ListWatchEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	return entries, nil
}

// ExportOptions hold parameters for exporting the alert audit trail.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions describe the synthetic entry for a simulated pass.
type SimulateOptions struct {
	Chain   string
	Address string
	Balance float64
}

// QRCodeOptions configure standalone QR rendering of a deep link.
type QRCodeOptions struct {
	Chain   string
	Address string
	Amount  float64
	OutPath string
}

// WatchOptions identify a watch entry for registration commands.
type WatchOptions struct {
	Address           string
	Chain             string
	ThresholdOverride float64
	Label             string
}
