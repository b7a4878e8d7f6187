package service

import (
	"context"
	"fmt"
	"sync"
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
	"gas-topup-alerts/internal/qr"
	"gas-topup-alerts/internal/scheduler"
	"gas-topup-alerts/internal/storage"
	"gas-topup-alerts/internal/watchlist"
)

// Service orchestrates the watchlist pass: balance read, threshold check,
// dedup transition, deep link build, and alert dispatch.
type Service struct {
	scheduler *scheduler.Scheduler
	source    watchlist.Source
	reader    balance.Reader
	policy    *policy.Policy
	states    dedup.Store
	builder   *deeplink.Builder
	notifier  alerting.Notifier
	audit     storage.AlertAuditStore
	logger    zerolog.Logger

	alertsOn    bool
	channels    []string
	qrEnabled   bool
	qrOpts      qr.Options
	workers     int
	passTimeout time.Duration
	locker      storage.AdvisoryLocker
	lockKey     int64

	now func() time.Time
}

// New constructs the watchlist monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, source watchlist.Source, reader balance.Reader, pol *policy.Policy, states dedup.Store, builder *deeplink.Builder, notifier alerting.Notifier, audit storage.AlertAuditStore, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := audit.(storage.AdvisoryLocker); ok {
		locker = l
	}

	workers := cfg.Scheduler.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Service{
		scheduler:   sched,
		source:      source,
		reader:      reader,
		policy:      pol,
		states:      states,
		builder:     builder,
		notifier:    notifier,
		audit:       audit,
		logger:      logging.Component(logger, "service"),
		alertsOn:    cfg.Alerting.Enabled,
		channels:    cfg.Alerting.Channels,
		qrEnabled:   cfg.QR.Enabled,
		qrOpts:      qr.Options{Level: cfg.QR.Level, Size: cfg.QR.Size},
		workers:     workers,
		passTimeout: cfg.Scheduler.PassTimeout,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
		now:         time.Now,
	}
}

// Run begins the periodic watchlist loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessPass)
}

// ProcessPass executes a single scheduled pass, holding the advisory lock
// when one is configured so concurrent instances do not double-evaluate.
func (s *Service) ProcessPass(ctx context.Context, at time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("pass", at).Msg("skip pass because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	summary, err := s.RunPass(ctx, at)
	s.logSummary(summary)
	return err
}

// ChainStats aggregates per-chain outcomes of one pass.
type ChainStats struct {
	OK             int
	Alerted        int
	Transient      int
	Failed         int
	DeliveryFailed int
}

// Summary is the operator-facing pass report.
type Summary struct {
	StartedAt time.Time
	Duration  time.Duration
	Entries   int
	Invalid   int
	Deferred  int
	PerChain  map[string]ChainStats
}

// Totals folds the per-chain stats into one.
func (s Summary) Totals() ChainStats {
	var total ChainStats
	for _, st := range s.PerChain {
		total.OK += st.OK
		total.Alerted += st.Alerted
		total.Transient += st.Transient
		total.Failed += st.Failed
		total.DeliveryFailed += st.DeliveryFailed
	}
	return total
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeAlerted
	outcomeTransient
	outcomeFailed
	outcomeDeliveryFailed
	outcomeStoreFatal
)

type entryResult struct {
	entry   watchlist.Entry
	outcome outcome
	err     error
}

// RunPass evaluates every watch entry once. Per-entry failures are isolated;
// only alert-state store errors abort the pass, since they threaten the
// dedup invariant. Entries not started before the pass deadline are deferred
// to the next pass.
func (s *Service) RunPass(ctx context.Context, at time.Time) (Summary, error) {
	started := time.Now()

	if s.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.passTimeout)
		defer cancel()
	}

	entries, err := s.source.List(ctx)
	if err != nil {
		return Summary{StartedAt: at, PerChain: map[string]ChainStats{}}, fmt.Errorf("list watchlist: %w", err)
	}

	summary := Summary{
		StartedAt: at,
		Entries:   len(entries),
		PerChain:  make(map[string]ChainStats),
	}

	valid := make([]watchlist.Entry, 0, len(entries))
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			summary.Invalid++
			s.logger.Warn().Err(err).
				Str("chain", entry.Chain).
				Str("address", logging.MaskAddress(entry.Address)).
				Msg("watch entry excluded from pass")
			continue
		}
		valid = append(valid, entry)
	}

	results := make(chan entryResult, len(valid))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	launched := 0
	for _, entry := range valid {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			launched++
			wg.Add(1)
			go func(e watchlist.Entry) {
				defer wg.Done()
				defer func() { <-sem }()
				results <- s.evaluateEntry(ctx, e, at)
			}(entry)
			continue
		}
		break
	}
	summary.Deferred = len(valid) - launched

	wg.Wait()
	close(results)

	var fatal error
	for res := range results {
		stats := summary.PerChain[res.entry.Chain]
		switch res.outcome {
		case outcomeOK:
			stats.OK++
		case outcomeAlerted:
			stats.Alerted++
		case outcomeTransient:
			stats.Transient++
		case outcomeFailed:
			stats.Failed++
		case outcomeDeliveryFailed:
			stats.Alerted++
			stats.DeliveryFailed++
		case outcomeStoreFatal:
			stats.Failed++
			if fatal == nil {
				fatal = res.err
			}
		}
		summary.PerChain[res.entry.Chain] = stats
	}

	summary.Duration = time.Since(started)
	if fatal != nil {
		return summary, fmt.Errorf("alert state store: %w", fatal)
	}
	return summary, nil
}

func (s *Service) evaluateEntry(ctx context.Context, entry watchlist.Entry, at time.Time) entryResult {
	log := s.logger.With().
		Str("chain", entry.Chain).
		Str("address", logging.MaskAddress(entry.Address)).
		Logger()

	amount, err := s.reader.ReadBalance(ctx, entry.Chain, entry.Address)
	if err != nil {
		if balance.IsTransient(err) {
			// Unknown balance: skip this cycle, never treat as zero.
			log.Warn().Err(err).Msg("balance read skipped this cycle")
			return entryResult{entry: entry, outcome: outcomeTransient, err: err}
		}
		log.Error().Err(err).Msg("balance read failed")
		return entryResult{entry: entry, outcome: outcomeFailed, err: err}
	}

	verdict, err := s.policy.Evaluate(entry.Chain, amount, entry.ThresholdOverride)
	if err != nil {
		log.Error().Err(err).Msg("threshold evaluation failed")
		return entryResult{entry: entry, outcome: outcomeFailed, err: err}
	}

	if !s.alertsOn {
		if verdict.Below {
			log.Info().Str("balance", amount.String()).Msg("balance below threshold; alerting disabled")
		}
		return entryResult{entry: entry, outcome: outcomeOK}
	}

	dispatch, err := s.states.Transition(ctx, dedup.NewKey(entry.Address, entry.Chain), verdict.Below, s.now())
	if err != nil {
		return entryResult{entry: entry, outcome: outcomeStoreFatal, err: fmt.Errorf("transition alert state: %w", err)}
	}
	if !dispatch {
		return entryResult{entry: entry, outcome: outcomeOK}
	}

	return s.dispatch(ctx, log, entry, amount, verdict, at)
}

func (s *Service) dispatch(ctx context.Context, log zerolog.Logger, entry watchlist.Entry, amount decimal.Decimal, verdict policy.Verdict, at time.Time) entryResult {
	link := s.builder.Build(entry.Chain, verdict.SuggestedTopUp, entry.Address)

	note := alerting.Notification{
		Address:        entry.Address,
		Chain:          entry.Chain,
		Balance:        amount,
		Threshold:      verdict.Threshold,
		SuggestedTopUp: verdict.SuggestedTopUp,
		DeepLink:       link,
		ObservedAt:     at,
		Channels:       s.channels,
		Label:          entry.Label,
	}

	if s.qrEnabled {
		png, err := qr.Encode(link, s.qrOpts)
		if err != nil {
			log.Error().Err(err).Msg("qr render failed; sending text only")
		} else {
			note.QRPNG = png
		}
	}

	var deliverErr error
	if s.notifier != nil {
		deliverErr = s.notifier.Notify(ctx, note)
	}
	if deliverErr != nil {
		// Alerted state stands: the cooldown expiry is the retry, so a
		// flapping channel cannot turn into an alert storm.
		log.Error().Err(deliverErr).Msg("alert delivery failed")
	}

	if s.audit != nil {
		record := storage.AlertRecord{
			Address:        entry.Address,
			Chain:          entry.Chain,
			Balance:        amount,
			Threshold:      verdict.Threshold,
			SuggestedTopUp: verdict.SuggestedTopUp,
			DeepLink:       link,
			Channels:       s.channels,
			Delivered:      deliverErr == nil,
			ObservedAt:     at,
		}
		if deliverErr != nil {
			msg := deliverErr.Error()
			record.Error = &msg
		}
		if _, err := s.audit.InsertAlert(ctx, record); err != nil {
			log.Error().Err(err).Msg("failed to persist alert record")
		}
	}

	if deliverErr != nil {
		return entryResult{entry: entry, outcome: outcomeDeliveryFailed, err: deliverErr}
	}

	log.Info().
		Str("balance", amount.String()).
		Str("threshold", verdict.Threshold.String()).
		Msg("alert dispatched")
	return entryResult{entry: entry, outcome: outcomeAlerted}
}

func (s *Service) logSummary(sum Summary) {
	totals := sum.Totals()
	s.logger.Info().
		Time("pass", sum.StartedAt).
		Dur("duration", sum.Duration).
		Int("entries", sum.Entries).
		Int("invalid", sum.Invalid).
		Int("deferred", sum.Deferred).
		Int("ok", totals.OK).
		Int("alerts", totals.Alerted).
		Int("transient_skips", totals.Transient).
		Int("failed", totals.Failed).
		Int("delivery_failed", totals.DeliveryFailed).
		Msg("pass complete")

	for chain, st := range sum.PerChain {
		s.logger.Debug().
			Str("chain", chain).
			Int("ok", st.OK).
			Int("alerts", st.Alerted).
			Int("transient_skips", st.Transient).
			Int("failed", st.Failed).
			Int("delivery_failed", st.DeliveryFailed).
			Msg("per-chain pass stats")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
