package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/alerting"
	"gas-topup-alerts/internal/balance"
	"gas-topup-alerts/internal/config"
	"gas-topup-alerts/internal/dedup"
	"gas-topup-alerts/internal/deeplink"
	"gas-topup-alerts/internal/policy"
	"gas-topup-alerts/internal/storage"
	"gas-topup-alerts/internal/watchlist"
)

const testAddress = "0xAbC0000000000000000000000000000000000999"

type fakeReader struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	errs     map[string]error
}

func (f *fakeReader) set(chain, address string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = make(map[string]decimal.Decimal)
	}
	f.balances[chain+":"+address] = amount
}

func (f *fakeReader) fail(chain, address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[chain+":"+address] = err
}

func (f *fakeReader) ReadBalance(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := chain + ":" + address
	if err, ok := f.errs[key]; ok {
		return decimal.Decimal{}, err
	}
	if amount, ok := f.balances[key]; ok {
		return amount, nil
	}
	return decimal.Decimal{}, &balance.TransientError{Chain: chain, Err: errors.New("no fixture balance")}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.notes = append(r.notes, note)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

type recordingAudit struct {
	mu      sync.Mutex
	records []storage.AlertRecord
}

func (r *recordingAudit) InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, alert)
	return alert, nil
}

func (r *recordingAudit) ListRecentAlerts(ctx context.Context, limit int) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (r *recordingAudit) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (r *recordingAudit) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	return nil
}

func (r *recordingAudit) CountAlerts(ctx context.Context) (int64, error) { return 0, nil }

type failingStateStore struct{}

func (failingStateStore) Transition(ctx context.Context, key dedup.Key, below bool, now time.Time) (bool, error) {
	return false, errors.New("connection lost")
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{Interval: time.Minute, Workers: 4},
		Alerting: config.AlertingConfig{
			Enabled:  true,
			Cooldown: time.Hour,
			Channels: []string{"telegram"},
		},
	}
}

func testPolicy() *policy.Policy {
	return policy.New([]policy.Rule{
		{Chain: "base", MinBalance: decimal.RequireFromString("0.001"), SuggestedTopUp: decimal.NewFromInt(5)},
		{Chain: "ethereum", MinBalance: decimal.RequireFromString("0.01"), SuggestedTopUp: decimal.RequireFromString("0.05")},
	})
}

func testBuilder(t *testing.T) *deeplink.Builder {
	t.Helper()
	b, err := deeplink.NewBuilder("https://app.gastopup.example")
	if err != nil {
		t.Fatalf("builder construction failed: %v", err)
	}
	return b
}

type harness struct {
	svc      *Service
	reader   *fakeReader
	notifier *recordingNotifier
	audit    *recordingAudit
	clock    time.Time
}

func newHarness(t *testing.T, entries []watchlist.Entry) *harness {
	t.Helper()
	h := &harness{
		reader:   &fakeReader{},
		notifier: &recordingNotifier{},
		audit:    &recordingAudit{},
		clock:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	h.svc = New(
		testConfig(),
		nil,
		watchlist.NewStaticSource(entries),
		h.reader,
		testPolicy(),
		dedup.NewMemory(time.Hour),
		testBuilder(t),
		h.notifier,
		h.audit,
		zerolog.Nop(),
	)
	h.svc.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) runPass(t *testing.T) Summary {
	t.Helper()
	summary, err := h.svc.RunPass(context.Background(), h.clock)
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	return summary
}

func baseEntry() watchlist.Entry {
	return watchlist.Entry{Address: testAddress, Chain: "base"}
}

func TestPassDispatchesBelowThreshold(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))

	summary := h.runPass(t)

	if got := summary.Totals().Alerted; got != 1 {
		t.Fatalf("expected 1 alert, got %d", got)
	}
	if h.notifier.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", h.notifier.count())
	}

	note := h.notifier.notes[0]
	want := "deeplink?chain=base&amount=5&address=" + testAddress
	if !strings.Contains(note.DeepLink, want) {
		t.Fatalf("deep link should carry pre-filled parameters:\n got %s\nwant substring %s", note.DeepLink, want)
	}
	if !note.Balance.Equal(decimal.RequireFromString("0.0001")) {
		t.Fatalf("notification balance mismatch: %s", note.Balance)
	}
	if !note.Threshold.Equal(decimal.RequireFromString("0.001")) {
		t.Fatalf("notification threshold mismatch: %s", note.Threshold)
	}
}

func TestSecondPassWithinCooldownSuppressed(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))

	h.runPass(t)
	h.clock = h.clock.Add(time.Second)
	summary := h.runPass(t)

	if h.notifier.count() != 1 {
		t.Fatalf("second pass 1s later must not re-dispatch, got %d notifications", h.notifier.count())
	}
	if got := summary.Totals().Alerted; got != 0 {
		t.Fatalf("suppressed pass should report 0 alerts, got %d", got)
	}
	if got := summary.Totals().OK; got != 1 {
		t.Fatalf("suppressed entry still counts as evaluated, got ok=%d", got)
	}
}

func TestRecoveryResetsStateAndRedispatches(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))
	h.runPass(t)

	// Balance recovers above threshold.
	h.reader.set("base", testAddress, decimal.RequireFromString("0.01"))
	h.clock = h.clock.Add(time.Minute)
	h.runPass(t)

	// A later drop must alert again immediately, well within the original
	// cooldown window.
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))
	h.clock = h.clock.Add(time.Minute)
	h.runPass(t)

	if h.notifier.count() != 2 {
		t.Fatalf("recovery should reset dedup state; expected 2 notifications, got %d", h.notifier.count())
	}
}

func TestReAlertAfterCooldown(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))

	h.runPass(t)
	h.clock = h.clock.Add(61 * time.Minute)
	h.runPass(t)

	if h.notifier.count() != 2 {
		t.Fatalf("expired cooldown with balance still low should re-alert, got %d", h.notifier.count())
	}
}

func TestTransientReadSkipsCycle(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.fail("base", testAddress, &balance.TransientError{Chain: "base", Err: errors.New("rpc timeout")})

	summary := h.runPass(t)

	if got := summary.PerChain["base"].Transient; got != 1 {
		t.Fatalf("expected 1 transient skip, got %d", got)
	}
	if h.notifier.count() != 0 {
		t.Fatal("a transient read must never be treated as a zero balance")
	}
}

func TestConfigurationErrorIsolatedPerEntry(t *testing.T) {
	noPolicy := watchlist.Entry{Address: "0x1111111111111111111111111111111111111111", Chain: "solana"}
	h := newHarness(t, []watchlist.Entry{noPolicy, baseEntry()})
	h.reader.set("solana", noPolicy.Address, decimal.NewFromInt(1))
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))

	summary := h.runPass(t)

	if got := summary.PerChain["solana"].Failed; got != 1 {
		t.Fatalf("missing policy should fail that entry only, got failed=%d", got)
	}
	if h.notifier.count() != 1 {
		t.Fatalf("healthy entry should still dispatch, got %d notifications", h.notifier.count())
	}
}

func TestMalformedEntryExcluded(t *testing.T) {
	bad := watchlist.Entry{Address: "not-an-address", Chain: "base"}
	h := newHarness(t, []watchlist.Entry{bad, baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))

	summary := h.runPass(t)

	if summary.Invalid != 1 {
		t.Fatalf("malformed entry should be reported invalid, got %d", summary.Invalid)
	}
	if h.notifier.count() != 1 {
		t.Fatalf("valid entry should still be processed, got %d notifications", h.notifier.count())
	}
}

func TestDeliveryFailureDoesNotRollBackAlertedState(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))
	h.notifier.err = errors.New("channel down")

	summary := h.runPass(t)
	if got := summary.Totals().DeliveryFailed; got != 1 {
		t.Fatalf("expected 1 delivery failure, got %d", got)
	}
	if len(h.audit.records) != 1 || h.audit.records[0].Delivered {
		t.Fatalf("audit should record the failed dispatch, got %+v", h.audit.records)
	}

	// Channel recovers, but the entry is still inside the cooldown: the
	// dedup state must hold, so no immediate retry storm.
	h.notifier.err = nil
	h.clock = h.clock.Add(time.Minute)
	h.runPass(t)
	if h.notifier.count() != 0 {
		t.Fatal("delivery failure must not reset cooldown state")
	}

	// After the cooldown expires the natural retry fires.
	h.clock = h.clock.Add(2 * time.Hour)
	h.runPass(t)
	if h.notifier.count() != 1 {
		t.Fatalf("cooldown expiry should retry delivery, got %d", h.notifier.count())
	}
}

func TestAlertStateStoreErrorFailsPass(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))
	h.svc.states = failingStateStore{}

	if _, err := h.svc.RunPass(context.Background(), h.clock); err == nil {
		t.Fatal("alert state store errors must abort the pass")
	}
	if h.notifier.count() != 0 {
		t.Fatal("no dispatch may happen when the state store fails")
	}
}

func TestAlertingDisabledEvaluatesWithoutDispatch(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))
	h.svc.alertsOn = false

	summary := h.runPass(t)
	if got := summary.Totals().OK; got != 1 {
		t.Fatalf("entry should evaluate cleanly, got ok=%d", got)
	}
	if h.notifier.count() != 0 {
		t.Fatal("no dispatch when alerting is disabled")
	}
}

func TestAuditRecordsSuccessfulDispatch(t *testing.T) {
	h := newHarness(t, []watchlist.Entry{baseEntry()})
	h.reader.set("base", testAddress, decimal.RequireFromString("0.0001"))

	h.runPass(t)

	if len(h.audit.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(h.audit.records))
	}
	rec := h.audit.records[0]
	if !rec.Delivered || rec.Error != nil {
		t.Fatalf("successful dispatch should be recorded delivered, got %+v", rec)
	}
	if rec.Chain != "base" || rec.Address != testAddress {
		t.Fatalf("audit record identity mismatch: %+v", rec)
	}
}

func TestConcurrentEntriesAllEvaluated(t *testing.T) {
	entries := []watchlist.Entry{
		{Address: "0x1000000000000000000000000000000000000001", Chain: "base"},
		{Address: "0x1000000000000000000000000000000000000002", Chain: "base"},
		{Address: "0x1000000000000000000000000000000000000003", Chain: "ethereum"},
		{Address: "0x1000000000000000000000000000000000000004", Chain: "ethereum"},
	}
	h := newHarness(t, entries)
	for _, e := range entries {
		h.reader.set(e.Chain, e.Address, decimal.NewFromInt(0))
	}

	summary := h.runPass(t)
	if got := summary.Totals().Alerted; got != 4 {
		t.Fatalf("all zero-balance entries should alert, got %d", got)
	}
	if h.notifier.count() != 4 {
		t.Fatalf("expected 4 notifications, got %d", h.notifier.count())
	}
}
