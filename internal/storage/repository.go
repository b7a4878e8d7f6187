package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/watchlist"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertWatchEntrySQL = `INSERT INTO watch_entries (
        address,
        chain,
        threshold_override,
        label
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (address, chain) DO UPDATE
    SET threshold_override = EXCLUDED.threshold_override,
        label              = EXCLUDED.label;`

	deleteWatchEntrySQL = `DELETE FROM watch_entries
    WHERE lower(address) = lower($1) AND chain = $2;`

	listWatchEntriesSQL = `SELECT
        address,
        chain,
        threshold_override,
        label,
        created_at
    FROM watch_entries
    ORDER BY chain, address;`

	// Single-statement check-and-set. The conditional update only fires when
	// the previous alert is older than the cooldown horizon; a suppressed
	// repeat returns no row.
	acquireAlertStateSQL = `INSERT INTO alert_states (
        address,
        chain,
        last_alerted_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (address, chain) DO UPDATE
    SET last_alerted_at = EXCLUDED.last_alerted_at
    WHERE alert_states.last_alerted_at <= $4
    RETURNING last_alerted_at;`

	clearAlertStateSQL = `DELETE FROM alert_states
    WHERE address = $1 AND chain = $2;`

	insertAlertSQL = `INSERT INTO alerts (
        address,
        chain,
        balance,
        threshold,
        suggested_topup,
        deep_link,
        channels,
        delivered,
        error,
        observed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        address,
        chain,
        balance,
        threshold,
        suggested_topup,
        deep_link,
        channels,
        delivered,
        error,
        acknowledged,
        observed_at,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        address,
        chain,
        balance,
        threshold,
        suggested_topup,
        deep_link,
        channels,
        delivered,
        error,
        acknowledged,
        observed_at,
        created_at
    FROM alerts
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	countAlertsSQL = `SELECT COUNT(*) FROM alerts;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// WatchEntryStore defines watchlist registration persistence.
type WatchEntryStore interface {
	UpsertWatchEntry(ctx context.Context, entry watchlist.Entry) error
	DeleteWatchEntry(ctx context.Context, address, chain string) error
	ListWatchEntries(ctx context.Context) ([]watchlist.Entry, error)
}

// AlertStateStore exposes the persisted dedup state primitives.
type AlertStateStore interface {
	AcquireAlertState(ctx context.Context, address, chain string, now, expiredBefore time.Time) (bool, error)
	ClearAlertState(ctx context.Context, address, chain string) error
}

// AlertAuditStore defines operations for the alert audit trail.
type AlertAuditStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
	CountAlerts(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to watch entries, alert state, and the audit trail.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertWatchEntry registers or updates a watch entry.
func (s *Store) UpsertWatchEntry(ctx context.Context, entry watchlist.Entry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var override interface{}
	if entry.ThresholdOverride != nil {
		override = entry.ThresholdOverride.String()
	}

	if _, execErr := pool.Exec(ctx, upsertWatchEntrySQL,
		entry.Address,
		entry.Chain,
		override,
		entry.Label,
	); execErr != nil {
		return fmt.Errorf("upsert watch entry: %w", execErr)
	}
	return nil
}

// DeleteWatchEntry unregisters a watch entry.
func (s *Store) DeleteWatchEntry(ctx context.Context, address, chain string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteWatchEntrySQL, address, chain)
	if execErr != nil {
		return fmt.Errorf("delete watch entry: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListWatchEntries returns all registered entries.
func (s *Store) ListWatchEntries(ctx context.Context) ([]watchlist.Entry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listWatchEntriesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list watch entries: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]watchlist.Entry, 0)
	for rows.Next() {
		var entry watchlist.Entry
		var override sql.NullString
		if err := rows.Scan(
			&entry.Address,
			&entry.Chain,
			&override,
			&entry.Label,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if override.Valid {
			value, convErr := decimal.NewFromString(override.String)
			if convErr != nil {
				return nil, fmt.Errorf("parse threshold override: %w", convErr)
			}
			entry.ThresholdOverride = &value
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// AcquireAlertState atomically records a dispatch for the key unless a
// non-expired alert already holds it. Returns true when the caller may
// dispatch.
func (s *Store) AcquireAlertState(ctx context.Context, address, chain string, now, expiredBefore time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var lastAlertedAt time.Time
	scanErr := pool.QueryRow(ctx, acquireAlertStateSQL, address, chain, now, expiredBefore).Scan(&lastAlertedAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("acquire alert state: %w", scanErr)
	}
	return true, nil
}

// ClearAlertState removes the key's outstanding alert, if any.
func (s *Store) ClearAlertState(ctx context.Context, address, chain string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, clearAlertStateSQL, address, chain); execErr != nil {
		return fmt.Errorf("clear alert state: %w", execErr)
	}
	return nil
}

// InsertAlert persists one dispatch attempt.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	var errMsg interface{}
	if alert.Error != nil {
		errMsg = *alert.Error
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Address,
		alert.Chain,
		alert.Balance.String(),
		alert.Threshold.String(),
		alert.SuggestedTopUp.String(),
		alert.DeepLink,
		alert.Channels,
		alert.Delivered,
		errMsg,
		alert.ObservedAt,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, limit)
}

// ListAlertsBetween lists alerts within a time window.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows, 0)
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

// CountAlerts counts stored alert records.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlertsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alerts: %w", scanErr)
	}
	return count, nil
}

func collectAlerts(rows pgx.Rows, sizeHint int) ([]AlertRecord, error) {
	alerts := make([]AlertRecord, 0, sizeHint)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(rows pgx.Rows) (AlertRecord, error) {
	var (
		rec          AlertRecord
		balanceStr   string
		thresholdStr string
		topUpStr     string
		errMsg       sql.NullString
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Address,
		&rec.Chain,
		&balanceStr,
		&thresholdStr,
		&topUpStr,
		&rec.DeepLink,
		&rec.Channels,
		&rec.Delivered,
		&errMsg,
		&rec.Acknowledged,
		&rec.ObservedAt,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.Balance, convErr = decimal.NewFromString(balanceStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse balance: %w", convErr)
	}
	rec.Threshold, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold: %w", convErr)
	}
	rec.SuggestedTopUp, convErr = decimal.NewFromString(topUpStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse suggested topup: %w", convErr)
	}
	if errMsg.Valid {
		msg := errMsg.String
		rec.Error = &msg
	}

	return rec, nil
}
