package dedup

import (
	"context"
	"time"

	"gas-topup-alerts/internal/storage"
)

// Postgres shares alert state between scheduler instances. The dispatch
// decision is a single conditional upsert, so two instances racing on the
// same key resolve to exactly one dispatch per cooldown window.
type Postgres struct {
	states   storage.AlertStateStore
	cooldown time.Duration
}

// NewPostgres wraps the persisted alert state store.
func NewPostgres(states storage.AlertStateStore, cooldown time.Duration) *Postgres {
	return &Postgres{states: states, cooldown: cooldown}
}

// Transition implements Store.
func (p *Postgres) Transition(ctx context.Context, key Key, belowThreshold bool, now time.Time) (bool, error) {
	if !belowThreshold {
		return false, p.states.ClearAlertState(ctx, key.Address, key.Chain)
	}
	return p.states.AcquireAlertState(ctx, key.Address, key.Chain, now, now.Add(-p.cooldown))
}

var _ Store = (*Postgres)(nil)
