// Package dedup tracks alert state per watch entry and enforces the
// at-most-one-dispatch-per-cooldown guarantee.
//
// Each (address, chain) key moves between two states: Quiet (no outstanding
// alert) and Alerted (alert dispatched at time T). A below-threshold
// observation while Quiet, or while Alerted with the cooldown elapsed,
// permits a dispatch. A recovery observation clears the state so the next
// drop alerts immediately.
package dedup

import (
	"context"
	"strings"
	"time"
)

// Key identifies alert state. Granularity is per (address, chain): the same
// wallet on two chains holds two independent gas balances.
type Key struct {
	Address string
	Chain   string
}

// NewKey normalises the address so differently-cased registrations share
// state.
func NewKey(address, chain string) Key {
	return Key{Address: strings.ToLower(address), Chain: chain}
}

// Store applies one observation atomically and reports whether an alert
// should be dispatched for it. The check and the state write are a single
// operation; two concurrent passes must never both get dispatch=true for the
// same key inside one cooldown window.
type Store interface {
	Transition(ctx context.Context, key Key, belowThreshold bool, now time.Time) (dispatch bool, err error)
}
