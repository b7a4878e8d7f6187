package watchlist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Entry is one (address, chain) pair registered for balance monitoring.
type Entry struct {
	Address           string
	Chain             string
	ThresholdOverride *decimal.Decimal
	Label             string
	CreatedAt         time.Time
}

// Key identifies an entry for dedup and logging purposes.
func (e Entry) Key() string {
	return e.Chain + ":" + strings.ToLower(e.Address)
}

// Validate rejects malformed entries before they enter a pass.
func (e Entry) Validate() error {
	if e.Chain == "" {
		return fmt.Errorf("watch entry %q: chain is required", e.Address)
	}
	if !common.IsHexAddress(e.Address) {
		return fmt.Errorf("watch entry on %s: %q is not a valid address", e.Chain, e.Address)
	}
	if e.ThresholdOverride != nil && e.ThresholdOverride.IsNegative() {
		return fmt.Errorf("watch entry %s: threshold override cannot be negative", e.Key())
	}
	return nil
}

// Source supplies the set of entries a pass should evaluate.
type Source interface {
	List(ctx context.Context) ([]Entry, error)
}

// StaticSource serves a fixed entry slice, used for config-defined
// watchlists and synthetic fixtures.
type StaticSource struct {
	entries []Entry
}

// NewStaticSource wraps fixed entries in a Source.
func NewStaticSource(entries []Entry) *StaticSource {
	return &StaticSource{entries: entries}
}

// List returns a copy of the configured entries.
func (s *StaticSource) List(ctx context.Context) ([]Entry, error) {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

var _ Source = (*StaticSource)(nil)
