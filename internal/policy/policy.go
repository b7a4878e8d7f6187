package policy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNoPolicy indicates a chain without a configured threshold rule. The
// affected entry is skipped; the pass continues.
var ErrNoPolicy = errors.New("policy: no threshold rule for chain")

// Rule is the per-chain threshold policy.
type Rule struct {
	Chain          string
	MinBalance     decimal.Decimal
	SuggestedTopUp decimal.Decimal
}

// Verdict is the outcome of evaluating one balance sample.
type Verdict struct {
	Below          bool
	Threshold      decimal.Decimal
	SuggestedTopUp decimal.Decimal
}

// Policy holds the process-wide threshold rules, read-only during a run.
type Policy struct {
	rules map[string]Rule
}

// New builds a Policy from per-chain rules.
func New(rules []Rule) *Policy {
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		m[r.Chain] = r
	}
	return &Policy{rules: m}
}

// Evaluate compares a balance against the chain's threshold. An entry-level
// override replaces the threshold only; the suggested top-up always comes
// from the chain rule. Equality does not trigger.
func (p *Policy) Evaluate(chain string, amount decimal.Decimal, override *decimal.Decimal) (Verdict, error) {
	rule, ok := p.rules[chain]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: %s", ErrNoPolicy, chain)
	}

	threshold := rule.MinBalance
	if override != nil {
		threshold = *override
	}

	return Verdict{
		Below:          amount.LessThan(threshold),
		Threshold:      threshold,
		SuggestedTopUp: rule.SuggestedTopUp,
	}, nil
}

// Rule returns the configured rule for a chain.
func (p *Policy) Rule(chain string) (Rule, bool) {
	rule, ok := p.rules[chain]
	return rule, ok
}
