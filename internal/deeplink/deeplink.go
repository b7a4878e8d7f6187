// Package deeplink builds the canonical top-up URLs consumed by the
// frontend. The contract with the frontend is limited to the query parameter
// names (chain, amount, address) and their percent-encoding.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const linkPath = "/deeplink"

// Builder derives top-up URLs under a configured frontend origin.
type Builder struct {
	origin string
}

// NewBuilder validates the origin and returns a Builder. The origin is
// deployment configuration so the same builder serves every environment.
func NewBuilder(origin string) (*Builder, error) {
	origin = strings.TrimRight(origin, "/")
	if origin == "" {
		return nil, errors.New("deeplink: base origin is required")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("deeplink: parse base origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("deeplink: base origin %q must be an absolute URL", origin)
	}
	return &Builder{origin: origin}, nil
}

// Build derives the canonical top-up URL. Same inputs always yield the same
// URL; all parameter values are percent-encoded. The parameter order
// (chain, amount, address) is part of the frontend contract.
func (b *Builder) Build(chain string, amount decimal.Decimal, address string) string {
	return b.origin + linkPath +
		"?chain=" + url.QueryEscape(chain) +
		"&amount=" + url.QueryEscape(amount.String()) +
		"&address=" + url.QueryEscape(address)
}

// Link is a decoded top-up deep link.
type Link struct {
	Chain   string
	Amount  decimal.Decimal
	Address string
}

// Parse inverts Build, recovering the exact (chain, amount, address) triple.
func Parse(raw string) (Link, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("deeplink: parse url: %w", err)
	}
	if !strings.HasSuffix(u.Path, linkPath) {
		return Link{}, fmt.Errorf("deeplink: unexpected path %q", u.Path)
	}

	q := u.Query()
	chain := q.Get("chain")
	address := q.Get("address")
	rawAmount := q.Get("amount")
	if chain == "" || address == "" || rawAmount == "" {
		return Link{}, errors.New("deeplink: chain, amount, and address are all required")
	}

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return Link{}, fmt.Errorf("deeplink: parse amount: %w", err)
	}

	return Link{Chain: chain, Amount: amount, Address: address}, nil
}
