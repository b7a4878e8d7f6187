package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Reader retrieves the native balance for one (chain, address) pair. A read
// must not block past its configured timeout; a timeout is reported as
// transient, never as a zero balance.
type Reader interface {
	ReadBalance(ctx context.Context, chain, address string) (decimal.Decimal, error)
}

// ErrUnknownChain indicates a chain with no configured endpoint.
var ErrUnknownChain = errors.New("balance: unknown chain")

// TransientError marks a failure worth retrying next cycle (network, RPC
// timeout). It must never be interpreted as an observed balance.
type TransientError struct {
	Chain string
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("balance: transient read failure on %s: %v", e.Chain, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether an error is a retriable read failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
