package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gas-topup-alerts/internal/logging"
)

const defaultReadTimeout = 10 * time.Second

// Endpoint describes how to reach one chain.
type Endpoint struct {
	RPCURL   string
	Decimals int32
	Timeout  time.Duration
}

// EVM reads native balances over JSON-RPC. Clients are dialled lazily and
// cached per chain.
type EVM struct {
	endpoints map[string]Endpoint
	logger    zerolog.Logger

	clientMux sync.Mutex
	clients   map[string]*ethclient.Client
}

// NewEVM builds a reader over the configured chain endpoints.
func NewEVM(endpoints map[string]Endpoint, logger zerolog.Logger) *EVM {
	return &EVM{
		endpoints: endpoints,
		logger:    logging.Component(logger, "balance_reader"),
		clients:   make(map[string]*ethclient.Client),
	}
}

// ReadBalance fetches the native balance at the latest block, converted to
// the chain's native units.
func (r *EVM) ReadBalance(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	ep, ok := r.endpoints[chain]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	if ep.RPCURL == "" {
		return decimal.Decimal{}, fmt.Errorf("balance: rpc url not configured for chain %s", chain)
	}
	if !common.IsHexAddress(address) {
		return decimal.Decimal{}, fmt.Errorf("balance: %q is not a valid address", address)
	}

	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := r.getClient(ctx, chain, ep.RPCURL)
	if err != nil {
		return decimal.Decimal{}, &TransientError{Chain: chain, Err: err}
	}

	wei, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Decimal{}, &TransientError{Chain: chain, Err: err}
	}

	decimals := ep.Decimals
	if decimals <= 0 {
		decimals = 18
	}

	amount := decimal.NewFromBigInt(wei, -decimals)
	r.logger.Debug().
		Str("chain", chain).
		Str("address", logging.MaskAddress(address)).
		Str("amount", amount.String()).
		Msg("balance read")
	return amount, nil
}

func (r *EVM) getClient(ctx context.Context, chain, rpcURL string) (*ethclient.Client, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if client, ok := r.clients[chain]; ok {
		return client, nil
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	r.clients[chain] = client
	return client, nil
}

var _ Reader = (*EVM)(nil)
