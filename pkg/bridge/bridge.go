// Package bridge defines the per-chain interface the coordinator drives
// escrows through. One bridge wraps one chain, it delivers that chain's
// escrow events in height order and submits the coordinator's own
// transactions back onto the chain.
package bridge

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/catalogfi/hermes/pkg/escrow"
	"github.com/catalogfi/hermes/pkg/htlc"
	"github.com/catalogfi/hermes/pkg/model"
)

// ErrChainUnreachable is returned by submissions while the chain cannot
// be reached. Submissions failing with it are retryable.
var ErrChainUnreachable = errors.New("chain unreachable")

// CreateSrcEscrow is the funding request for a source-leg escrow. Caller
// is the depositor, its balance covers Amount plus SafetyDeposit.
type CreateSrcEscrow struct {
	OrderHash     common.Hash
	Hashlock      common.Hash
	Maker         string
	Taker         string
	Amount        *big.Int
	SafetyDeposit *big.Int
	Delays        htlc.Delays
	Caller        string
}

// CreateDstEscrow is the funding request for a destination-leg escrow,
// carrying the fee obligations settled at withdrawal.
type CreateDstEscrow struct {
	OrderHash     common.Hash
	Hashlock      common.Hash
	Maker         string
	Taker         string
	Amount        *big.Int
	SafetyDeposit *big.Int
	Delays        htlc.Delays
	Caller        string
	Fees          escrow.Fees
}

// Bridge is the chain-facing port of the coordinator. Subscribe yields
// the chain's escrow events ordered by height, starting from the given
// height so missed events are replayed after reconnects. Submissions
// return the native transaction id or a synchronous failure.
type Bridge interface {
	Chain() model.Chain

	Height(ctx context.Context) (uint64, error)

	Subscribe(ctx context.Context, fromHeight uint64) (<-chan model.Event, error)

	CreateSrcEscrow(ctx context.Context, req CreateSrcEscrow) (string, error)

	CreateDstEscrow(ctx context.Context, req CreateDstEscrow) (string, error)

	Withdraw(ctx context.Context, orderHash common.Hash, caller string, secret []byte) (string, error)

	PublicWithdraw(ctx context.Context, orderHash common.Hash, caller string, secret []byte) (string, error)

	Cancel(ctx context.Context, orderHash common.Hash, caller string) (string, error)

	PublicCancel(ctx context.Context, orderHash common.Hash, caller string) (string, error)

	Rescue(ctx context.Context, orderHash common.Hash, caller string) (string, error)
}
