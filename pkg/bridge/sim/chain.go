// Package sim is an in-memory chain used for local mode and tests. It
// hosts the escrow state machine and registry, keeps a height-ordered
// event log, and supports replaying the log from any height, the same
// guarantees the coordinator expects from a real chain adapter.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/catalogfi/hermes/pkg/bridge"
	"github.com/catalogfi/hermes/pkg/escrow"
	"github.com/catalogfi/hermes/pkg/model"
)

var ErrUnknownOrder = errors.New("no escrow for order")

// Chain is a single simulated chain. All operations commit atomically
// under the chain lock, matching the host-chain atomicity the escrow
// state machine assumes.
type Chain struct {
	chain  model.Chain
	logger *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	now      time.Time
	height   uint64
	offline  bool
	vault    *escrow.Vault
	registry *escrow.Registry
	escrows  map[common.Hash]*escrow.Escrow
	log      []model.Event
	admin    string
}

func NewChain(chain model.Chain, admin string, start time.Time, logger *zap.Logger) *Chain {
	c := &Chain{
		chain:    chain,
		logger:   logger.With(zap.String("sim-chain", string(chain))),
		now:      start,
		vault:    escrow.NewVault(),
		registry: escrow.NewRegistry(),
		escrows:  map[common.Hash]*escrow.Escrow{},
		admin:    admin,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Chain) Chain() model.Chain { return c.chain }

// Vault exposes the chain's balance book for funding accounts and
// asserting balances in tests.
func (c *Chain) Vault() *escrow.Vault { return c.vault }

// Registry exposes the chain's escrow registry.
func (c *Chain) Registry() *escrow.Registry { return c.registry }

// Now returns the chain's current timestamp.
func (c *Chain) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the chain clock forward. The chain's timestamp oracle is
// monotonically non-decreasing, negative deltas are ignored.
func (c *Chain) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetOffline toggles connectivity. While offline every submission fails
// with ErrChainUnreachable and no new events are delivered.
func (c *Chain) SetOffline(offline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = offline
	if !offline {
		c.cond.Broadcast()
	}
}

func (c *Chain) Height(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return 0, bridge.ErrChainUnreachable
	}
	return c.height, nil
}

// Subscribe delivers the event log from fromHeight onwards, then live
// events, always in height order. The channel closes when ctx is done.
func (c *Chain) Subscribe(ctx context.Context, fromHeight uint64) (<-chan model.Event, error) {
	events := make(chan model.Event, 64)
	go func() {
		defer close(events)
		next := 0
		for {
			c.mu.Lock()
			for next < len(c.log) && c.log[next].EventHeight() < fromHeight {
				next++
			}
			for next >= len(c.log) || c.offline {
				if ctx.Err() != nil {
					c.mu.Unlock()
					return
				}
				c.cond.Wait()
			}
			event := c.log[next]
			next++
			c.mu.Unlock()

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wake the subscriber loop when the context is cancelled so it can
	// observe ctx.Err while waiting on the cond.
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	}()
	return events, nil
}

func (c *Chain) CreateSrcEscrow(ctx context.Context, req bridge.CreateSrcEscrow) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return "", bridge.ErrChainUnreachable
	}

	esc, err := escrow.NewSource(req.OrderHash, req.Hashlock, req.Maker, req.Taker, req.Amount, req.SafetyDeposit, c.now, req.Delays, c.admin)
	if err != nil {
		return "", err
	}
	return c.register(req.Caller, esc)
}

func (c *Chain) CreateDstEscrow(ctx context.Context, req bridge.CreateDstEscrow) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return "", bridge.ErrChainUnreachable
	}

	esc, err := escrow.NewDestination(req.OrderHash, req.Hashlock, req.Maker, req.Taker, req.Amount, req.SafetyDeposit, c.now, req.Delays, c.admin, req.Fees)
	if err != nil {
		return "", err
	}
	return c.register(req.Caller, esc)
}

// register moves the depositor's funds into the escrow and appends the
// creation event. Caller holds the chain lock.
func (c *Chain) register(depositor string, esc *escrow.Escrow) (string, error) {
	total := new(big.Int).Add(esc.Amount, esc.SafetyDeposit)
	if err := c.vault.Debit(depositor, total); err != nil {
		return "", err
	}

	id, err := c.registry.Create(esc.OrderHash)
	if err != nil {
		c.vault.Credit(depositor, total)
		return "", err
	}
	esc.ID = id
	c.escrows[esc.OrderHash] = esc

	txID := c.nextTx()
	c.append(model.EscrowCreated{
		EventMeta: c.meta(esc.OrderHash, txID),
		EscrowID:  id,
		Role:      esc.Role,
		Hashlock:  esc.Hashlock,
	})
	return txID, nil
}

func (c *Chain) Withdraw(ctx context.Context, orderHash common.Hash, caller string, secret []byte) (string, error) {
	return c.withdraw(orderHash, caller, secret, false)
}

func (c *Chain) PublicWithdraw(ctx context.Context, orderHash common.Hash, caller string, secret []byte) (string, error) {
	return c.withdraw(orderHash, caller, secret, true)
}

func (c *Chain) withdraw(orderHash common.Hash, caller string, secret []byte, public bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return "", bridge.ErrChainUnreachable
	}
	esc, ok := c.escrows[orderHash]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownOrder, orderHash.Hex())
	}

	var err error
	if public {
		err = esc.PublicWithdraw(c.now, caller, secret, c.vault)
	} else {
		err = esc.Withdraw(c.now, caller, secret, c.vault)
	}
	if err != nil {
		return "", err
	}

	txID := c.nextTx()
	c.append(model.EscrowWithdrawn{
		EventMeta: c.meta(orderHash, txID),
		EscrowID:  esc.ID,
		Role:      esc.Role,
		Secret:    esc.Secret(),
		Caller:    caller,
	})
	return txID, nil
}

func (c *Chain) Cancel(ctx context.Context, orderHash common.Hash, caller string) (string, error) {
	return c.cancel(orderHash, caller, false)
}

func (c *Chain) PublicCancel(ctx context.Context, orderHash common.Hash, caller string) (string, error) {
	return c.cancel(orderHash, caller, true)
}

func (c *Chain) cancel(orderHash common.Hash, caller string, public bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return "", bridge.ErrChainUnreachable
	}
	esc, ok := c.escrows[orderHash]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownOrder, orderHash.Hex())
	}

	var err error
	if public {
		err = esc.PublicCancel(c.now, caller, c.vault)
	} else {
		err = esc.Cancel(c.now, caller, c.vault)
	}
	if err != nil {
		return "", err
	}

	txID := c.nextTx()
	c.append(model.EscrowCancelled{
		EventMeta: c.meta(orderHash, txID),
		EscrowID:  esc.ID,
		Role:      esc.Role,
		Caller:    caller,
	})
	return txID, nil
}

func (c *Chain) Rescue(ctx context.Context, orderHash common.Hash, caller string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return "", bridge.ErrChainUnreachable
	}
	esc, ok := c.escrows[orderHash]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownOrder, orderHash.Hex())
	}
	if err := esc.Rescue(c.now, caller, c.vault); err != nil {
		return "", err
	}

	txID := c.nextTx()
	c.append(model.EscrowCancelled{
		EventMeta: c.meta(orderHash, txID),
		EscrowID:  esc.ID,
		Role:      esc.Role,
		Caller:    caller,
	})
	return txID, nil
}

// Escrow returns the escrow for the given order, if any.
func (c *Chain) Escrow(orderHash common.Hash) (*escrow.Escrow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	esc, ok := c.escrows[orderHash]
	return esc, ok
}

func (c *Chain) nextTx() string {
	c.height++
	return fmt.Sprintf("%v-tx-%d", c.chain, c.height)
}

func (c *Chain) meta(orderHash common.Hash, txID string) model.EventMeta {
	return model.EventMeta{
		OrderHash: orderHash,
		Chain:     c.chain,
		Height:    c.height,
		TxID:      txID,
	}
}

func (c *Chain) append(event model.Event) {
	c.logger.Debug("event appended",
		zap.Uint64("height", event.EventHeight()),
		zap.String("order", event.EventOrderHash().Hex()))
	c.log = append(c.log, event)
	c.cond.Broadcast()
}
