// Package coordinator tracks every in-flight swap across both chains and
// drives its escrows to completion. It owns the shared secret from match
// until reveal, mirrors source escrows onto the destination chain, and
// propagates revealed secrets to the remaining leg. Atomicity is not
// provided by any shared transaction, it emerges from the shared hashlock
// and the ordered timelocks of the two escrows.
package coordinator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/catalogfi/hermes/pkg/alert"
	"github.com/catalogfi/hermes/pkg/bridge"
	"github.com/catalogfi/hermes/pkg/escrow"
	"github.com/catalogfi/hermes/pkg/htlc"
	"github.com/catalogfi/hermes/pkg/model"
	"github.com/catalogfi/hermes/pkg/orderbook"
	"github.com/catalogfi/hermes/pkg/store"
)

// Policy selects which leg the coordinator claims first once a secret is
// revealed. This is a liveness heuristic, correctness holds under either
// ordering.
type Policy string

const (
	ClaimDstFirst Policy = "dst-first"
	ClaimSrcFirst Policy = "src-first"
)

type Config struct {
	ClaimPolicy Policy

	// SwapTimeout is the global age threshold after which an incomplete
	// swap is flagged cancelled.
	SwapTimeout time.Duration

	// StallTimeout flags swaps stuck in the revealing phase, their claim
	// sequence is re-attempted with the already-known secret.
	StallTimeout time.Duration

	SweepInterval time.Duration

	// RelayerAddr is the coordinator's address per chain. It funds
	// destination escrows and earns safety deposits on public operations.
	RelayerAddr map[model.Chain]string

	// SafetyDeposit is attached to every destination escrow the
	// coordinator creates.
	SafetyDeposit *big.Int

	// DstDelays are the timelock offsets for coordinator-created
	// destination escrows.
	DstDelays htlc.Delays

	// Fees configures the protocol and integrator cut per destination
	// chain.
	Fees map[model.Chain]escrow.Fees
}

func (config *Config) defaults() {
	if config.ClaimPolicy == "" {
		config.ClaimPolicy = ClaimDstFirst
	}
	if config.SwapTimeout == 0 {
		config.SwapTimeout = 24 * time.Hour
	}
	if config.StallTimeout == 0 {
		config.StallTimeout = 5 * time.Minute
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = 30 * time.Second
	}
	if config.SafetyDeposit == nil {
		config.SafetyDeposit = big.NewInt(0)
	}
}

// swapEntry is the in-memory coordination state of one order. All
// mutations happen under the entry lock so concurrent handlers for the
// same order never race, unrelated orders progress in parallel.
type swapEntry struct {
	mu sync.Mutex

	order     *model.Order
	counter   common.Hash
	phase     model.Phase
	secret    []byte
	createdAt time.Time
	updatedAt time.Time

	srcDeployed  bool
	srcWithdrawn bool
	srcCancelled bool
	dstDeployed  bool
	dstWithdrawn bool
	dstCancelled bool
}

type Coordinator struct {
	logger   *zap.Logger
	config   Config
	book     *orderbook.Book
	bridges  map[model.Chain]bridge.Bridge
	storage  store.Store
	actions  ActionStore
	notifier alert.Notifier

	mu    sync.Mutex
	swaps map[common.Hash]*swapEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(config Config, book *orderbook.Book, bridges map[model.Chain]bridge.Bridge, storage store.Store, actions ActionStore, notifier alert.Notifier, logger *zap.Logger) *Coordinator {
	config.defaults()
	return &Coordinator{
		logger:   logger.With(zap.String("service", "coordinator")),
		config:   config,
		book:     book,
		bridges:  bridges,
		storage:  storage,
		actions:  actions,
		notifier: notifier,
		swaps:    map[common.Hash]*swapEntry{},
	}
}

// Start spawns one ingestion goroutine per chain and the sweep loop. It
// is not blocking.
func (c *Coordinator) Start() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.reload(); err != nil {
		return fmt.Errorf("failed to reload swaps: %w", err)
	}

	for _, b := range c.bridges {
		c.wg.Add(1)
		go c.ingest(b)
	}

	c.wg.Add(1)
	go c.sweep()
	return nil
}

// Stop gracefully shuts the coordinator down, it waits for all inner
// goroutines to finish. In-flight transactions already broadcast cannot
// be recalled, only their local bookkeeping is abandoned.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
		c.cancel = nil
	}
}

// Publish validates and stores the order and, on a match, binds both
// orders to a fresh secret and starts coordinating them.
func (c *Coordinator) Publish(order *model.Order) (common.Hash, error) {
	hash, match, err := c.book.Publish(order)
	if err != nil {
		return common.Hash{}, err
	}
	if match != nil {
		c.bind(match)
	}
	return hash, nil
}

// Cancel removes the order from the book and, if a coordination entry
// exists, marks it cancelled. It never triggers on-chain cancellation
// directly, refunds are gated by the escrow timelocks alone.
func (c *Coordinator) Cancel(orderHash common.Hash) bool {
	removed := c.book.Cancel(orderHash)

	c.mu.Lock()
	entry, ok := c.swaps[orderHash]
	c.mu.Unlock()
	if !ok {
		return removed
	}

	entry.mu.Lock()
	flagged := false
	if !entry.phase.Terminal() {
		entry.phase = model.PhaseCancelled
		entry.updatedAt = time.Now()
		c.persist(entry)
		flagged = true
	}
	counter := entry.counter
	entry.mu.Unlock()

	if flagged {
		c.logger.Info("swap cancelled by order withdrawal", zap.String("order", orderHash.Hex()))
		c.syncCounter(counter, model.PhaseCancelled)
	}
	return true
}

// Status returns the durable coordination record for the order.
func (c *Coordinator) Status(orderHash common.Hash) (store.Swap, error) {
	return c.storage.Swap(orderHash.Hex())
}

func (c *Coordinator) bind(match *orderbook.Match) {
	secretHex := hex.EncodeToString(match.Secret[:])
	for _, pair := range []struct {
		order   *model.Order
		counter *model.Order
	}{{match.Order, match.Counter}, {match.Counter, match.Order}} {
		entry := &swapEntry{
			order:     pair.order,
			counter:   pair.counter.OrderHash,
			phase:     model.PhasePending,
			secret:    append([]byte(nil), match.Secret[:]...),
			createdAt: time.Now(),
			updatedAt: time.Now(),
		}
		c.mu.Lock()
		c.swaps[pair.order.OrderHash] = entry
		c.mu.Unlock()

		if err := c.storage.PutSwap(store.Swap{
			OrderHash:        pair.order.OrderHash.Hex(),
			CounterOrderHash: pair.counter.OrderHash.Hex(),
			SecretHash:       match.Hashlock.Hex(),
			Secret:           secretHex,
			Phase:            model.PhasePending,
			SrcChain:         string(pair.order.SrcChain),
			DstChain:         string(pair.order.DstChain),
			Maker:            pair.order.Maker,
			Receiver:         pair.order.Receiver,
			Taker:            pair.order.Taker,
			SrcToken:         pair.order.SrcToken,
			DstToken:         pair.order.DstToken,
			SrcAmount:        pair.order.SrcAmount.String(),
			DstAmount:        pair.order.DstAmount.String(),
		}); err != nil {
			c.logger.Error("failed to persist swap", zap.String("order", pair.order.OrderHash.Hex()), zap.Error(err))
		}
		c.logger.Info("swap pending",
			zap.String("order", pair.order.OrderHash.Hex()),
			zap.String("counter", pair.counter.OrderHash.Hex()))
	}
}

// reload restores coordination entries for swaps that were still in
// flight when the process last stopped. Orders awaiting a match are not
// durable, only matched swaps come back.
func (c *Coordinator) reload() error {
	swaps, err := c.storage.ActiveSwaps()
	if err != nil {
		return err
	}
	for _, record := range swaps {
		secret, err := hex.DecodeString(record.Secret)
		if err != nil {
			c.logger.Error("corrupt secret in store", zap.String("order", record.OrderHash), zap.Error(err))
			continue
		}
		srcAmount, okSrc := new(big.Int).SetString(record.SrcAmount, 10)
		dstAmount, okDst := new(big.Int).SetString(record.DstAmount, 10)
		if !okSrc || !okDst {
			// Destination escrows are created from these amounts, an entry
			// without them would mirror garbage on-chain.
			c.logger.Error("corrupt amounts in store", zap.String("order", record.OrderHash))
			continue
		}
		entry := &swapEntry{
			order: &model.Order{
				OrderHash: common.HexToHash(record.OrderHash),
				Maker:     record.Maker,
				Receiver:  record.Receiver,
				Taker:     record.Taker,
				SrcChain:  model.Chain(record.SrcChain),
				DstChain:  model.Chain(record.DstChain),
				SrcToken:  record.SrcToken,
				DstToken:  record.DstToken,
				SrcAmount: srcAmount,
				DstAmount: dstAmount,
				Hashlock:  common.HexToHash(record.SecretHash),
			},
			counter:      common.HexToHash(record.CounterOrderHash),
			phase:        record.Phase,
			secret:       secret,
			createdAt:    record.CreatedAt,
			updatedAt:    record.UpdatedAt,
			srcDeployed:  record.SrcDeployed,
			srcWithdrawn: record.SrcWithdrawn,
			srcCancelled: record.SrcCancelled,
			dstDeployed:  record.DstDeployed,
			dstWithdrawn: record.DstWithdrawn,
			dstCancelled: record.DstCancelled,
		}
		c.mu.Lock()
		c.swaps[entry.order.OrderHash] = entry
		c.mu.Unlock()
	}
	return nil
}

// ingest subscribes to one chain's events, replaying from the persisted
// checkpoint so missed events are processed by chain height rather than
// wall clock. It reconnects with backoff on channel loss.
func (c *Coordinator) ingest(b bridge.Bridge) {
	defer c.wg.Done()
	chain := b.Chain()
	logger := c.logger.With(zap.String("chain", string(chain)))

	fallback := time.Second
	for {
		if c.ctx.Err() != nil {
			return
		}

		from, err := c.storage.Checkpoint(string(chain))
		if err != nil {
			logger.Error("failed to load checkpoint", zap.Error(err))
		}
		events, err := b.Subscribe(c.ctx, from+1)
		if err != nil {
			logger.Error("failed to subscribe", zap.Error(err))
			select {
			case <-time.After(fallback):
				if fallback < time.Minute {
					fallback *= 2
				}
				continue
			case <-c.ctx.Done():
				return
			}
		}
		fallback = time.Second
		logger.Info("subscribed", zap.Uint64("from-height", from+1))

		for event := range events {
			c.handleEvent(event)
			if err := c.storage.PutCheckpoint(string(chain), event.EventHeight()); err != nil {
				logger.Error("failed to persist checkpoint", zap.Error(err))
			}
		}
	}
}

func (c *Coordinator) handleEvent(event model.Event) {
	orderHash := event.EventOrderHash()
	logger := c.logger.With(zap.String("order", orderHash.Hex()), zap.String("chain", string(event.EventChain())))

	c.mu.Lock()
	entry, ok := c.swaps[orderHash]
	c.mu.Unlock()
	if !ok {
		// Not fatal, the chain may carry escrows of other relayers.
		logger.Debug("event for unknown order, dropping")
		return
	}

	entry.mu.Lock()

	onSrc := event.EventChain() == entry.order.SrcChain

	switch e := event.(type) {
	case model.EscrowCreated:
		if onSrc {
			entry.srcDeployed = true
			if entry.phase == model.PhasePending {
				entry.phase = model.PhaseLocked
				logger.Info("swap locked", zap.Uint64("escrow", e.EscrowID))
				c.wg.Add(1)
				go c.submitCreateDst(entry)
			}
		} else {
			entry.dstDeployed = true
			logger.Info("destination escrow deployed", zap.Uint64("escrow", e.EscrowID))
		}

	case model.EscrowWithdrawn:
		if !htlc.Verify(e.Secret, entry.order.Hashlock) {
			// A relayer bug or griefing attempt, never propagate it.
			logger.Error("revealed secret does not match hashlock")
			entry.mu.Unlock()
			return
		}
		if entry.secret == nil {
			entry.secret = append([]byte(nil), e.Secret...)
		}
		if onSrc {
			entry.srcWithdrawn = true
		} else {
			entry.dstWithdrawn = true
		}
		if entry.srcWithdrawn && entry.dstWithdrawn {
			if !entry.phase.Terminal() {
				entry.phase = model.PhaseCompleted
				logger.Info("swap completed")
			}
		} else {
			if !entry.phase.Terminal() {
				entry.phase = model.PhaseRevealing
			}
			// Even a swap already flagged cancelled gets its remaining leg
			// claimed once a secret is out, the counterparty has revealed
			// and the funds must not end up one-sided.
			logger.Info("secret revealed, claiming remaining leg")
			c.wg.Add(1)
			go c.claim(entry)
		}

	case model.EscrowCancelled:
		if onSrc {
			entry.srcCancelled = true
		} else {
			entry.dstCancelled = true
		}
		if !entry.phase.Terminal() {
			entry.phase = model.PhaseCancelled
			logger.Info("swap cancelled on-chain")
		}
	}

	entry.updatedAt = time.Now()
	c.persist(entry)

	counter, phase := entry.counter, entry.phase
	entry.mu.Unlock()

	if phase.Terminal() {
		c.syncCounter(counter, phase)
	}
}

// syncCounter mirrors a terminal phase onto the counter order's entry.
// Only the initiating order's hash ever appears on-chain, so the counter
// record settles here rather than idling until the timeout sweep flags a
// finished swap as timed out. Callers must not hold any entry lock.
func (c *Coordinator) syncCounter(counterHash common.Hash, phase model.Phase) {
	c.mu.Lock()
	entry, ok := c.swaps[counterHash]
	c.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.phase.Terminal() {
		return
	}
	entry.phase = phase
	entry.updatedAt = time.Now()
	c.persist(entry)
	c.logger.Info("counter order settled with its pair",
		zap.String("order", counterHash.Hex()),
		zap.String("phase", string(phase)))
}

// submitCreateDst mirrors the observed source escrow onto the destination
// chain: same order hash and hashlock, opposite maker/taker framing, fee
// and timelock parameters from configuration.
func (c *Coordinator) submitCreateDst(entry *swapEntry) {
	defer c.wg.Done()

	entry.mu.Lock()
	order := entry.order
	entry.mu.Unlock()

	hash := order.OrderHash.Hex()
	logger := c.logger.With(zap.String("order", hash))

	done, err := c.actions.CheckAction(ActionCreateDst, hash)
	if err != nil {
		logger.Error("failed to check action", zap.Error(err))
		return
	}
	if done {
		return
	}

	dstBridge, ok := c.bridges[order.DstChain]
	if !ok {
		logger.Error("no bridge for destination chain", zap.String("chain", string(order.DstChain)))
		return
	}
	relayer := c.config.RelayerAddr[order.DstChain]
	req := bridge.CreateDstEscrow{
		OrderHash:     order.OrderHash,
		Hashlock:      order.Hashlock,
		Maker:         order.Receiver,
		Taker:         relayer,
		Amount:        order.DstAmount,
		SafetyDeposit: c.config.SafetyDeposit,
		Delays:        c.config.DstDelays,
		Caller:        relayer,
		Fees:          c.config.Fees[order.DstChain],
	}

	txID, err := c.submitWithRetry(func(ctx context.Context) (string, error) {
		return dstBridge.CreateDstEscrow(ctx, req)
	})
	if err != nil {
		if errors.Is(err, escrow.ErrDuplicateOrder) {
			// Someone, possibly an earlier run of this process, already
			// deployed it. The creation event will confirm.
			logger.Info("destination escrow already exists")
			return
		}
		logger.Error("failed to create destination escrow", zap.Error(err))
		return
	}

	if err := c.actions.StoreAction(ActionCreateDst, hash); err != nil {
		logger.Error("failed to store action", zap.Error(err))
	}
	if err := c.storage.UpdateTxHash(hash, store.DstCreated, txID); err != nil {
		logger.Error("failed to store tx hash", zap.Error(err))
	}
	logger.Info("destination escrow submitted", zap.String("tx-hash", txID))
}

// claim runs the claim sequence for a swap whose secret is known. Leg
// order follows the configured policy. Retried claims against an already
// withdrawn escrow no-op.
func (c *Coordinator) claim(entry *swapEntry) {
	defer c.wg.Done()

	entry.mu.Lock()
	order := entry.order
	secret := append([]byte(nil), entry.secret...)
	srcWithdrawn, dstWithdrawn := entry.srcWithdrawn, entry.dstWithdrawn
	entry.mu.Unlock()

	if secret == nil {
		c.logger.Error("claim without a known secret", zap.String("order", order.OrderHash.Hex()))
		return
	}

	type leg struct {
		chain     model.Chain
		action    Action
		event     store.Event
		withdrawn bool
	}
	dst := leg{order.DstChain, ActionClaimDst, store.DstClaimed, dstWithdrawn}
	src := leg{order.SrcChain, ActionClaimSrc, store.SrcClaimed, srcWithdrawn}

	legs := []leg{dst, src}
	if c.config.ClaimPolicy == ClaimSrcFirst {
		legs = []leg{src, dst}
	}

	for _, l := range legs {
		if l.withdrawn {
			continue
		}
		c.claimLeg(order, l.chain, secret, l.action, l.event)
	}
}

// claimLeg submits the withdrawal on one chain, falling back from the
// caller-restricted withdraw to the open publicWithdraw when the
// restricted variant is rejected.
func (c *Coordinator) claimLeg(order *model.Order, chain model.Chain, secret []byte, action Action, event store.Event) {
	hash := order.OrderHash.Hex()
	logger := c.logger.With(zap.String("order", hash), zap.String("chain", string(chain)))

	done, err := c.actions.CheckAction(action, hash)
	if err != nil {
		logger.Error("failed to check action", zap.Error(err))
		return
	}
	if done {
		logger.Debug("claim already submitted")
		return
	}

	b, ok := c.bridges[chain]
	if !ok {
		logger.Error("no bridge for chain")
		return
	}
	caller := c.config.RelayerAddr[chain]

	txID, err := c.submitWithRetry(func(ctx context.Context) (string, error) {
		txID, err := b.Withdraw(ctx, order.OrderHash, caller, secret)
		if errors.Is(err, escrow.ErrUnauthorized) || errors.Is(err, escrow.ErrOutsideWindow) {
			return b.PublicWithdraw(ctx, order.OrderHash, caller, secret)
		}
		return txID, err
	})
	switch {
	case err == nil:
		if err := c.actions.StoreAction(action, hash); err != nil {
			logger.Error("failed to store action", zap.Error(err))
		}
		if err := c.storage.UpdateTxHash(hash, event, txID); err != nil {
			logger.Error("failed to store tx hash", zap.Error(err))
		}
		logger.Info("leg claimed", zap.String("tx-hash", txID))
	case errors.Is(err, escrow.ErrNotActive):
		// Already withdrawn or refunded, success-equivalent.
		logger.Debug("leg already terminal")
	case errors.Is(err, escrow.ErrOutsideWindow):
		// Routine while the public window has not opened yet, the stall
		// sweep will try again.
		logger.Debug("claim window not open yet", zap.Error(err))
	default:
		logger.Error("failed to claim leg", zap.Error(err))
	}
}

// submitWithRetry retries a submission a few times with backoff.
// Submission failures are retryable, only the final error is returned.
func (c *Coordinator) submitWithRetry(submit func(ctx context.Context) (string, error)) (string, error) {
	var txID string
	var err error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		txID, err = submit(c.ctx)
		if err == nil || !errors.Is(err, bridge.ErrChainUnreachable) {
			return txID, err
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-c.ctx.Done():
			return "", c.ctx.Err()
		}
	}
	return txID, err
}
