package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/catalogfi/hermes/pkg/escrow"
	"github.com/catalogfi/hermes/pkg/model"
	"github.com/catalogfi/hermes/pkg/store"
)

// sweep runs the fixed-interval monitors: the timeout sweep flags swaps
// older than the global threshold as cancelled, the stall sweep
// re-attempts the claim sequence of swaps stuck in revealing.
func (c *Coordinator) sweep() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runSweep()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) runSweep() {
	now := time.Now()

	c.mu.Lock()
	entries := make([]*swapEntry, 0, len(c.swaps))
	for _, entry := range c.swaps {
		entries = append(entries, entry)
	}
	c.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		orderHash := entry.order.OrderHash

		switch {
		case entry.phase == model.PhaseCompleted:
			entry.mu.Unlock()

		case entry.phase == model.PhaseCancelled:
			// Keep chasing the refunds of deployed legs, their timelocks may
			// not have elapsed when the swap was first flagged.
			needsRefund := (entry.srcDeployed && !entry.srcWithdrawn && !entry.srcCancelled) ||
				(entry.dstDeployed && !entry.dstWithdrawn && !entry.dstCancelled)
			entry.mu.Unlock()
			if needsRefund {
				c.wg.Add(1)
				go c.cancelLegs(entry)
			}

		case now.Sub(entry.createdAt) > c.config.SwapTimeout:
			entry.phase = model.PhaseCancelled
			entry.updatedAt = now
			c.persist(entry)
			counter := entry.counter
			entry.mu.Unlock()

			c.book.Cancel(orderHash)
			c.logger.Warn("swap timed out", zap.String("order", orderHash.Hex()))
			if err := c.notifier.Notify(fmt.Sprintf("swap %v timed out and was flagged cancelled", orderHash.Hex())); err != nil {
				c.logger.Error("failed to notify", zap.Error(err))
			}
			c.syncCounter(counter, model.PhaseCancelled)
			c.wg.Add(1)
			go c.cancelLegs(entry)

		case entry.phase == model.PhaseRevealing && now.Sub(entry.updatedAt) > c.config.StallTimeout:
			entry.updatedAt = now
			entry.mu.Unlock()

			c.logger.Info("re-attempting stuck claim", zap.String("order", orderHash.Hex()))
			c.wg.Add(1)
			go c.claim(entry)

		case entry.phase == model.PhaseLocked && entry.srcDeployed && entry.dstDeployed:
			// Both escrows confirmed, the coordinator initiates the claim
			// sequence itself. Early attempts before the withdrawal window
			// opens are routine rejections.
			entry.mu.Unlock()
			c.wg.Add(1)
			go c.claim(entry)

		default:
			entry.mu.Unlock()
		}
	}
}

// cancelLegs attempts the on-chain refunds of a timed-out swap. The
// escrows only allow this once their own cancellation timelocks elapse,
// earlier attempts are routine rejections the next sweep retries.
func (c *Coordinator) cancelLegs(entry *swapEntry) {
	defer c.wg.Done()

	entry.mu.Lock()
	order := entry.order
	legs := []struct {
		chain    model.Chain
		deployed bool
		done     bool
		action   Action
		event    store.Event
	}{
		{order.DstChain, entry.dstDeployed, entry.dstWithdrawn || entry.dstCancelled, ActionCancelDst, store.DstCancelled},
		{order.SrcChain, entry.srcDeployed, entry.srcWithdrawn || entry.srcCancelled, ActionCancelSrc, store.SrcCancelled},
	}
	entry.mu.Unlock()

	for _, l := range legs {
		if !l.deployed || l.done {
			continue
		}
		c.cancelLeg(order.OrderHash, l.chain, l.action, l.event)
	}
}

func (c *Coordinator) cancelLeg(orderHash common.Hash, chain model.Chain, action Action, event store.Event) {
	logger := c.logger.With(zap.String("order", orderHash.Hex()), zap.String("chain", string(chain)))

	done, err := c.actions.CheckAction(action, orderHash.Hex())
	if err != nil {
		logger.Error("failed to check action", zap.Error(err))
		return
	}
	if done {
		logger.Debug("refund already submitted")
		return
	}

	b, ok := c.bridges[chain]
	if !ok {
		logger.Error("no bridge for chain")
		return
	}
	caller := c.config.RelayerAddr[chain]

	txID, err := c.submitWithRetry(func(ctx context.Context) (string, error) {
		txID, err := b.Cancel(ctx, orderHash, caller)
		if errors.Is(err, escrow.ErrUnauthorized) {
			return b.PublicCancel(ctx, orderHash, caller)
		}
		return txID, err
	})
	switch {
	case err == nil:
		if err := c.actions.StoreAction(action, orderHash.Hex()); err != nil {
			logger.Error("failed to store action", zap.Error(err))
		}
		if err := c.storage.UpdateTxHash(orderHash.Hex(), event, txID); err != nil {
			logger.Error("failed to store tx hash", zap.Error(err))
		}
		logger.Info("leg refunded", zap.String("tx-hash", txID))
	case errors.Is(err, escrow.ErrNotActive):
		logger.Debug("leg already terminal")
	case errors.Is(err, escrow.ErrOutsideWindow):
		logger.Debug("cancellation timelock not elapsed yet")
	default:
		logger.Error("failed to cancel leg", zap.Error(err))
	}
}

// persist writes the entry's mutable state through to the durable store.
// Callers hold the entry lock.
func (c *Coordinator) persist(entry *swapEntry) {
	record := store.Swap{
		OrderHash:    entry.order.OrderHash.Hex(),
		Phase:        entry.phase,
		SrcDeployed:  entry.srcDeployed,
		SrcWithdrawn: entry.srcWithdrawn,
		SrcCancelled: entry.srcCancelled,
		DstDeployed:  entry.dstDeployed,
		DstWithdrawn: entry.dstWithdrawn,
		DstCancelled: entry.dstCancelled,
	}
	if entry.secret != nil {
		record.Secret = common.Bytes2Hex(entry.secret)
	}
	if err := c.storage.UpdateSwap(record); err != nil {
		c.logger.Error("failed to persist swap", zap.String("order", record.OrderHash), zap.Error(err))
	}
}
