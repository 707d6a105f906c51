// Package orderbook is the relayer's in-memory store of pending
// cross-chain orders. Matching is pure bilateral pairing, two orders
// match iff their chain, token and amount fields are exact mirror
// images. There is no price discovery, the first mirror found wins.
package orderbook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/catalogfi/hermes/pkg/htlc"
	"github.com/catalogfi/hermes/pkg/model"
)

var ErrOrderExists = errors.New("order already published")

// Match binds two mirror orders to a freshly generated secret. The secret
// stays with the relayer until both escrows are confirmed deployed.
type Match struct {
	Order    *model.Order
	Counter  *model.Order
	Secret   [htlc.SecretSize]byte
	Hashlock common.Hash
}

type Book struct {
	logger *zap.Logger

	mu     sync.Mutex
	orders map[common.Hash]*model.Order
}

func New(logger *zap.Logger) *Book {
	return &Book{
		logger: logger.With(zap.String("service", "orderbook")),
		orders: map[common.Hash]*model.Order{},
	}
}

// Publish validates and stores the order, then attempts to match it
// against every unmatched order in the book. It returns the order hash
// and, if a mirror was found, the match with its fresh secret assigned to
// both orders.
func (b *Book) Publish(order *model.Order) (common.Hash, *Match, error) {
	if err := order.Validate(); err != nil {
		return common.Hash{}, nil, err
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	if order.OrderHash == (common.Hash{}) {
		order.OrderHash = order.Hash()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[order.OrderHash]; ok {
		return common.Hash{}, nil, fmt.Errorf("%w: %v", ErrOrderExists, order.OrderHash.Hex())
	}
	b.orders[order.OrderHash] = order

	for _, counter := range b.orders {
		if counter.Hashlock != (common.Hash{}) || counter.OrderHash == order.OrderHash {
			continue
		}
		if !order.Mirrors(counter) {
			continue
		}

		secret, hashlock, err := htlc.NewSecret()
		if err != nil {
			return order.OrderHash, nil, err
		}
		order.Hashlock = hashlock
		counter.Hashlock = hashlock
		order.Taker = counter.Receiver
		counter.Taker = order.Receiver

		b.logger.Info("orders matched",
			zap.String("order", order.OrderHash.Hex()),
			zap.String("counter", counter.OrderHash.Hex()))
		return order.OrderHash, &Match{
			Order:    order,
			Counter:  counter,
			Secret:   secret,
			Hashlock: hashlock,
		}, nil
	}

	b.logger.Debug("order stored, no match yet", zap.String("order", order.OrderHash.Hex()))
	return order.OrderHash, nil, nil
}

// Cancel removes the order from the book. It reports whether the order
// was present. On-chain cancellation is never triggered from here, that
// is driven by the escrow timelocks.
func (b *Book) Cancel(orderHash common.Hash) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[orderHash]; !ok {
		return false
	}
	delete(b.orders, orderHash)
	return true
}

func (b *Book) Get(orderHash common.Hash) (*model.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderHash]
	return order, ok
}

// Len returns the number of orders currently in the book.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}
