package escrow

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry indexes order hashes to escrow ids on one chain. Entries are
// never deleted, re-creation for an order must keep failing even after
// the escrow completed.
type Registry struct {
	mu      sync.Mutex
	entries map[common.Hash]uint64
	nextID  uint64
}

func NewRegistry() *Registry {
	return &Registry{entries: map[common.Hash]uint64{}}
}

// Create registers a fresh escrow id for the order hash. It fails with
// ErrDuplicateOrder if the order is already registered.
func (r *Registry) Create(orderHash common.Hash) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[orderHash]; ok {
		return 0, fmt.Errorf("%w: %v", ErrDuplicateOrder, orderHash.Hex())
	}
	r.nextID++
	r.entries[orderHash] = r.nextID
	return r.nextID, nil
}

func (r *Registry) Exists(orderHash common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[orderHash]
	return ok
}

func (r *Registry) Lookup(orderHash common.Hash) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.entries[orderHash]
	return id, ok
}
