package escrow

import (
	"fmt"
	"math/big"
	"sync"
)

// Vault is the balance book of a single chain. Escrow operations move
// funds between accounts through it, each movement commits atomically
// under the vault lock.
type Vault struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

func NewVault() *Vault {
	return &Vault{balances: map[string]*big.Int{}}
}

func (v *Vault) Credit(addr string, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(addr, amount)
}

func (v *Vault) Debit(addr string, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance, ok := v.balances[addr]
	if !ok || balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %v", ErrInsufficientBalance, addr)
	}
	balance.Sub(balance, amount)
	return nil
}

func (v *Vault) Balance(addr string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	balance, ok := v.balances[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (v *Vault) credit(addr string, amount *big.Int) {
	balance, ok := v.balances[addr]
	if !ok {
		balance = big.NewInt(0)
		v.balances[addr] = balance
	}
	balance.Add(balance, amount)
}
