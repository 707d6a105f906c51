package escrow

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/catalogfi/hermes/pkg/htlc"
	"github.com/catalogfi/hermes/pkg/model"
)

// Status is the escrow lifecycle state. Withdrawn and Cancelled are
// terminal, the transition out of Active is one-way.
type Status uint8

const (
	Active Status = iota + 1
	Withdrawn
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Withdrawn:
		return "withdrawn"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Fees are the protocol and integrator cuts of a destination escrow,
// deducted from the locked amount at withdrawal time. The sum is
// validated against the locked amount at creation so withdrawal can
// never underflow.
type Fees struct {
	ProtocolAmount      *big.Int
	ProtocolRecipient   string
	IntegratorAmount    *big.Int
	IntegratorRecipient string
}

func (f Fees) Total() *big.Int {
	total := big.NewInt(0)
	if f.ProtocolAmount != nil {
		total.Add(total, f.ProtocolAmount)
	}
	if f.IntegratorAmount != nil {
		total.Add(total, f.IntegratorAmount)
	}
	return total
}

// Escrow is one leg of a cross-chain swap, it exclusively owns its locked
// amount and safety deposit until a single terminal operation releases
// them. One escrow serves exactly one order and is never reused.
type Escrow struct {
	ID        uint64
	OrderHash common.Hash
	Hashlock  common.Hash
	Role      model.Role

	// Maker and Taker are addresses on the escrow's own chain. On a source
	// escrow the maker funded it and the taker claims with the secret. On a
	// destination escrow the taker funded it and the maker is paid out.
	Maker string
	Taker string

	Amount        *big.Int
	SafetyDeposit *big.Int
	Timelocks     htlc.Timelocks
	Fees          *Fees
	Admin         string

	mu     sync.Mutex
	status Status
	secret []byte
}

// NewSource creates a source-leg escrow. The caller is responsible for
// having moved the maker's funds into the escrow before construction.
func NewSource(orderHash, hashlock common.Hash, maker, taker string, amount, safetyDeposit *big.Int, deployedAt time.Time, delays htlc.Delays, admin string) (*Escrow, error) {
	return newEscrow(model.RoleSource, orderHash, hashlock, maker, taker, amount, safetyDeposit, deployedAt, delays, admin, nil)
}

// NewDestination creates a destination-leg escrow carrying fee
// obligations. It fails with ErrFeeExceedsAmount if the fee sum cannot be
// covered by the locked amount.
func NewDestination(orderHash, hashlock common.Hash, maker, taker string, amount, safetyDeposit *big.Int, deployedAt time.Time, delays htlc.Delays, admin string, fees Fees) (*Escrow, error) {
	if fees.Total().Cmp(amount) > 0 {
		return nil, fmt.Errorf("%w: fees %v > amount %v", ErrFeeExceedsAmount, fees.Total(), amount)
	}
	return newEscrow(model.RoleDestination, orderHash, hashlock, maker, taker, amount, safetyDeposit, deployedAt, delays, admin, &fees)
}

func newEscrow(role model.Role, orderHash, hashlock common.Hash, maker, taker string, amount, safetyDeposit *big.Int, deployedAt time.Time, delays htlc.Delays, admin string, fees *Fees) (*Escrow, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: locked amount must be positive", ErrInvalidAmount)
	}
	if safetyDeposit == nil || safetyDeposit.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative safety deposit", ErrInvalidAmount)
	}
	timelocks, err := htlc.NewTimelocks(deployedAt, delays)
	if err != nil {
		return nil, err
	}
	return &Escrow{
		OrderHash:     orderHash,
		Hashlock:      hashlock,
		Role:          role,
		Maker:         maker,
		Taker:         taker,
		Amount:        new(big.Int).Set(amount),
		SafetyDeposit: new(big.Int).Set(safetyDeposit),
		Timelocks:     timelocks,
		Fees:          fees,
		Admin:         admin,
		status:        Active,
	}, nil
}

func (e *Escrow) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Secret returns the revealed secret after a successful withdrawal, nil
// otherwise.
func (e *Escrow) Secret() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.secret == nil {
		return nil
	}
	out := make([]byte, len(e.secret))
	copy(out, e.secret)
	return out
}

// payoutRecipient is the party the locked amount goes to on withdrawal.
func (e *Escrow) payoutRecipient() string {
	if e.Role == model.RoleSource {
		return e.Taker
	}
	return e.Maker
}

// refundRecipient is the party the locked amount goes back to on
// cancellation.
func (e *Escrow) refundRecipient() string {
	if e.Role == model.RoleSource {
		return e.Maker
	}
	return e.Taker
}

// Withdraw releases the locked amount to the designated party, gated by
// caller identity, the withdrawal window and the secret. The safety
// deposit pays the caller. The secret becomes publicly visible.
func (e *Escrow) Withdraw(now time.Time, caller string, secret []byte, vault *Vault) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Active {
		return fmt.Errorf("%w: status is %v", ErrNotActive, e.status)
	}
	if !e.Timelocks.InWithdrawWindow(now) {
		return fmt.Errorf("%w: withdraw at %v", ErrOutsideWindow, now)
	}
	if caller != e.Taker {
		return fmt.Errorf("%w: withdraw by %v", ErrUnauthorized, caller)
	}
	if !htlc.Verify(secret, e.Hashlock) {
		return ErrWrongSecret
	}
	e.payOut(caller, secret, vault)
	return nil
}

// PublicWithdraw is the open variant of Withdraw, callable by anyone once
// the public withdrawal window opens. The safety deposit pays whoever
// calls, compensating third parties for completing stuck swaps.
func (e *Escrow) PublicWithdraw(now time.Time, caller string, secret []byte, vault *Vault) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Active {
		return fmt.Errorf("%w: status is %v", ErrNotActive, e.status)
	}
	if !e.Timelocks.InPublicWithdrawWindow(now) {
		return fmt.Errorf("%w: public withdraw at %v", ErrOutsideWindow, now)
	}
	if !htlc.Verify(secret, e.Hashlock) {
		return ErrWrongSecret
	}
	e.payOut(caller, secret, vault)
	return nil
}

// Cancel refunds the locked amount and safety deposit to the refund party
// once the cancellation timelock has elapsed.
func (e *Escrow) Cancel(now time.Time, caller string, vault *Vault) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Active {
		return fmt.Errorf("%w: status is %v", ErrNotActive, e.status)
	}
	if !e.Timelocks.InCancelWindow(now) {
		return fmt.Errorf("%w: cancel at %v", ErrOutsideWindow, now)
	}
	if caller != e.refundRecipient() {
		return fmt.Errorf("%w: cancel by %v", ErrUnauthorized, caller)
	}
	e.refund(caller, vault)
	return nil
}

// PublicCancel is the open variant of Cancel, callable by anyone after the
// public grace buffer. The refund party receives the locked amount, the
// caller earns the safety deposit.
func (e *Escrow) PublicCancel(now time.Time, caller string, vault *Vault) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Active {
		return fmt.Errorf("%w: status is %v", ErrNotActive, e.status)
	}
	if !e.Timelocks.InPublicCancelWindow(now) {
		return fmt.Errorf("%w: public cancel at %v", ErrOutsideWindow, now)
	}
	e.refund(caller, vault)
	return nil
}

// Rescue sweeps all remaining balances to the administrator. It is the
// last-resort recovery path and only opens long after public cancellation
// became available.
func (e *Escrow) Rescue(now time.Time, caller string, vault *Vault) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != Active {
		return fmt.Errorf("%w: status is %v", ErrNotActive, e.status)
	}
	if caller != e.Admin {
		return fmt.Errorf("%w: rescue by %v", ErrUnauthorized, caller)
	}
	if !e.Timelocks.InRescueWindow(now) {
		return fmt.Errorf("%w: rescue at %v", ErrOutsideWindow, now)
	}
	e.status = Cancelled
	vault.Credit(e.Admin, new(big.Int).Add(e.Amount, e.SafetyDeposit))
	return nil
}

func (e *Escrow) payOut(caller string, secret []byte, vault *Vault) {
	e.status = Withdrawn
	e.secret = make([]byte, len(secret))
	copy(e.secret, secret)

	net := new(big.Int).Set(e.Amount)
	if e.Fees != nil {
		if e.Fees.ProtocolAmount != nil && e.Fees.ProtocolAmount.Sign() > 0 {
			vault.Credit(e.Fees.ProtocolRecipient, e.Fees.ProtocolAmount)
			net.Sub(net, e.Fees.ProtocolAmount)
		}
		if e.Fees.IntegratorAmount != nil && e.Fees.IntegratorAmount.Sign() > 0 {
			vault.Credit(e.Fees.IntegratorRecipient, e.Fees.IntegratorAmount)
			net.Sub(net, e.Fees.IntegratorAmount)
		}
	}
	vault.Credit(e.payoutRecipient(), net)
	vault.Credit(caller, e.SafetyDeposit)
}

func (e *Escrow) refund(caller string, vault *Vault) {
	e.status = Cancelled
	vault.Credit(e.refundRecipient(), e.Amount)
	vault.Credit(caller, e.SafetyDeposit)
}
