package htlc

import (
	"errors"
	"fmt"
	"time"
)

// MaxEscrowDuration bounds the cancellation delay of any escrow.
const MaxEscrowDuration = 30 * 24 * time.Hour

var ErrInvalidTimelockOrdering = errors.New("invalid timelock ordering")

// Delays are the configured offsets from which an escrow's phase
// boundaries are derived at creation time.
type Delays struct {
	Withdrawal       time.Duration
	PublicWithdrawal time.Duration
	Cancellation     time.Duration

	// PublicCancelBuffer is the grace period after CancellationStart before
	// anyone may cancel on the refund party's behalf.
	PublicCancelBuffer time.Duration

	// Rescue is the offset of the admin escape hatch. It must exceed
	// Cancellation + PublicCancelBuffer so rescue can never fire before
	// public-cancel eligibility.
	Rescue time.Duration
}

// Validate checks the ordering invariant
// 0 < withdrawal < publicWithdrawal < cancellation <= MaxEscrowDuration
// and cancellation + publicCancelBuffer < rescue.
func (d Delays) Validate() error {
	if d.Withdrawal <= 0 {
		return fmt.Errorf("%w: withdrawal delay must be positive", ErrInvalidTimelockOrdering)
	}
	if d.PublicWithdrawal <= d.Withdrawal {
		return fmt.Errorf("%w: public withdrawal %v <= withdrawal %v", ErrInvalidTimelockOrdering, d.PublicWithdrawal, d.Withdrawal)
	}
	if d.Cancellation <= d.PublicWithdrawal {
		return fmt.Errorf("%w: cancellation %v <= public withdrawal %v", ErrInvalidTimelockOrdering, d.Cancellation, d.PublicWithdrawal)
	}
	if d.Cancellation > MaxEscrowDuration {
		return fmt.Errorf("%w: cancellation %v exceeds max escrow duration %v", ErrInvalidTimelockOrdering, d.Cancellation, MaxEscrowDuration)
	}
	if d.PublicCancelBuffer <= 0 {
		return fmt.Errorf("%w: public cancel buffer must be positive", ErrInvalidTimelockOrdering)
	}
	if d.Rescue <= d.Cancellation+d.PublicCancelBuffer {
		return fmt.Errorf("%w: rescue %v <= cancellation %v + public cancel buffer %v", ErrInvalidTimelockOrdering, d.Rescue, d.Cancellation, d.PublicCancelBuffer)
	}
	return nil
}

// Timelocks are the phase boundaries of one escrow, derived once at
// deployment and immutable afterwards. Every phase window is half-open,
// a phase is active for start <= t < nextStart, the post-cancellation
// phase is open ended.
type Timelocks struct {
	DeployedAt            time.Time
	WithdrawalStart       time.Time
	PublicWithdrawalStart time.Time
	CancellationStart     time.Time
	PublicCancelStart     time.Time
	RescueStart           time.Time
}

// NewTimelocks derives the phase boundaries for an escrow deployed at the
// given time. It fails with ErrInvalidTimelockOrdering unless the delays
// are strictly ordered.
func NewTimelocks(deployedAt time.Time, delays Delays) (Timelocks, error) {
	if err := delays.Validate(); err != nil {
		return Timelocks{}, err
	}
	return Timelocks{
		DeployedAt:            deployedAt,
		WithdrawalStart:       deployedAt.Add(delays.Withdrawal),
		PublicWithdrawalStart: deployedAt.Add(delays.PublicWithdrawal),
		CancellationStart:     deployedAt.Add(delays.Cancellation),
		PublicCancelStart:     deployedAt.Add(delays.Cancellation + delays.PublicCancelBuffer),
		RescueStart:           deployedAt.Add(delays.Rescue),
	}, nil
}

// InWithdrawWindow reports whether the designated taker may withdraw.
func (t Timelocks) InWithdrawWindow(now time.Time) bool {
	return !now.Before(t.WithdrawalStart) && now.Before(t.CancellationStart)
}

// InPublicWithdrawWindow reports whether any caller may withdraw.
func (t Timelocks) InPublicWithdrawWindow(now time.Time) bool {
	return !now.Before(t.PublicWithdrawalStart) && now.Before(t.CancellationStart)
}

// InCancelWindow reports whether the refund party may cancel.
func (t Timelocks) InCancelWindow(now time.Time) bool {
	return !now.Before(t.CancellationStart)
}

// InPublicCancelWindow reports whether any caller may cancel.
func (t Timelocks) InPublicCancelWindow(now time.Time) bool {
	return !now.Before(t.PublicCancelStart)
}

// InRescueWindow reports whether the administrator may sweep remaining
// balances.
func (t Timelocks) InRescueWindow(now time.Time) bool {
	return !now.Before(t.RescueStart)
}
