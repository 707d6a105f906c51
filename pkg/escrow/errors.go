package escrow

import "errors"

var (
	// ErrNotActive is returned when operating on an escrow that already
	// reached a terminal state. Retry logic treats it as success-equivalent.
	ErrNotActive = errors.New("escrow is not active")

	// ErrOutsideWindow is returned when an operation is attempted outside
	// its phase window. This is routine traffic, not a fault.
	ErrOutsideWindow = errors.New("operation outside its time window")

	// ErrUnauthorized is returned when the caller is not entitled to the
	// operation in the current window.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrWrongSecret is returned when the candidate secret does not hash to
	// the escrow's commitment.
	ErrWrongSecret = errors.New("secret does not match hashlock")

	// ErrFeeExceedsAmount is returned at creation time when the configured
	// fees cannot be covered by the locked amount.
	ErrFeeExceedsAmount = errors.New("fee sum exceeds locked amount")

	// ErrInvalidAmount is returned at creation time for non-positive
	// amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrDuplicateOrder is returned by the registry when an escrow already
	// exists for the order hash.
	ErrDuplicateOrder = errors.New("escrow already exists for order")

	// ErrInsufficientBalance is returned by the vault when a debit exceeds
	// the account balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)
