package model

// Phase is the coordinator-side lifecycle of one swap. It only ever moves
// forward, Completed and Cancelled are absorbing.
type Phase string

const (
	// PhasePending - matched and secret assigned, no escrow deployed yet.
	PhasePending Phase = "pending"
	// PhaseLocked - the source escrow is on-chain, the destination escrow
	// has been or is being submitted.
	PhaseLocked Phase = "locked"
	// PhaseRevealing - a secret was observed revealed on either chain, the
	// coordinator drives the claim on the remaining chain.
	PhaseRevealing Phase = "revealing"
	// PhaseCompleted - both legs withdrawn.
	PhaseCompleted Phase = "completed"
	// PhaseCancelled - the swap cannot complete, reached via explicit
	// cancellation or timeout.
	PhaseCancelled Phase = "cancelled"
)

// Terminal reports whether the phase is absorbing.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled
}
