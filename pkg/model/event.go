package model

import "github.com/ethereum/go-ethereum/common"

// Event is a chain event relevant to the coordinator. Events of one chain
// are delivered in height order, implementations are a closed set, one per
// event kind.
type Event interface {
	EventOrderHash() common.Hash
	EventChain() Chain
	EventHeight() uint64
}

// EventMeta carries the fields shared by every event kind.
type EventMeta struct {
	OrderHash common.Hash
	Chain     Chain
	Height    uint64
	TxID      string
}

func (m EventMeta) EventOrderHash() common.Hash { return m.OrderHash }
func (m EventMeta) EventChain() Chain           { return m.Chain }
func (m EventMeta) EventHeight() uint64         { return m.Height }

// EscrowCreated is emitted when an escrow is funded and registered.
type EscrowCreated struct {
	EventMeta
	EscrowID uint64
	Role     Role
	Hashlock common.Hash
}

// EscrowWithdrawn is emitted when an escrow is claimed, it reveals the
// secret publicly.
type EscrowWithdrawn struct {
	EventMeta
	EscrowID uint64
	Role     Role
	Secret   []byte
	Caller   string
}

// EscrowCancelled is emitted when an escrow is refunded after its
// cancellation timelock.
type EscrowCancelled struct {
	EventMeta
	EscrowID uint64
	Role     Role
	Caller   string
}

// Role distinguishes the two legs of a swap on their host chains.
type Role uint8

const (
	RoleSource Role = iota
	RoleDestination
)

func (r Role) String() string {
	if r == RoleSource {
		return "source"
	}
	return "destination"
}
