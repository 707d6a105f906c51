package model

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrSameChain        = errors.New("source and destination chain must differ")
)

// Order is a cross-chain swap intent published to the relayer. The maker
// offers SrcAmount of SrcToken on SrcChain and wants DstAmount of DstToken
// on DstChain. Hashlock and Taker are assigned when the order is matched
// against a mirror order.
type Order struct {
	OrderHash common.Hash `json:"orderHash"`

	// Maker is the maker's address on SrcChain, it funds the source escrow
	// and is the refund party if the swap is cancelled.
	Maker string `json:"maker"`

	// Receiver is the maker's address on DstChain, it receives the funds of
	// the destination escrow.
	Receiver string `json:"receiver"`

	// Taker is the counterparty's address on SrcChain, it is entitled to
	// claim the source escrow with the secret. Empty until matched.
	Taker string `json:"taker,omitempty"`

	SrcChain  Chain    `json:"srcChain"`
	DstChain  Chain    `json:"dstChain"`
	SrcToken  string   `json:"srcToken"`
	DstToken  string   `json:"dstToken"`
	SrcAmount *big.Int `json:"srcAmount"`
	DstAmount *big.Int `json:"dstAmount"`

	// Hashlock is the shared secret commitment, assigned on match.
	Hashlock common.Hash `json:"hashlock,omitempty"`

	// Signature is the maker's signature over the order fields. Verification
	// is delegated to the ingress layer, the coordinator treats it as opaque.
	Signature string `json:"signature,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the structural fields of the order. It does not verify
// the signature.
func (o *Order) Validate() error {
	if o.Maker == "" || o.Receiver == "" {
		return fmt.Errorf("%w: missing maker or receiver address", ErrInvalidOrder)
	}
	if !o.SrcChain.IsValid() || !o.DstChain.IsValid() {
		return fmt.Errorf("%w: %v -> %v", ErrUnsupportedChain, o.SrcChain, o.DstChain)
	}
	if o.SrcChain == o.DstChain {
		return ErrSameChain
	}
	if o.SrcToken == "" || o.DstToken == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidOrder)
	}
	if o.SrcAmount == nil || o.SrcAmount.Sign() <= 0 {
		return fmt.Errorf("%w: source amount must be positive", ErrInvalidOrder)
	}
	if o.DstAmount == nil || o.DstAmount.Sign() <= 0 {
		return fmt.Errorf("%w: destination amount must be positive", ErrInvalidOrder)
	}
	return nil
}

// Hash returns the canonical hash of the order's immutable fields. Amounts
// are encoded as decimal strings so the hash is independent of big.Int
// internals.
func (o *Order) Hash() common.Hash {
	hasher := sha256.New()
	hasher.Write([]byte(o.Maker))
	hasher.Write([]byte(o.Receiver))
	hasher.Write([]byte(o.SrcChain))
	hasher.Write([]byte(o.DstChain))
	hasher.Write([]byte(o.SrcToken))
	hasher.Write([]byte(o.DstToken))
	hasher.Write([]byte(o.SrcAmount.String()))
	hasher.Write([]byte(o.DstAmount.String()))
	hasher.Write([]byte(o.CreatedAt.UTC().Format(time.RFC3339Nano)))
	return common.BytesToHash(hasher.Sum(nil))
}

// Mirrors reports whether counter is the exact mirror image of the order,
// the matching rule is strict equality of the crossed chain/token/amount
// fields.
func (o *Order) Mirrors(counter *Order) bool {
	if o.OrderHash == counter.OrderHash {
		return false
	}
	return o.SrcChain == counter.DstChain &&
		o.DstChain == counter.SrcChain &&
		o.SrcToken == counter.DstToken &&
		o.DstToken == counter.SrcToken &&
		o.SrcAmount.Cmp(counter.DstAmount) == 0 &&
		o.DstAmount.Cmp(counter.SrcAmount) == 0
}
