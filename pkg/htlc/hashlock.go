package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SecretSize is the byte length of swap secrets.
const SecretSize = 32

// NewSecret generates a fresh random secret and its hashlock.
func NewSecret() ([SecretSize]byte, common.Hash, error) {
	var secret [SecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return secret, common.Hash{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, Hash(secret[:]), nil
}

// Hash computes the hashlock commitment of a secret. The commitment
// function is sha256 on both legs of a swap, using different hash
// functions between legs is a fatal configuration error.
func Hash(secret []byte) common.Hash {
	return common.Hash(sha256.Sum256(secret))
}

// Verify reports whether the candidate secret opens the given hashlock.
func Verify(secret []byte, hashlock common.Hash) bool {
	return Hash(secret) == hashlock
}
