// Package htlc builds and parses the three on-chain HTLC variants
// FlowSwap uses: a BTC P2WSH three-secret redeem script, the
// structurally identical M1 script, and the EVM contract's ABI
// calldata/event encoding. All three hash with single SHA-256 — no
// RIPEMD-160 wrap, no double hashing — so a preimage is interchangeable
// across chains.
package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// GenerateSecret returns a fresh 32-byte CSPRNG secret and its
// SHA-256 hash. The LP uses this to mint H_lp1 and H_lp2; the user
// supplies H_user independently.
func GenerateSecret() (secret, hash [32]byte, err error) {
	if _, err = rand.Read(secret[:]); err != nil {
		return [32]byte{}, [32]byte{}, fmt.Errorf("htlc: generate secret: %w", err)
	}
	hash = sha256.Sum256(secret[:])
	return secret, hash, nil
}

// HashSecret computes SHA256(secret).
func HashSecret(secret [32]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// VerifySecret reports whether secret hashes to hash, in constant time.
func VerifySecret(secret, hash [32]byte) bool {
	computed := sha256.Sum256(secret[:])
	return subtle.ConstantTimeCompare(computed[:], hash[:]) == 1
}
