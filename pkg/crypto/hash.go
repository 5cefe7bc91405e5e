// Package crypto provides the cryptographic primitives of the chain:
// Keccak-256 hashing, Ed25519 scalar and point operations, one-time key
// derivation, linkable ring signatures and the proof-of-work hash.
package crypto

import (
	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"

	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Hash computes the Keccak-256 hash of data. All consensus identifiers
// (block hash, transaction hash, prefix hash) are produced by this function.
func Hash(data []byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashConcat hashes the concatenation of two hashes. Used for tree hashing.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// HashToScalar hashes data and reduces the result modulo the group order.
func HashToScalar(data []byte) *edwards25519.Scalar {
	h := Hash(data)
	var wide [64]byte
	copy(wide[:32], h[:])
	s, err := new(edwards25519.Scalar).SetUniformBytes(wide[:])
	if err != nil {
		// SetUniformBytes only fails on a wrong input length.
		panic("crypto: hash to scalar: " + err.Error())
	}
	return s
}

// HashToPoint maps data onto the prime-order subgroup. The hash output is
// re-hashed until it decompresses to a curve point, which is then multiplied
// by the cofactor to clear the torsion component.
func HashToPoint(data []byte) *edwards25519.Point {
	h := Hash(data)
	for {
		p, err := new(edwards25519.Point).SetBytes(h[:])
		if err == nil {
			return p.MultByCofactor(p)
		}
		h = Hash(h[:])
	}
}
