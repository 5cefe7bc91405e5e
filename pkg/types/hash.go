// Package types defines core primitive types for the Mevanet blockchain.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value. Block ids, transaction ids and
// payment ids are all hashes.
type Hash [HashSize]byte

// PublicKey is a compressed Ed25519 point.
type PublicKey [32]byte

// SecretKey is an Ed25519 scalar.
type SecretKey [32]byte

// KeyImage is the image I = x * Hp(P) of a one-time key, published when the
// corresponding output is spent.
type KeyImage [32]byte

// KeyDerivation is the shared secret point 8 * r * A used to derive
// one-time output keys.
type KeyDerivation [32]byte

// SignatureSize is the length of a single ring signature element (c, r).
const SignatureSize = 64

// Signature is one (c, r) scalar pair of a ring signature.
type Signature [SignatureSize]byte

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero returns true if the public key is all zeros.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// String returns the hex-encoded public key.
func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// String returns the hex-encoded key image.
func (k KeyImage) String() string {
	return hex.EncodeToString(k[:])
}

// IsZero returns true if the key image is all zeros.
func (k KeyImage) IsZero() bool {
	return k == KeyImage{}
}

// HexToPublicKey converts a 64-character hex string to a public key.
func HexToPublicKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != 32 {
		return PublicKey{}, fmt.Errorf("public key must be 32 bytes, got %d", len(b))
	}
	var p PublicKey
	copy(p[:], b)
	return p, nil
}
