package crypto

import (
	"filippo.io/edwards25519"

	"github.com/mevanet/mevanet-chain/pkg/types"
)

// GenerateKeyDerivation computes the shared secret 8 * sec * pub used by
// both sender and receiver to derive one-time output keys.
func GenerateKeyDerivation(pub types.PublicKey, sec types.SecretKey) (types.KeyDerivation, error) {
	s, err := decodeScalar(sec)
	if err != nil {
		return types.KeyDerivation{}, err
	}
	p, err := decodePoint(pub)
	if err != nil {
		return types.KeyDerivation{}, err
	}

	d := new(edwards25519.Point).ScalarMult(s, p)
	d.MultByCofactor(d)

	var out types.KeyDerivation
	copy(out[:], d.Bytes())
	return out, nil
}

// derivationToScalar hashes derivation || varint(outputIndex) to a scalar.
func derivationToScalar(derivation types.KeyDerivation, outputIndex uint64) *edwards25519.Scalar {
	buf := make([]byte, 0, 32+10)
	buf = append(buf, derivation[:]...)
	for v := outputIndex; ; v >>= 7 {
		if v < 0x80 {
			buf = append(buf, byte(v))
			break
		}
		buf = append(buf, byte(v)|0x80)
	}
	return HashToScalar(buf)
}

// DerivePublicKey computes the one-time output key
// Hs(derivation || idx) * G + base. The receiver compares this against the
// output target to detect payments to its address.
func DerivePublicKey(derivation types.KeyDerivation, outputIndex uint64, base types.PublicKey) (types.PublicKey, error) {
	b, err := decodePoint(base)
	if err != nil {
		return types.PublicKey{}, err
	}

	h := derivationToScalar(derivation, outputIndex)
	p := new(edwards25519.Point).ScalarBaseMult(h)
	p.Add(p, b)

	var out types.PublicKey
	copy(out[:], p.Bytes())
	return out, nil
}

// DeriveSecretKey computes the one-time secret key
// Hs(derivation || idx) + base, the counterpart of DerivePublicKey.
func DeriveSecretKey(derivation types.KeyDerivation, outputIndex uint64, base types.SecretKey) (types.SecretKey, error) {
	b, err := decodeScalar(base)
	if err != nil {
		return types.SecretKey{}, err
	}

	h := derivationToScalar(derivation, outputIndex)
	h.Add(h, b)

	var out types.SecretKey
	copy(out[:], h.Bytes())
	return out, nil
}

// UnderivePublicKey inverts DerivePublicKey: given the one-time key it
// recovers the base spend key, derived - Hs(derivation || idx) * G.
func UnderivePublicKey(derivation types.KeyDerivation, outputIndex uint64, derived types.PublicKey) (types.PublicKey, error) {
	d, err := decodePoint(derived)
	if err != nil {
		return types.PublicKey{}, err
	}

	h := derivationToScalar(derivation, outputIndex)
	hg := new(edwards25519.Point).ScalarBaseMult(h)
	base := new(edwards25519.Point).Subtract(d, hg)

	var out types.PublicKey
	copy(out[:], base.Bytes())
	return out, nil
}

// DeterministicTxKeys derives a reproducible transaction key pair from the
// hash of the transaction inputs and the sender's view secret. Both sender
// and auditor can regenerate the pair, which makes outgoing transfers
// provable without storing per-transaction keys.
func DeterministicTxKeys(inputsHash types.Hash, viewSecret types.SecretKey) KeyPair {
	seed := make([]byte, 0, 64)
	seed = append(seed, inputsHash[:]...)
	seed = append(seed, viewSecret[:]...)
	return GenerateDeterministicKeys(seed)
}
