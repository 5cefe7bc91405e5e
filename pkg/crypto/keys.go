package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Key errors.
var (
	ErrBadKey    = errors.New("malformed public key")
	ErrBadScalar = errors.New("malformed secret key")
)

// KeyPair is a secret scalar and its public point.
type KeyPair struct {
	Public types.PublicKey
	Secret types.SecretKey
}

// RandomScalar returns a uniformly random scalar.
func RandomScalar() *edwards25519.Scalar {
	var wide [64]byte
	if _, err := rand.Read(wide[:]); err != nil {
		panic("crypto: entropy source failed: " + err.Error())
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(wide[:])
	if err != nil {
		panic("crypto: random scalar: " + err.Error())
	}
	return s
}

// GenerateKeys returns a fresh random key pair.
func GenerateKeys() KeyPair {
	s := RandomScalar()
	p := new(edwards25519.Point).ScalarBaseMult(s)

	var kp KeyPair
	copy(kp.Secret[:], s.Bytes())
	copy(kp.Public[:], p.Bytes())
	return kp
}

// GenerateDeterministicKeys derives a key pair from seed by reducing its
// hash to a scalar. The same seed always yields the same pair.
func GenerateDeterministicKeys(seed []byte) KeyPair {
	s := HashToScalar(seed)
	p := new(edwards25519.Point).ScalarBaseMult(s)

	var kp KeyPair
	copy(kp.Secret[:], s.Bytes())
	copy(kp.Public[:], p.Bytes())
	return kp
}

// CheckKey reports whether key decodes to a valid curve point.
func CheckKey(key types.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}

// SecretKeyToPublicKey computes the public point of a secret scalar.
// Returns ErrBadScalar for a non-canonical scalar encoding.
func SecretKeyToPublicKey(sec types.SecretKey) (types.PublicKey, error) {
	s, err := decodeScalar(sec)
	if err != nil {
		return types.PublicKey{}, err
	}
	p := new(edwards25519.Point).ScalarBaseMult(s)
	var pub types.PublicKey
	copy(pub[:], p.Bytes())
	return pub, nil
}

// SecretKeyMultPublicKey computes sec * pub.
func SecretKeyMultPublicKey(sec types.SecretKey, pub types.PublicKey) (types.PublicKey, error) {
	s, err := decodeScalar(sec)
	if err != nil {
		return types.PublicKey{}, err
	}
	p, err := decodePoint(pub)
	if err != nil {
		return types.PublicKey{}, err
	}
	r := new(edwards25519.Point).ScalarMult(s, p)
	var out types.PublicKey
	copy(out[:], r.Bytes())
	return out, nil
}

func decodeScalar(sec types.SecretKey) (*edwards25519.Scalar, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(sec[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadScalar, err)
	}
	return s, nil
}

func decodePoint(pub types.PublicKey) (*edwards25519.Point, error) {
	p, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	return p, nil
}
