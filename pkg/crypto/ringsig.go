package crypto

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Ring signature errors.
var (
	ErrBadSignature = errors.New("malformed signature")
	ErrBadRing      = errors.New("malformed ring")
)

// GenerateKeyImage computes I = sec * Hp(pub), the linkable tag published
// when the output owned by (pub, sec) is spent.
func GenerateKeyImage(pub types.PublicKey, sec types.SecretKey) (types.KeyImage, error) {
	s, err := decodeScalar(sec)
	if err != nil {
		return types.KeyImage{}, err
	}

	hp := HashToPoint(pub[:])
	img := new(edwards25519.Point).ScalarMult(s, hp)

	var out types.KeyImage
	copy(out[:], img.Bytes())
	return out, nil
}

// ringChallenge hashes prefixHash || L_1 || R_1 || ... || L_n || R_n to the
// aggregate challenge scalar.
func ringChallenge(prefixHash types.Hash, commitments []byte) *edwards25519.Scalar {
	buf := make([]byte, 0, 32+len(commitments))
	buf = append(buf, prefixHash[:]...)
	buf = append(buf, commitments...)
	return HashToScalar(buf)
}

// GenerateRingSignature produces a linkable ring signature over prefixHash
// for the ring pubs. secIndex identifies the real signer within the ring and
// sec is its one-time secret key; image must equal sec * Hp(pubs[secIndex]).
func GenerateRingSignature(prefixHash types.Hash, image types.KeyImage, pubs []types.PublicKey,
	sec types.SecretKey, secIndex int) ([]types.Signature, error) {

	if len(pubs) == 0 {
		return nil, fmt.Errorf("%w: empty ring", ErrBadRing)
	}
	if secIndex < 0 || secIndex >= len(pubs) {
		return nil, fmt.Errorf("%w: signer index %d out of range", ErrBadRing, secIndex)
	}
	x, err := decodeScalar(sec)
	if err != nil {
		return nil, err
	}

	n := len(pubs)
	sigs := make([]types.Signature, n)
	cs := make([]*edwards25519.Scalar, n)
	rs := make([]*edwards25519.Scalar, n)

	imagePoint, err := new(edwards25519.Point).SetBytes(image[:])
	if err != nil {
		return nil, fmt.Errorf("%w: key image: %v", ErrBadSignature, err)
	}

	commitments := make([]byte, 0, n*64)
	var q *edwards25519.Scalar
	sum := edwards25519.NewScalar()

	for i := 0; i < n; i++ {
		p, err := decodePoint(pubs[i])
		if err != nil {
			return nil, fmt.Errorf("%w: ring member %d: %v", ErrBadRing, i, err)
		}
		hp := HashToPoint(pubs[i][:])

		var left, right *edwards25519.Point
		if i == secIndex {
			// Real signer: commitments from a fresh nonce.
			q = RandomScalar()
			left = new(edwards25519.Point).ScalarBaseMult(q)
			right = new(edwards25519.Point).ScalarMult(q, hp)
		} else {
			// Decoys: random responses, commitments solved backwards.
			cs[i] = RandomScalar()
			rs[i] = RandomScalar()
			left = new(edwards25519.Point).VarTimeDoubleScalarBaseMult(cs[i], p, rs[i])
			right = new(edwards25519.Point).ScalarMult(rs[i], hp)
			right.Add(right, new(edwards25519.Point).ScalarMult(cs[i], imagePoint))
			sum.Add(sum, cs[i])
		}
		commitments = append(commitments, left.Bytes()...)
		commitments = append(commitments, right.Bytes()...)
	}

	h := ringChallenge(prefixHash, commitments)

	// c_s = h - sum(c_i), r_s = q - c_s * x.
	cs[secIndex] = new(edwards25519.Scalar).Subtract(h, sum)
	rs[secIndex] = new(edwards25519.Scalar).Multiply(cs[secIndex], x)
	rs[secIndex].Subtract(q, rs[secIndex])

	for i := 0; i < n; i++ {
		copy(sigs[i][:32], cs[i].Bytes())
		copy(sigs[i][32:], rs[i].Bytes())
	}
	return sigs, nil
}

// CheckRingSignature verifies a linkable ring signature. It recomputes each
// commitment pair from (c_i, r_i) and checks that the challenges sum to the
// hash of the commitments.
func CheckRingSignature(prefixHash types.Hash, image types.KeyImage, pubs []types.PublicKey,
	sigs []types.Signature) bool {

	if len(pubs) == 0 || len(sigs) != len(pubs) {
		return false
	}

	imagePoint, err := new(edwards25519.Point).SetBytes(image[:])
	if err != nil {
		return false
	}
	// The key image must live in the prime-order subgroup, otherwise a
	// torsion component would allow several images per output.
	if !isInPrimeSubgroup(imagePoint) {
		return false
	}

	commitments := make([]byte, 0, len(pubs)*64)
	sum := edwards25519.NewScalar()

	for i := range pubs {
		c, err := new(edwards25519.Scalar).SetCanonicalBytes(sigs[i][:32])
		if err != nil {
			return false
		}
		r, err := new(edwards25519.Scalar).SetCanonicalBytes(sigs[i][32:])
		if err != nil {
			return false
		}
		p, err := new(edwards25519.Point).SetBytes(pubs[i][:])
		if err != nil {
			return false
		}
		hp := HashToPoint(pubs[i][:])

		left := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(c, p, r)
		right := new(edwards25519.Point).ScalarMult(r, hp)
		right.Add(right, new(edwards25519.Point).ScalarMult(c, imagePoint))

		commitments = append(commitments, left.Bytes()...)
		commitments = append(commitments, right.Bytes()...)
		sum.Add(sum, c)
	}

	h := ringChallenge(prefixHash, commitments)
	return h.Equal(sum) == 1
}

// GenerateSignature produces a plain Schnorr signature of prefixHash under
// (pub, sec). Used for multisignature outputs, not for ring inputs.
func GenerateSignature(prefixHash types.Hash, pub types.PublicKey, sec types.SecretKey) (types.Signature, error) {
	x, err := decodeScalar(sec)
	if err != nil {
		return types.Signature{}, err
	}

	k := RandomScalar()
	comm := new(edwards25519.Point).ScalarBaseMult(k)

	buf := make([]byte, 0, 96)
	buf = append(buf, prefixHash[:]...)
	buf = append(buf, pub[:]...)
	buf = append(buf, comm.Bytes()...)
	c := HashToScalar(buf)

	r := new(edwards25519.Scalar).Multiply(c, x)
	r.Subtract(k, r)

	var sig types.Signature
	copy(sig[:32], c.Bytes())
	copy(sig[32:], r.Bytes())
	return sig, nil
}

// CheckSignature verifies a plain Schnorr signature produced by
// GenerateSignature.
func CheckSignature(prefixHash types.Hash, pub types.PublicKey, sig types.Signature) bool {
	p, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil {
		return false
	}
	c, err := new(edwards25519.Scalar).SetCanonicalBytes(sig[:32])
	if err != nil {
		return false
	}
	r, err := new(edwards25519.Scalar).SetCanonicalBytes(sig[32:])
	if err != nil {
		return false
	}

	comm := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(c, p, r)

	buf := make([]byte, 0, 96)
	buf = append(buf, prefixHash[:]...)
	buf = append(buf, pub[:]...)
	buf = append(buf, comm.Bytes()...)
	expected := HashToScalar(buf)

	return expected.Equal(c) == 1
}

// isInPrimeSubgroup reports whether p is a non-identity point with no
// small-order component. Multiplying by the cofactor clears torsion; mapping
// back with 8^-1 mod l returns the original point only when there was no
// torsion to clear.
func isInPrimeSubgroup(p *edwards25519.Point) bool {
	if p.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return false
	}
	cleared := new(edwards25519.Point).MultByCofactor(p)
	if cleared.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return false
	}
	back := new(edwards25519.Point).ScalarMult(invEight(), cleared)
	return back.Equal(p) == 1
}

func invEight() *edwards25519.Scalar {
	eight, err := new(edwards25519.Scalar).SetCanonicalBytes(scalarEightBytes[:])
	if err != nil {
		panic("crypto: scalar eight: " + err.Error())
	}
	return eight.Invert(eight)
}

// scalarEightBytes is the canonical little-endian encoding of 8.
var scalarEightBytes = [32]byte{8}
