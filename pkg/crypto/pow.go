package crypto

import (
	"encoding/binary"
	"math/big"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/mevanet/mevanet-chain/pkg/types"
)

// PowHasher computes the slow hash of a block hashing blob. The engine
// treats the hash as opaque; it only compares the result against the
// difficulty target.
type PowHasher interface {
	PowHash(blob []byte) types.Hash
}

// SlowHasher is the memory-bound production hasher: the hashing blob seeds a
// Keccak-filled scratchpad which is then walked data-dependently, making the
// function deliberately expensive to evaluate.
type SlowHasher struct {
	// ScratchKB is the scratchpad size in KiB. Zero means the default.
	ScratchKB int
	// Iterations is the number of data-dependent mixing rounds.
	// Zero means the default.
	Iterations int
}

const (
	defaultScratchKB  = 64
	defaultIterations = 4096
)

// PowHash evaluates the slow hash of blob.
func (s SlowHasher) PowHash(blob []byte) types.Hash {
	scratchKB := s.ScratchKB
	if scratchKB <= 0 {
		scratchKB = defaultScratchKB
	}
	iters := s.Iterations
	if iters <= 0 {
		iters = defaultIterations
	}

	pad := make([]byte, scratchKB*1024)
	seed := Hash(blob)

	// Fill the scratchpad from the seed with a Keccak chain.
	state := seed
	for off := 0; off < len(pad); off += types.HashSize {
		state = Hash(state[:])
		copy(pad[off:], state[:])
	}

	// Data-dependent walk: each round reads the slot addressed by the
	// running state, mixes it in, and writes the new state back.
	slots := len(pad) / types.HashSize
	var buf [2 * types.HashSize]byte
	for i := 0; i < iters; i++ {
		slot := int(binary.LittleEndian.Uint64(state[:8])) % slots
		off := slot * types.HashSize
		copy(buf[:types.HashSize], state[:])
		copy(buf[types.HashSize:], pad[off:off+types.HashSize])
		state = Hash(buf[:])
		copy(pad[off:], state[:])
	}

	// Finalize over the seed and the end state.
	final := sha3.NewLegacyKeccak256()
	final.Write(seed[:])
	final.Write(state[:])
	var out types.Hash
	copy(out[:], final.Sum(nil))
	return out
}

// FastHasher hashes the blob with BLAKE3 in a single pass. Used on testnet.
type FastHasher struct{}

// PowHash evaluates the fast hash of blob.
func (FastHasher) PowHash(blob []byte) types.Hash {
	return blake3.Sum256(blob)
}

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// CheckHash reports whether hash satisfies the difficulty target, i.e.
// hash * difficulty <= 2^256 - 1 with the hash read as a little-endian
// integer.
func CheckHash(hash types.Hash, difficulty uint64) bool {
	if difficulty == 0 {
		return false
	}
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = hash[31-i]
	}
	v := new(big.Int).SetBytes(be[:])
	v.Mul(v, new(big.Int).SetUint64(difficulty))
	return v.Cmp(maxUint256) <= 0
}
