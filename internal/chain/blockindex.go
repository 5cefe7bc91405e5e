package chain

import (
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// BlockIndex is the height <-> hash map of the main chain. Heights are
// implicit in the append order.
type BlockIndex struct {
	hashes  []types.Hash
	heights map[types.Hash]uint64
}

// NewBlockIndex returns an empty index.
func NewBlockIndex() *BlockIndex {
	return &BlockIndex{
		heights: make(map[types.Hash]uint64),
	}
}

// Size returns the number of indexed blocks (tip height + 1).
func (bi *BlockIndex) Size() uint64 {
	return uint64(len(bi.hashes))
}

// Push appends the hash of the next block and returns its height.
func (bi *BlockIndex) Push(hash types.Hash) uint64 {
	height := uint64(len(bi.hashes))
	bi.hashes = append(bi.hashes, hash)
	bi.heights[hash] = height
	return height
}

// Pop removes the tail block from the index.
func (bi *BlockIndex) Pop() {
	if len(bi.hashes) == 0 {
		return
	}
	last := bi.hashes[len(bi.hashes)-1]
	delete(bi.heights, last)
	bi.hashes = bi.hashes[:len(bi.hashes)-1]
}

// GetHeight returns the height of a main-chain block hash.
func (bi *BlockIndex) GetHeight(hash types.Hash) (uint64, bool) {
	h, ok := bi.heights[hash]
	return h, ok
}

// GetHash returns the hash at a height.
func (bi *BlockIndex) GetHash(height uint64) (types.Hash, bool) {
	if height >= uint64(len(bi.hashes)) {
		return types.Hash{}, false
	}
	return bi.hashes[height], true
}

// Tail returns the tip height and hash. ok is false for an empty chain.
func (bi *BlockIndex) Tail() (uint64, types.Hash, bool) {
	if len(bi.hashes) == 0 {
		return 0, types.Hash{}, false
	}
	h := uint64(len(bi.hashes) - 1)
	return h, bi.hashes[h], true
}

// HashRange returns up to maxCount hashes starting at startHeight.
func (bi *BlockIndex) HashRange(startHeight uint64, maxCount int) []types.Hash {
	if startHeight >= uint64(len(bi.hashes)) {
		return nil
	}
	end := startHeight + uint64(maxCount)
	if end > uint64(len(bi.hashes)) {
		end = uint64(len(bi.hashes))
	}
	out := make([]types.Hash, end-startHeight)
	copy(out, bi.hashes[startHeight:end])
	return out
}

// BuildSparseChain returns the hashes at heights startHeight+1-k for
// k = 1, 2, 4, 8, ... (the start block, then the blocks 1, 3, 7, 15, ...
// below it) and always the genesis hash. Peers use it to
// locate a common ancestor in logarithmically many entries.
func (bi *BlockIndex) BuildSparseChain(startHeight uint64) []types.Hash {
	if uint64(len(bi.hashes)) <= startHeight {
		return nil
	}

	var sparse []types.Hash
	for offset := uint64(1); offset <= startHeight+1; offset *= 2 {
		sparse = append(sparse, bi.hashes[startHeight+1-offset])
	}
	if sparse[len(sparse)-1] != bi.hashes[0] {
		sparse = append(sparse, bi.hashes[0])
	}
	return sparse
}

// FindSupplement returns the height of the first remote sparse-chain hash
// found on the main chain. The remote list runs newest to oldest, so the
// result is the latest common block.
func (bi *BlockIndex) FindSupplement(remoteSparse []types.Hash) (uint64, bool) {
	for _, hash := range remoteSparse {
		if height, ok := bi.heights[hash]; ok {
			return height, true
		}
	}
	return 0, false
}
