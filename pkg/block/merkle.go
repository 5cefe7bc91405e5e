package block

import (
	"fmt"

	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// TreeHash computes the merkle root of hashes. Counts that are not a power
// of two are first reduced by pairing the tail so the remaining layer is a
// power of two; the leading leaves pass through unhashed.
func TreeHash(hashes []types.Hash) types.Hash {
	root, _ := treeHash(hashes, false)
	return root
}

// TreeHashWithBranch computes the merkle root and the branch proving leaf 0
// (the base transaction slot in merge mining).
func TreeHashWithBranch(hashes []types.Hash) (types.Hash, []types.Hash) {
	return treeHash(hashes, true)
}

func treeHash(hashes []types.Hash, wantBranch bool) (types.Hash, []types.Hash) {
	n := len(hashes)
	switch n {
	case 0:
		return types.Hash{}, nil
	case 1:
		return hashes[0], nil
	case 2:
		root := crypto.HashConcat(hashes[0], hashes[1])
		if wantBranch {
			return root, []types.Hash{hashes[1]}
		}
		return root, nil
	}

	cnt := 1
	for cnt*2 < n {
		cnt *= 2
	}

	var branch []types.Hash

	buf := make([]types.Hash, cnt)
	passthrough := 2*cnt - n
	copy(buf, hashes[:passthrough])
	j := passthrough
	for i := passthrough; i < cnt; i++ {
		buf[i] = crypto.HashConcat(hashes[j], hashes[j+1])
		if wantBranch && i == 0 {
			branch = append(branch, hashes[j+1])
		}
		j += 2
	}

	for cnt > 2 {
		cnt /= 2
		if wantBranch {
			branch = append(branch, buf[1])
		}
		for i := 0; i < cnt; i++ {
			buf[i] = crypto.HashConcat(buf[2*i], buf[2*i+1])
		}
	}

	if wantBranch {
		branch = append(branch, buf[1])
	}
	return crypto.HashConcat(buf[0], buf[1]), branch
}

// TreeHashFromBranch folds a leaf-0 branch back into the merkle root.
func TreeHashFromBranch(branch []types.Hash, leaf types.Hash) types.Hash {
	root := leaf
	for _, sibling := range branch {
		root = crypto.HashConcat(root, sibling)
	}
	return root
}

// VerifyBranch checks that branch proves leaf against root within a sane
// depth bound.
func VerifyBranch(branch []types.Hash, leaf, root types.Hash) error {
	if len(branch) > 64 {
		return fmt.Errorf("merkle branch too deep: %d", len(branch))
	}
	if TreeHashFromBranch(branch, leaf) != root {
		return fmt.Errorf("merkle branch does not reach root")
	}
	return nil
}
