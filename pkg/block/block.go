// Package block defines the block model, the canonical block codec and the
// version-dependent hashing blobs.
package block

import (
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Block major versions. Each version switches consensus behavior: reward
// zone, difficulty algorithm, merge mining and the block signature field.
const (
	MajorVersion1 = 1
	MajorVersion2 = 2
	MajorVersion3 = 3
	MajorVersion4 = 4
	MajorVersion5 = 5
	MajorVersion6 = 6
)

// MinorVersion0 is the baseline minor version. Before a scheduled upgrade
// height the minor version carries the upgrade vote.
const MinorVersion0 = 0

// ParentBlock is the merge-mining container embedded in major versions 2
// and 3: the header of the parent chain's block plus the merkle branch
// proving this block's base transaction participates in it.
type ParentBlock struct {
	MajorVersion          uint8                   `json:"major_version"`
	MinorVersion          uint8                   `json:"minor_version"`
	PreviousBlockHash     types.Hash              `json:"prev_hash"`
	TransactionCount      uint16                  `json:"transaction_count"`
	BaseTransactionBranch []types.Hash            `json:"base_transaction_branch"`
	BaseTransaction       transaction.Transaction `json:"base_transaction"`
	BlockchainBranch      []types.Hash            `json:"blockchain_branch"`
}

// Block is a full block: header fields, the base (coinbase) transaction and
// the hashes of the mined transactions.
type Block struct {
	MajorVersion      uint8      `json:"major_version"`
	MinorVersion      uint8      `json:"minor_version"`
	Timestamp         uint64     `json:"timestamp"`
	PreviousBlockHash types.Hash `json:"prev_hash"`
	Nonce             uint32     `json:"nonce"`

	// Parent is present only for major versions 2 and 3.
	Parent *ParentBlock `json:"parent,omitempty"`

	BaseTransaction   transaction.Transaction `json:"base_transaction"`
	TransactionHashes []types.Hash            `json:"transaction_hashes"`

	// Signature is the reserved block-signature field of major version 5
	// and later.
	Signature *types.Signature `json:"signature,omitempty"`
}

// Height returns the block height recorded in the coinbase input, or 0 if
// the base transaction is malformed.
func (b *Block) Height() uint64 {
	if len(b.BaseTransaction.Inputs) != 1 {
		return 0
	}
	in, ok := b.BaseTransaction.Inputs[0].(*transaction.CoinbaseInput)
	if !ok {
		return 0
	}
	return in.BlockHeight
}

// TxTreeHash returns the merkle root over the base transaction hash
// followed by the mined transaction hashes.
func (b *Block) TxTreeHash() types.Hash {
	hashes := make([]types.Hash, 0, 1+len(b.TransactionHashes))
	hashes = append(hashes, b.BaseTransaction.Hash())
	hashes = append(hashes, b.TransactionHashes...)
	return TreeHash(hashes)
}
