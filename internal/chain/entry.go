package chain

import (
	"fmt"

	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/serialize"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
)

// TransactionIndex locates a transaction on the main chain by block height
// and slot within the block (0 is the base transaction).
type TransactionIndex struct {
	Block       uint64
	Transaction uint16
}

// TransactionEntry is a stored transaction plus the global output indices
// its outputs were assigned on commit.
type TransactionEntry struct {
	Tx                  transaction.Transaction
	GlobalOutputIndexes []uint32
}

// BlockEntry is the unit of main-chain storage: the block, its height and
// the cumulative values at that height, plus the full transactions the
// block references by hash.
type BlockEntry struct {
	Block                 block.Block
	Height                uint64
	BlockCumulativeSize   uint64
	CumulativeDifficulty  uint64
	AlreadyGeneratedCoins uint64
	// Transactions holds the base transaction first, then the mined
	// transactions in block order.
	Transactions []TransactionEntry
}

// encode serializes the entry for storage.
func (e *BlockEntry) encode() ([]byte, error) {
	w := serialize.NewWriter()

	blob, err := e.Block.Serialize()
	if err != nil {
		return nil, fmt.Errorf("block blob: %w", err)
	}
	w.WriteVarBytes(blob)
	w.WriteVarint(e.Height)
	w.WriteVarint(e.BlockCumulativeSize)
	w.WriteVarint(e.CumulativeDifficulty)
	w.WriteVarint(e.AlreadyGeneratedCoins)

	w.WriteVarint(uint64(len(e.Transactions)))
	for i := range e.Transactions {
		te := &e.Transactions[i]
		w.WriteVarBytes(te.Tx.Serialize())
		w.WriteVarint(uint64(len(te.GlobalOutputIndexes)))
		for _, idx := range te.GlobalOutputIndexes {
			w.WriteVarint(uint64(idx))
		}
	}
	return w.Bytes(), nil
}

// decodeBlockEntry parses a stored entry.
func decodeBlockEntry(data []byte) (*BlockEntry, error) {
	r := serialize.NewReader(data)
	var e BlockEntry

	blob, err := r.ReadVarBytes()
	if err != nil {
		return nil, fmt.Errorf("block blob: %w", err)
	}
	blk, err := block.Deserialize(blob)
	if err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	e.Block = *blk

	if e.Height, err = r.ReadVarint(); err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}
	if e.BlockCumulativeSize, err = r.ReadVarint(); err != nil {
		return nil, fmt.Errorf("cumulative size: %w", err)
	}
	if e.CumulativeDifficulty, err = r.ReadVarint(); err != nil {
		return nil, fmt.Errorf("cumulative difficulty: %w", err)
	}
	if e.AlreadyGeneratedCoins, err = r.ReadVarint(); err != nil {
		return nil, fmt.Errorf("generated coins: %w", err)
	}

	txCount, err := r.ReadCount()
	if err != nil {
		return nil, fmt.Errorf("transaction count: %w", err)
	}
	e.Transactions = make([]TransactionEntry, txCount)
	for i := 0; i < txCount; i++ {
		txBlob, err := r.ReadVarBytes()
		if err != nil {
			return nil, fmt.Errorf("transaction %d blob: %w", i, err)
		}
		tx, err := transaction.Deserialize(txBlob)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		e.Transactions[i].Tx = *tx

		idxCount, err := r.ReadCount()
		if err != nil {
			return nil, fmt.Errorf("transaction %d index count: %w", i, err)
		}
		e.Transactions[i].GlobalOutputIndexes = make([]uint32, idxCount)
		for j := 0; j < idxCount; j++ {
			v, err := r.ReadVarint()
			if err != nil {
				return nil, fmt.Errorf("transaction %d index %d: %w", i, j, err)
			}
			if v > 0xffffffff {
				return nil, fmt.Errorf("transaction %d index %d out of range", i, j)
			}
			e.Transactions[i].GlobalOutputIndexes[j] = uint32(v)
		}
	}

	if !r.Done() {
		return nil, fmt.Errorf("%d trailing bytes in block entry", r.Remaining())
	}
	return &e, nil
}
