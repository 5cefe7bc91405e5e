package chain

import (
	"github.com/mevanet/mevanet-chain/internal/currency"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Currency returns the consensus rules the engine runs under.
func (bc *Blockchain) Currency() *currency.Currency {
	return bc.currency
}

// NextBlockVersion returns the major version required of the next block.
func (bc *Blockchain) NextBlockVersion() uint8 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.expectedVersionLocked(uint64(len(bc.entries)))
}

// MedianBlockSize returns the median cumulative block size of the trailing
// reward window.
func (bc *Blockchain) MedianBlockSize() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.medianBlockSizeLocked(uint64(len(bc.entries)))
}

// MedianTimestamp returns the median timestamp of the tip-side check
// window, the lower bound for the next block's timestamp.
func (bc *Blockchain) MedianTimestamp() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	size := uint64(len(bc.entries))
	return bc.medianTimestampLocked(size, bc.currency.TimestampCheckWindow(size))
}

// GetBlocks returns the main-chain blocks in [startHeight, startHeight+
// count), with the transaction bodies of each.
func (bc *Blockchain) GetBlocks(startHeight uint64, count int) ([]*BlockEntry, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if startHeight >= uint64(len(bc.entries)) {
		return nil, ErrNotFound
	}
	end := startHeight + uint64(count)
	if end > uint64(len(bc.entries)) {
		end = uint64(len(bc.entries))
	}
	out := make([]*BlockEntry, 0, end-startHeight)
	for h := startHeight; h < end; h++ {
		out = append(out, bc.entries[h])
	}
	return out, nil
}

// GetTransactions resolves transaction hashes from the main chain,
// returning the found bodies and the ids it could not resolve.
func (bc *Blockchain) GetTransactions(hashes []types.Hash) ([]*transaction.Transaction, []types.Hash) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	var found []*transaction.Transaction
	var missed []types.Hash
	for _, h := range hashes {
		idx, ok := bc.txIndex[h]
		if !ok {
			missed = append(missed, h)
			continue
		}
		tx := bc.entries[idx.Block].Transactions[idx.Transaction].Tx
		found = append(found, &tx)
	}
	return found, missed
}

// LowerBoundByTimestamp returns the height of the first main-chain block
// whose timestamp is not below the given one.
func (bc *Blockchain) LowerBoundByTimestamp(timestamp uint64) (uint64, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	lo, hi := uint64(0), uint64(len(bc.entries))
	for lo < hi {
		mid := (lo + hi) / 2
		if bc.entries[mid].Block.Timestamp < timestamp {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == uint64(len(bc.entries)) {
		return 0, false
	}
	return lo, true
}

// GetMultisigOutputReference resolves a multisignature reference to the
// owning transaction hash and output slot.
func (bc *Blockchain) GetMultisigOutputReference(amount uint64, globalIndex uint32) (types.Hash, int, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	usage, ok := bc.outputs.GetMultisig(amount, globalIndex)
	if !ok {
		return types.Hash{}, 0, false
	}
	tx := bc.entries[usage.TxIndex.Block].Transactions[usage.TxIndex.Transaction].Tx
	return tx.Hash(), int(usage.OutSlot), true
}
