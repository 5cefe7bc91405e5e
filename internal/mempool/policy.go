package mempool

import (
	"math/bits"
	"sort"

	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// priorityLess orders entries for block assembly: fee-per-byte descending,
// then blob size ascending, then receive time ascending. The fee-rate
// comparison cross-multiplies in 128 bits so it is exact, and the tie
// breaks are total, so independent nodes assemble identical templates.
func priorityLess(a, b *Entry) bool {
	aHi, aLo := bits.Mul64(a.Fee, b.BlobSize)
	bHi, bLo := bits.Mul64(b.Fee, a.BlobSize)

	if aHi != bHi {
		return aHi > bHi
	}
	if aLo != bLo {
		return aLo > bLo
	}
	if a.BlobSize != b.BlobSize {
		return a.BlobSize < b.BlobSize
	}
	if a.ReceiveTime != b.ReceiveTime {
		return a.ReceiveTime < b.ReceiveTime
	}
	// Final deterministic tiebreak.
	for i := range a.Hash {
		if a.Hash[i] != b.Hash[i] {
			return a.Hash[i] < b.Hash[i]
		}
	}
	return false
}

// FillBlockTemplate selects transactions for a block template in priority
// order. medianSize is the current size median, maxCumulativeSize the
// absolute cap, coinbaseReserve the space held back for the miner
// transaction. Entries failing the ready check against the current tip are
// skipped, not removed.
//
// The selection snapshot is taken under the pool mutex, but readiness is
// evaluated against the chain afterwards so the pool never holds its lock
// while calling into the engine.
func (p *Pool) FillBlockTemplate(medianSize, maxCumulativeSize, coinbaseReserve uint64) (txs []*transaction.Transaction, totalSize, totalFee uint64) {
	p.mu.Lock()
	candidates := make([]*Entry, 0, len(p.txs))
	for _, e := range p.txs {
		candidates = append(candidates, e)
	}
	p.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool { return priorityLess(candidates[i], candidates[j]) })

	maxTotalSize := 125 * medianSize / 100
	if maxTotalSize > maxCumulativeSize {
		maxTotalSize = maxCumulativeSize
	}
	if maxTotalSize <= coinbaseReserve {
		return nil, 0, 0
	}
	maxTotalSize -= coinbaseReserve

	spentInTemplate := make(map[types.KeyImage]struct{})

	for _, e := range candidates {
		if totalSize+e.BlobSize > maxTotalSize {
			continue
		}

		// Entries re-injected by a reorg may conflict with each other;
		// only one side fits a single block.
		conflict := false
		for _, image := range e.Tx.KeyImages() {
			if _, dup := spentInTemplate[image]; dup {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}

		if !p.isReady(e) {
			continue
		}

		for _, image := range e.Tx.KeyImages() {
			spentInTemplate[image] = struct{}{}
		}
		txs = append(txs, e.Tx)
		totalSize += e.BlobSize
		totalFee += e.Fee
	}
	return txs, totalSize, totalFee
}

// isReady decides whether an entry can enter a block on the current tip,
// using the two block-info watermarks to avoid re-validating after every
// tip change.
func (p *Pool) isReady(e *Entry) bool {
	tipHeight, tipHash := p.validator.Tail()

	p.mu.Lock()
	maxUsed := e.MaxUsedBlock
	lastFailed := e.LastFailedBlock
	p.mu.Unlock()

	// Failed against this exact tip already.
	if !lastFailed.Empty() && lastFailed.Height == tipHeight && lastFailed.Hash == tipHash {
		return false
	}

	// Validated against a block still on the main chain: still good.
	if !maxUsed.Empty() {
		if hash, ok := p.validator.GetBlockHashByHeight(maxUsed.Height); ok && hash == maxUsed.Hash {
			return true
		}
	}

	// Revalidate against the current tip.
	if _, err := p.validator.CheckTransactionInputs(e.Tx); err != nil {
		p.mu.Lock()
		e.LastFailedBlock = BlockInfo{Height: tipHeight, Hash: tipHash}
		p.mu.Unlock()
		return false
	}

	p.mu.Lock()
	e.MaxUsedBlock = BlockInfo{Height: tipHeight, Hash: tipHash}
	e.LastFailedBlock = BlockInfo{}
	p.mu.Unlock()
	return true
}
