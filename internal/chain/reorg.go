package chain

import (
	"errors"
	"fmt"

	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// ErrReorgTooDeep is returned when a switch would cross the depth limit
// and deep reorgs are disabled.
var ErrReorgTooDeep = errors.New("reorganization too deep")

// addAlternativeLocked validates a block whose parent is known but is not
// the tip, stores it as an alternative, and switches the chains when the
// alternative accumulates more work than main.
func (bc *Blockchain) addAlternativeLocked(blk *block.Block, hash types.Hash, txs []*transaction.Transaction) (AddResult, []event, error) {
	// Locate the parent and the alternative chain prefix.
	altChain, forkHeight, err := bc.collectAltChainLocked(blk.PreviousBlockHash)
	if err != nil {
		return Rejected, nil, err
	}

	var height uint64
	if len(altChain) > 0 {
		height = altChain[len(altChain)-1].height + 1
	} else {
		height = forkHeight + 1
	}

	chainHeight := uint64(len(bc.entries)) - 1
	if !bc.checkpoints.IsAlternativeBlockAllowed(chainHeight, height) {
		return Rejected, nil, fmt.Errorf("%w: alternative at height %d below top checkpoint", ErrCheckpointConflict, height)
	}

	if want := bc.expectedVersionLocked(height); blk.MajorVersion != want {
		return Rejected, nil, fmt.Errorf("%w: major %d at height %d, want %d", ErrBadVersion, blk.MajorVersion, height, want)
	}
	if err := bc.validateMergeMining(blk); err != nil {
		return Rejected, nil, err
	}

	// The trailing window of the alternative chain: main blocks below
	// the fork, then the alternative prefix.
	timestamps, cumDiffs := bc.altWindowLocked(altChain, forkHeight)

	window := bc.currency.TimestampCheckWindow(height)
	if median := medianTail(timestamps, window); blk.Timestamp < median {
		return Rejected, nil, fmt.Errorf("%w: timestamp %d below median %d", ErrBadTimestamp, blk.Timestamp, median)
	}
	if limit := bc.now() + bc.currency.FutureTimeLimit(height); blk.Timestamp > limit {
		return Rejected, nil, fmt.Errorf("%w: timestamp %d beyond limit %d", ErrBadTimestamp, blk.Timestamp, limit)
	}

	version := bc.currency.BlockMajorVersionForHeight(height)
	difficulty := bc.currency.NextDifficulty(height, version, timestamps, cumDiffs)
	if difficulty == 0 {
		bc.quarantine("alternative difficulty computed as zero")
		return Rejected, nil, ErrQuarantined
	}

	blob, err := blk.HashingBlob()
	if err != nil {
		return Rejected, nil, fmt.Errorf("%w: %v", ErrBadVersion, err)
	}
	if pow := bc.powHasher.PowHash(blob); !crypto.CheckHash(pow, difficulty) {
		return Rejected, nil, fmt.Errorf("%w: alternative difficulty %d", ErrBadPoW, difficulty)
	}

	if err := bc.validateCoinbaseLocked(&blk.BaseTransaction, height); err != nil {
		return Rejected, nil, err
	}

	var parentCumDiff uint64
	if len(altChain) > 0 {
		parentCumDiff = altChain[len(altChain)-1].cumulativeDifficulty
	} else {
		parentCumDiff = bc.entries[forkHeight].CumulativeDifficulty
	}

	alt := &altEntry{
		block:                *blk,
		height:               height,
		cumulativeDifficulty: parentCumDiff + difficulty,
		transactions:         txs,
	}
	bc.alternatives[hash] = alt

	mainWork := bc.entries[len(bc.entries)-1].CumulativeDifficulty
	if alt.cumulativeDifficulty <= mainWork {
		log.Chain.Info().
			Str("hash", hash.String()).
			Uint64("height", height).
			Uint64("alt_work", alt.cumulativeDifficulty).
			Uint64("main_work", mainWork).
			Msg("block added as alternative")
		return AddedAsAlternative, nil, nil
	}

	events, err := bc.switchToAlternativeLocked(hash)
	if err != nil {
		return Rejected, nil, err
	}
	return AddedToMain, events, nil
}

// collectAltChainLocked walks from parentHash back to the main chain,
// returning the alternative ancestry oldest-first and the fork height.
func (bc *Blockchain) collectAltChainLocked(parentHash types.Hash) ([]*altEntry, uint64, error) {
	var reversed []*altEntry
	cursor := parentHash
	for {
		if height, onMain := bc.index.GetHeight(cursor); onMain {
			// Ascending order.
			chain := make([]*altEntry, len(reversed))
			for i, e := range reversed {
				chain[len(reversed)-1-i] = e
			}
			return chain, height, nil
		}
		alt, ok := bc.alternatives[cursor]
		if !ok {
			return nil, 0, ErrOrphan
		}
		reversed = append(reversed, alt)
		cursor = alt.block.PreviousBlockHash
		if len(reversed) > len(bc.alternatives) {
			bc.quarantine("alternative chain contains a cycle")
			return nil, 0, ErrQuarantined
		}
	}
}

// altWindowLocked assembles the difficulty window of an alternative chain:
// main-chain entries up to the fork, then the alternative prefix,
// oldest first.
func (bc *Blockchain) altWindowLocked(altChain []*altEntry, forkHeight uint64) ([]uint64, []uint64) {
	need := uint64(difficultyWindowSlack)

	start := uint64(0)
	mainCount := forkHeight + 1
	if mainCount > need {
		start = mainCount - need
	}

	timestamps := make([]uint64, 0, mainCount-start+uint64(len(altChain)))
	cumDiffs := make([]uint64, 0, cap(timestamps))
	for h := start; h <= forkHeight; h++ {
		timestamps = append(timestamps, bc.entries[h].Block.Timestamp)
		cumDiffs = append(cumDiffs, bc.entries[h].CumulativeDifficulty)
	}
	for _, alt := range altChain {
		timestamps = append(timestamps, alt.block.Timestamp)
		cumDiffs = append(cumDiffs, alt.cumulativeDifficulty)
	}
	return timestamps, cumDiffs
}

// medianTail returns the median of the last window values.
func medianTail(values []uint64, window int) uint64 {
	if len(values) > window {
		values = values[len(values)-window:]
	}
	return medianValue(values)
}

// switchToAlternativeLocked reorganizes the chain onto the alternative
// ending at altTipHash. The disconnected main suffix is kept until the
// whole alternative replays cleanly; on any failure the original chain is
// restored and the switch is rejected.
func (bc *Blockchain) switchToAlternativeLocked(altTipHash types.Hash) ([]event, error) {
	alt := bc.alternatives[altTipHash]
	altChain, forkHeight, err := bc.collectAltChainLocked(alt.block.PreviousBlockHash)
	if err != nil {
		return nil, err
	}
	altChain = append(altChain, alt)

	tipHeight := uint64(len(bc.entries)) - 1
	depth := tipHeight - forkHeight
	if !bc.allowDeepReorg && depth > MaxReorgDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrReorgTooDeep, depth)
	}

	log.Chain.Warn().
		Uint64("fork_height", forkHeight).
		Uint64("depth", depth).
		Int("alt_blocks", len(altChain)).
		Msg("chain switch started")

	// Disconnect the main suffix, newest first, keeping the entries for
	// restore and their transactions for the pool.
	var events []event
	var disconnected []*BlockEntry
	for uint64(len(bc.entries))-1 > forkHeight {
		entry, err := bc.popBlockLocked()
		if err != nil {
			bc.quarantine(err.Error())
			return nil, fmt.Errorf("%w: %v", ErrQuarantined, err)
		}
		disconnected = append(disconnected, entry)
		hash := entry.Block.MustHash()
		events = append(events, event{blockDisconnected: &hash, height: entry.Height})
	}

	restore := func() {
		// Unwind whatever part of the alternative was applied.
		for uint64(len(bc.entries))-1 > forkHeight {
			if _, err := bc.popBlockLocked(); err != nil {
				bc.quarantine(err.Error())
				return
			}
		}
		// Re-attach the saved suffix, oldest first.
		for i := len(disconnected) - 1; i >= 0; i-- {
			entry := disconnected[i]
			if err := bc.commitEntry(entry, entry.Block.MustHash()); err != nil {
				bc.quarantine(fmt.Sprintf("restore after failed switch: %v", err))
				return
			}
		}
	}

	// Replay the alternative through the direct-append validator.
	applied := make([]types.Hash, 0, len(altChain))
	for _, altBlk := range altChain {
		blkCopy := altBlk.block
		hash := blkCopy.MustHash()
		pushEvents, err := bc.pushBlockLocked(&blkCopy, hash, altBlk.transactions)
		if err != nil {
			log.Chain.Error().Str("hash", hash.String()).Err(err).Msg("alternative block failed during switch, restoring original chain")
			restore()
			return nil, fmt.Errorf("switch failed at %s: %w", hash, err)
		}
		events = append(events, pushEvents...)
		applied = append(applied, hash)
	}

	// The alternative is now main; the old suffix becomes alternative.
	for _, hash := range applied {
		delete(bc.alternatives, hash)
	}
	for _, entry := range disconnected {
		hash := entry.Block.MustHash()
		txs := make([]*transaction.Transaction, 0, len(entry.Transactions)-1)
		for t := 1; t < len(entry.Transactions); t++ {
			tx := entry.Transactions[t].Tx
			txs = append(txs, &tx)
		}
		bc.alternatives[hash] = &altEntry{
			block:                entry.Block,
			height:               entry.Height,
			cumulativeDifficulty: entry.CumulativeDifficulty,
			transactions:         txs,
		}
	}

	// Return disconnected transactions to the pool, kept-by-block,
	// unless the new branch included them.
	if bc.pool != nil {
		onNewBranch := make(map[types.Hash]struct{})
		for h := forkHeight + 1; h < uint64(len(bc.entries)); h++ {
			for t := range bc.entries[h].Transactions {
				onNewBranch[bc.entries[h].Transactions[t].Tx.Hash()] = struct{}{}
			}
		}
		for _, entry := range disconnected {
			for t := 1; t < len(entry.Transactions); t++ {
				tx := entry.Transactions[t].Tx
				txHash := tx.Hash()
				if _, included := onNewBranch[txHash]; included {
					continue
				}
				if err := bc.pool.Add(&tx, true); err != nil {
					log.Chain.Debug().Str("tx", txHash.String()).Err(err).Msg("reverted transaction not re-pooled")
				}
			}
		}
	}

	log.Chain.Warn().
		Uint64("new_height", uint64(len(bc.entries))-1).
		Msg("chain switch complete")
	return events, nil
}

// popBlockLocked detaches the tip block from every index and from the
// store, returning its entry. Genesis is never popped.
func (bc *Blockchain) popBlockLocked() (*BlockEntry, error) {
	if len(bc.entries) <= 1 {
		return nil, fmt.Errorf("cannot pop genesis")
	}

	height := uint64(len(bc.entries)) - 1
	entry := bc.entries[height]
	hash := entry.Block.MustHash()

	for t := len(entry.Transactions) - 1; t >= 0; t-- {
		te := &entry.Transactions[t]
		tx := &te.Tx
		txHash := tx.Hash()

		// Inputs: release key images and multisig usage.
		for _, in := range tx.Inputs {
			switch v := in.(type) {
			case *transaction.KeyInput:
				if !bc.spentImages.Remove(v.KeyImage) {
					return nil, fmt.Errorf("key image %s missing while popping height %d", v.KeyImage, height)
				}
			case *transaction.MultisigInput:
				usage, ok := bc.outputs.GetMultisig(v.Amount, v.OutputIndex)
				if !ok || !usage.IsUsed {
					return nil, fmt.Errorf("multisig usage %d/%d inconsistent while popping height %d", v.Amount, v.OutputIndex, height)
				}
				usage.IsUsed = false
			}
		}

		// Outputs: revoke global indices from the tail, newest first.
		for slot := len(tx.Outputs) - 1; slot >= 0; slot-- {
			out := tx.Outputs[slot]
			var ok bool
			switch out.Target.(type) {
			case *transaction.MultisigOutputTarget:
				ok = bc.outputs.PopMultisigTail(out.Amount)
			default:
				ok = bc.outputs.PopTail(out.Amount)
			}
			if !ok {
				return nil, fmt.Errorf("output table empty while popping height %d amount %d", height, out.Amount)
			}
		}

		delete(bc.txIndex, txHash)
		if bc.paymentIDs.Enabled() {
			if pid, err := transaction.PaymentIDFromExtra(tx.Extra); err == nil {
				bc.paymentIDs.Remove(pid, txHash)
			}
		}
	}

	bc.upgradeV6.PopVote(height)

	newTipHash := bc.entries[height-1].Block.MustHash()
	if err := bc.store.PopEntry(height, newTipHash, height-1); err != nil {
		return nil, fmt.Errorf("pop stored entry %d: %w", height, err)
	}

	bc.entries = bc.entries[:height]
	bc.index.Pop()
	delete(bc.blobCache, hash)

	return entry, nil
}
