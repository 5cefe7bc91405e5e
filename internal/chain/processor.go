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

// Additional rejection reasons for block processing.
var (
	ErrCheckpointConflict  = errors.New("block conflicts with a checkpoint")
	ErrMissingTransactions = errors.New("block transactions not available")
)

// AddResult classifies the outcome of AddBlock.
type AddResult int

const (
	// AddedToMain means the block extended the canonical chain (possibly
	// after a reorganization).
	AddedToMain AddResult = iota
	// AddedAsAlternative means the block was stored on a side chain that
	// has not overtaken main.
	AddedAsAlternative
	// Rejected means the block was refused; the returned error carries
	// the reason.
	Rejected
)

// AddBlock validates and applies a delivered block. txs carries the bodies
// of the block's transaction hashes when the caller has them; missing
// bodies are taken from the mempool. The call is linearized under the
// engine lock; observers fire after the lock is released.
func (bc *Blockchain) AddBlock(blk *block.Block, txs []*transaction.Transaction) (AddResult, error) {
	bc.mu.Lock()

	if err := bc.checkOperable(); err != nil {
		bc.mu.Unlock()
		return Rejected, err
	}

	hash, err := blk.Hash()
	if err != nil {
		bc.mu.Unlock()
		return Rejected, fmt.Errorf("%w: %v", ErrBadVersion, err)
	}

	if _, onMain := bc.index.GetHeight(hash); onMain {
		bc.mu.Unlock()
		return Rejected, ErrAlreadyKnown
	}
	if _, asAlt := bc.alternatives[hash]; asAlt {
		bc.mu.Unlock()
		return Rejected, ErrAlreadyKnown
	}

	_, tipHash, _ := bc.index.Tail()

	var result AddResult
	var events []event
	var addErr error

	switch {
	case blk.PreviousBlockHash == tipHash:
		events, addErr = bc.pushBlockLocked(blk, hash, txs)
		result = AddedToMain

	default:
		_, parentOnMain := bc.index.GetHeight(blk.PreviousBlockHash)
		_, parentOnAlt := bc.alternatives[blk.PreviousBlockHash]
		if !parentOnMain && !parentOnAlt {
			bc.mu.Unlock()
			return Rejected, ErrOrphan
		}
		result, events, addErr = bc.addAlternativeLocked(blk, hash, txs)
	}

	observers := bc.snapshotObservers()
	bc.mu.Unlock()

	if addErr != nil {
		return Rejected, addErr
	}
	dispatch(observers, events)
	return result, nil
}

// AddTransaction validates a transaction against the tip and hands it to
// the mempool.
func (bc *Blockchain) AddTransaction(tx *transaction.Transaction) error {
	if bc.pool == nil {
		return fmt.Errorf("no mempool attached")
	}
	return bc.pool.Add(tx, false)
}

// expectedVersionLocked returns the required major version at a height:
// the hard schedule, overridden by a completed v6 vote.
func (bc *Blockchain) expectedVersionLocked(height uint64) uint8 {
	v := bc.currency.BlockMajorVersionForHeight(height)
	if act, ok := bc.upgradeV6.ActivationHeight(); ok && height >= act {
		return block.MajorVersion6
	}
	return v
}

// pushBlockLocked runs the direct-append validator and commits the block
// as the new tip. Transactions taken from the pool are returned to it on
// failure.
func (bc *Blockchain) pushBlockLocked(blk *block.Block, hash types.Hash, provided []*transaction.Transaction) ([]event, error) {
	height := uint64(len(bc.entries))

	// Version against the upgrade schedule.
	if want := bc.expectedVersionLocked(height); blk.MajorVersion != want {
		return nil, fmt.Errorf("%w: major %d at height %d, want %d", ErrBadVersion, blk.MajorVersion, height, want)
	}

	// Merge-mining container, for the versions that carry one.
	if err := bc.validateMergeMining(blk); err != nil {
		return nil, err
	}

	// Checkpoint pin.
	if err := bc.checkpoints.Check(height, hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckpointConflict, err)
	}

	// Timestamp window: above the trailing median, below now plus the
	// future-time slack.
	window := bc.currency.TimestampCheckWindow(height)
	if median := bc.medianTimestampLocked(height, window); blk.Timestamp < median {
		return nil, fmt.Errorf("%w: timestamp %d below median %d", ErrBadTimestamp, blk.Timestamp, median)
	}
	if limit := bc.now() + bc.currency.FutureTimeLimit(height); blk.Timestamp > limit {
		return nil, fmt.Errorf("%w: timestamp %d beyond limit %d", ErrBadTimestamp, blk.Timestamp, limit)
	}

	// Proof of work at the required difficulty, at every height, the
	// checkpointed range included.
	difficulty := bc.difficultyForNextBlockLocked()
	if difficulty == 0 {
		bc.quarantine("difficulty computed as zero")
		return nil, ErrQuarantined
	}
	blob, err := bc.hashingBlobLocked(hash, blk)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadVersion, err)
	}
	pow := bc.powHasher.PowHash(blob)
	if !crypto.CheckHash(pow, difficulty) {
		return nil, fmt.Errorf("%w: difficulty %d", ErrBadPoW, difficulty)
	}

	// Coinbase shape.
	if err := bc.validateCoinbaseLocked(&blk.BaseTransaction, height); err != nil {
		return nil, err
	}

	// Resolve transaction bodies: provided first, then the pool.
	txs, fromPool, err := bc.resolveTransactionsLocked(blk, provided)
	if err != nil {
		return nil, err
	}
	returnToPool := func() {
		for _, tx := range fromPool {
			if addErr := bc.pool.Add(tx, true); addErr != nil {
				log.Chain.Debug().Str("tx", tx.Hash().String()).Err(addErr).Msg("could not return transaction to pool")
			}
		}
	}

	// Validate every transaction against current state, tracking key
	// images within the block so an in-block double spend is caught.
	checkpointZone := bc.checkpoints.IsInZone(height)
	blockImages := make(map[types.KeyImage]struct{})
	var totalFee uint64
	cumulativeSize := uint64(blk.BaseTransaction.BlobSize())

	for i, tx := range txs {
		txHash := tx.Hash()
		if txHash != blk.TransactionHashes[i] {
			returnToPool()
			return nil, fmt.Errorf("%w: body %d hashes to %s, want %s", ErrMissingTransactions, i, txHash, blk.TransactionHashes[i])
		}
		if _, dup := bc.txIndex[txHash]; dup {
			returnToPool()
			return nil, fmt.Errorf("%w: transaction %s already on chain", ErrBadInput, txHash)
		}
		for _, image := range tx.KeyImages() {
			if _, dup := blockImages[image]; dup {
				returnToPool()
				return nil, fmt.Errorf("%w: image %s duplicated within block", ErrDoubleSpend, image)
			}
			blockImages[image] = struct{}{}
		}
		if err := bc.validateTransactionLocked(tx, height, !checkpointZone); err != nil {
			returnToPool()
			return nil, err
		}

		fee, err := tx.Fee()
		if err != nil {
			returnToPool()
			return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
		}
		totalFee += fee
		cumulativeSize += uint64(tx.BlobSize())
	}

	// Size bounds: twice the median (enforced by the reward computation)
	// and the absolute growth cap.
	if maxSize := bc.currency.MaxBlockCumulativeSize(height); cumulativeSize > maxSize {
		returnToPool()
		return nil, fmt.Errorf("%w: block is %d bytes, cap %d", ErrTooBig, cumulativeSize, maxSize)
	}

	prev := bc.entries[height-1]
	medianSize := bc.medianBlockSizeLocked(height)

	reward, emissionChange, err := bc.currency.GetBlockReward(blk.MajorVersion, height, medianSize,
		cumulativeSize, prev.AlreadyGeneratedCoins, totalFee)
	if err != nil {
		returnToPool()
		return nil, fmt.Errorf("%w: %v", ErrTooBig, err)
	}

	coinbaseTotal, err := blk.BaseTransaction.OutputsAmount()
	if err != nil {
		returnToPool()
		return nil, fmt.Errorf("%w: %v", ErrBadCoinbase, err)
	}
	if coinbaseTotal != reward {
		returnToPool()
		return nil, fmt.Errorf("%w: coinbase pays %d, penalized reward is %d", ErrBadCoinbase, coinbaseTotal, reward)
	}

	generatedCoins := prev.AlreadyGeneratedCoins
	if emissionChange >= 0 {
		generatedCoins += uint64(emissionChange)
	} else {
		generatedCoins -= uint64(-emissionChange)
	}

	entry := bc.buildEntryFromParts(blk, txs, height, cumulativeSize,
		prev.CumulativeDifficulty+difficulty, generatedCoins)

	if err := bc.commitEntry(entry, hash); err != nil {
		returnToPool()
		return nil, err
	}

	// Evict included and conflicting pool entries.
	if bc.pool != nil {
		spent := make([]types.KeyImage, 0, len(blockImages))
		for image := range blockImages {
			spent = append(spent, image)
		}
		bc.pool.OnBlockAdded(spent, blk.TransactionHashes)
	}

	return []event{{blockAdded: &hash, height: height}}, nil
}

// resolveTransactionsLocked matches the block's hash list with bodies from
// the provided slice and the mempool. The second return value lists bodies
// taken out of the pool, which the caller must re-inject on failure.
func (bc *Blockchain) resolveTransactionsLocked(blk *block.Block, provided []*transaction.Transaction) ([]*transaction.Transaction, []*transaction.Transaction, error) {
	byHash := make(map[types.Hash]*transaction.Transaction, len(provided))
	for _, tx := range provided {
		byHash[tx.Hash()] = tx
	}

	txs := make([]*transaction.Transaction, 0, len(blk.TransactionHashes))
	var fromPool []*transaction.Transaction
	var missing []types.Hash

	for _, want := range blk.TransactionHashes {
		if tx, ok := byHash[want]; ok {
			txs = append(txs, tx)
			continue
		}
		if bc.pool != nil {
			if tx, _, ok := bc.pool.Take(want); ok {
				txs = append(txs, tx)
				fromPool = append(fromPool, tx)
				continue
			}
		}
		missing = append(missing, want)
	}

	if len(missing) > 0 {
		for _, tx := range fromPool {
			if err := bc.pool.Add(tx, true); err != nil {
				log.Chain.Debug().Str("tx", tx.Hash().String()).Err(err).Msg("could not return transaction to pool")
			}
		}
		return nil, nil, fmt.Errorf("%w: %d bodies missing, first %s", ErrMissingTransactions, len(missing), missing[0])
	}
	return txs, fromPool, nil
}

// buildEntryFromParts assembles a BlockEntry with the global output
// indices every output will receive on commit. Index assignment is pure:
// the running per-amount counters start from the current table sizes.
func (bc *Blockchain) buildEntryFromParts(blk *block.Block, txs []*transaction.Transaction,
	height, cumulativeSize, cumulativeDifficulty, generatedCoins uint64) *BlockEntry {

	entry := &BlockEntry{
		Block:                 *blk,
		Height:                height,
		BlockCumulativeSize:   cumulativeSize,
		CumulativeDifficulty:  cumulativeDifficulty,
		AlreadyGeneratedCoins: generatedCoins,
	}

	keyCounters := make(map[uint64]uint32)
	msigCounters := make(map[uint64]uint32)

	assign := func(tx *transaction.Transaction) TransactionEntry {
		te := TransactionEntry{Tx: *tx}
		te.GlobalOutputIndexes = make([]uint32, len(tx.Outputs))
		for slot, out := range tx.Outputs {
			switch out.Target.(type) {
			case *transaction.MultisigOutputTarget:
				idx := bc.outputs.MultisigCount(out.Amount) + msigCounters[out.Amount]
				msigCounters[out.Amount]++
				te.GlobalOutputIndexes[slot] = idx
			default:
				idx := bc.outputs.Count(out.Amount) + keyCounters[out.Amount]
				keyCounters[out.Amount]++
				te.GlobalOutputIndexes[slot] = idx
			}
		}
		return te
	}

	entry.Transactions = make([]TransactionEntry, 0, 1+len(txs))
	entry.Transactions = append(entry.Transactions, assign(&blk.BaseTransaction))
	for _, tx := range txs {
		entry.Transactions = append(entry.Transactions, assign(tx))
	}
	return entry
}

// buildEntry is the genesis-path variant of buildEntryFromParts.
func (bc *Blockchain) buildEntry(blk *block.Block, txs []*transaction.Transaction,
	cumulativeDifficulty, generatedCoins uint64) (*BlockEntry, error) {

	size := uint64(blk.BaseTransaction.BlobSize())
	for _, tx := range txs {
		size += uint64(tx.BlobSize())
	}
	// Genesis cumulative difficulty is 1 so every descendant has more
	// work than an empty chain.
	if cumulativeDifficulty == 0 {
		cumulativeDifficulty = 1
	}
	if generatedCoins == 0 {
		out, err := blk.BaseTransaction.OutputsAmount()
		if err != nil {
			return nil, err
		}
		generatedCoins = out
	}
	return bc.buildEntryFromParts(blk, txs, uint64(len(bc.entries)), size, cumulativeDifficulty, generatedCoins), nil
}

// commitEntry persists the entry and attaches it to the in-memory indices.
func (bc *Blockchain) commitEntry(entry *BlockEntry, hash types.Hash) error {
	if err := bc.store.CommitEntry(entry, hash); err != nil {
		return fmt.Errorf("persist entry %d: %w", entry.Height, err)
	}
	if err := bc.attachEntry(entry); err != nil {
		bc.quarantine(err.Error())
		return fmt.Errorf("%w: %v", ErrQuarantined, err)
	}
	return nil
}

// attachEntry wires a (stored or freshly built) entry into the in-memory
// state: block index, output tables, spent key images, transaction map,
// secondary indices and the upgrade vote window. The entry's recorded
// global indices must match the assignment order exactly.
func (bc *Blockchain) attachEntry(entry *BlockEntry) error {
	hash := entry.Block.MustHash()

	if got := uint64(len(bc.entries)); got != entry.Height {
		return fmt.Errorf("entry height %d attached at %d", entry.Height, got)
	}

	for t := range entry.Transactions {
		te := &entry.Transactions[t]
		tx := &te.Tx
		txHash := tx.Hash()
		txIdx := TransactionIndex{Block: entry.Height, Transaction: uint16(t)}

		// Outputs, in slot order.
		for slot, out := range tx.Outputs {
			var got uint32
			switch out.Target.(type) {
			case *transaction.MultisigOutputTarget:
				got = bc.outputs.AppendMultisig(out.Amount, MultisigOutputUsage{
					TxIndex: txIdx,
					OutSlot: uint16(slot),
				})
			default:
				got = bc.outputs.Append(out.Amount, OutputRef{
					TxIndex: txIdx,
					OutSlot: uint16(slot),
				})
			}
			if got != te.GlobalOutputIndexes[slot] {
				return fmt.Errorf("output index drift: tx %s slot %d assigned %d, recorded %d",
					txHash, slot, got, te.GlobalOutputIndexes[slot])
			}
		}

		// Inputs: spent key images and multisig usage flags.
		for _, in := range tx.Inputs {
			switch v := in.(type) {
			case *transaction.KeyInput:
				if !bc.spentImages.Insert(v.KeyImage, entry.Height) {
					return fmt.Errorf("key image %s already spent while attaching height %d", v.KeyImage, entry.Height)
				}
			case *transaction.MultisigInput:
				usage, ok := bc.outputs.GetMultisig(v.Amount, v.OutputIndex)
				if !ok || usage.IsUsed {
					return fmt.Errorf("multisig reference %d/%d invalid while attaching height %d", v.Amount, v.OutputIndex, entry.Height)
				}
				usage.IsUsed = true
			}
		}

		bc.txIndex[txHash] = txIdx
		if bc.paymentIDs.Enabled() {
			if pid, err := transaction.PaymentIDFromExtra(tx.Extra); err == nil {
				bc.paymentIDs.Add(pid, txHash)
			}
		}
	}

	bc.upgradeV6.PushVote(entry.Block.MinorVersion, entry.Height)
	bc.entries = append(bc.entries, entry)
	bc.index.Push(hash)
	return nil
}
