// Package chain implements the blockchain engine: the canonical chain
// store, alternative chains and reorganization, the spent key-image set,
// the per-amount output index, and every validating entry point of the
// core.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mevanet/mevanet-chain/internal/currency"
	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Engine-level errors.
var (
	ErrQuarantined  = errors.New("engine is quarantined after an invariant breach")
	ErrShutdown     = errors.New("engine is shutting down")
	ErrNotFound     = errors.New("not found")
	ErrAlreadyKnown = errors.New("block already known")
	ErrOrphan       = errors.New("previous block unknown")
)

// Observer is the callback set notified about state changes. Callbacks run
// after the engine lock is released and the state is consistent; a nil
// callback is skipped.
type Observer struct {
	BlockAdded         func(hash types.Hash, height uint64)
	BlockDisconnected  func(hash types.Hash, height uint64)
	TransactionAdded   func(hash types.Hash)
	TransactionRemoved func(hash types.Hash)
}

// TxPool is the mempool surface the engine drives. Implemented by
// the mempool package; the engine owns eviction and re-injection.
type TxPool interface {
	// Take removes and returns a pooled transaction.
	Take(hash types.Hash) (*transaction.Transaction, uint64, bool)
	// Add admits a transaction; keptByBlock marks reorg re-injections.
	Add(tx *transaction.Transaction, keptByBlock bool) error
	// OnBlockAdded evicts included transactions and pool entries whose
	// key images the block spent.
	OnBlockAdded(spentImages []types.KeyImage, included []types.Hash)
}

// altEntry is a candidate block on an alternative chain.
type altEntry struct {
	block                block.Block
	height               uint64
	cumulativeDifficulty uint64
	// transactions may be nil if the block arrived without bodies; the
	// pool is consulted at switch time.
	transactions []*transaction.Transaction
}

// Blockchain is the engine. One recursive-style lock covers the block
// store, output index, key-image set and pool interactions: consensus
// paths are linearized, not concurrent.
type Blockchain struct {
	mu sync.Mutex

	currency    *currency.Currency
	store       *Store
	powHasher   crypto.PowHasher
	checkpoints *Checkpoints

	allowDeepReorg bool
	noBlobs        bool

	entries     []*BlockEntry
	index       *BlockIndex
	outputs     *OutputIndex
	spentImages *KeyImageSet
	txIndex     map[types.Hash]TransactionIndex
	paymentIDs  *PaymentIDIndex
	upgradeV6   *currency.UpgradeDetector

	alternatives map[types.Hash]*altEntry

	blobCache map[types.Hash][]byte

	pool TxPool

	// obsMu guards the observer list on its own so transaction events
	// can be relayed while the engine lock is held.
	obsMu       sync.Mutex
	observers   []Observer
	quarantined bool
	shutdown    bool

	// now is the time source; overridable in tests.
	now func() uint64
}

// Options configure engine construction.
type Options struct {
	Currency       *currency.Currency
	Store          *Store
	PowHasher      crypto.PowHasher
	Checkpoints    *Checkpoints
	Pool           TxPool
	AllowDeepReorg bool
	NoBlobs        bool
	IndicesEnabled bool
}

// MaxReorgDepth bounds a switch unless deep reorgs are allowed.
const MaxReorgDepth = 1000

// New constructs the engine and loads the canonical sequence from the
// store, rebuilding every derived index. A fresh store is initialized with
// the genesis block.
func New(opts Options) (*Blockchain, error) {
	if opts.Currency == nil {
		return nil, fmt.Errorf("currency is nil")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if opts.PowHasher == nil {
		opts.PowHasher = crypto.SlowHasher{}
	}
	if opts.Checkpoints == nil {
		opts.Checkpoints = NewCheckpoints()
	}

	bc := &Blockchain{
		currency:       opts.Currency,
		store:          opts.Store,
		powHasher:      opts.PowHasher,
		checkpoints:    opts.Checkpoints,
		allowDeepReorg: opts.AllowDeepReorg,
		noBlobs:        opts.NoBlobs,
		index:          NewBlockIndex(),
		outputs:        NewOutputIndex(),
		spentImages:    NewKeyImageSet(),
		txIndex:        make(map[types.Hash]TransactionIndex),
		paymentIDs:     NewPaymentIDIndex(opts.IndicesEnabled),
		upgradeV6:      currency.NewUpgradeDetector(opts.Currency, block.MajorVersion6),
		alternatives:   make(map[types.Hash]*altEntry),
		blobCache:      make(map[types.Hash][]byte),
		pool:           opts.Pool,
		now:            func() uint64 { return uint64(time.Now().Unix()) },
	}

	if err := bc.load(); err != nil {
		return nil, err
	}
	return bc, nil
}

// load replays the stored canonical sequence into the in-memory indices,
// or commits genesis on a fresh store.
func (bc *Blockchain) load() error {
	tipHeight, ok, err := bc.store.TipHeight()
	if err != nil {
		return fmt.Errorf("read tip: %w", err)
	}

	if !ok {
		gen := bc.currency.GenesisBlock()
		entry, err := bc.buildEntry(gen, nil, 0, 0)
		if err != nil {
			return fmt.Errorf("build genesis entry: %w", err)
		}
		if err := bc.commitEntry(entry, bc.currency.GenesisHash()); err != nil {
			return fmt.Errorf("commit genesis: %w", err)
		}
		log.Chain.Info().Str("hash", bc.currency.GenesisHash().String()).Msg("initialized fresh chain from genesis")
		return nil
	}

	for h := uint64(0); h <= tipHeight; h++ {
		entry, err := bc.store.GetEntry(h)
		if err != nil {
			return fmt.Errorf("load height %d: %w", h, err)
		}
		if err := bc.attachEntry(entry); err != nil {
			return fmt.Errorf("attach height %d: %w", h, err)
		}
	}

	if got, want := bc.entries[0].Block.MustHash(), bc.currency.GenesisHash(); got != want {
		return fmt.Errorf("stored genesis %s does not match currency genesis %s", got, want)
	}

	storedTip, err := bc.store.TipHash()
	if err != nil {
		return fmt.Errorf("read tip hash: %w", err)
	}
	_, tipHash, _ := bc.index.Tail()
	if storedTip != tipHash {
		return fmt.Errorf("stored tip %s does not match replayed tip %s", storedTip, tipHash)
	}

	log.Chain.Info().Uint64("height", tipHeight).Str("tip", tipHash.String()).Msg("loaded chain")
	return nil
}

// SetPool attaches the mempool after construction; the pool needs the
// engine as its validator, so the two are wired in two steps.
func (bc *Blockchain) SetPool(pool TxPool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.pool = pool
}

// AddObserver registers an observer. Observers are append-only while the
// engine runs.
func (bc *Blockchain) AddObserver(o Observer) {
	bc.obsMu.Lock()
	defer bc.obsMu.Unlock()
	bc.observers = append(bc.observers, o)
}

// NotifyTransactionAdded relays a mempool admission to the observers.
// Safe to call from pool callbacks regardless of the engine lock.
func (bc *Blockchain) NotifyTransactionAdded(hash types.Hash) {
	dispatch(bc.snapshotObservers(), []event{{txAdded: &hash}})
}

// NotifyTransactionRemoved relays a mempool eviction to the observers.
func (bc *Blockchain) NotifyTransactionRemoved(hash types.Hash) {
	dispatch(bc.snapshotObservers(), []event{{txRemoved: &hash}})
}

// Shutdown prevents new operations from starting. In-flight calls run to
// completion.
func (bc *Blockchain) Shutdown() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.shutdown = true
}

// quarantine flips the engine read-only after a detected inconsistency.
func (bc *Blockchain) quarantine(reason string) {
	bc.quarantined = true
	log.Chain.Error().Str("reason", reason).Msg("invariant breach: engine quarantined, resync required")
}

func (bc *Blockchain) checkOperable() error {
	if bc.shutdown {
		return ErrShutdown
	}
	if bc.quarantined {
		return ErrQuarantined
	}
	return nil
}

// Height returns the tip height.
func (bc *Blockchain) Height() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return uint64(len(bc.entries)) - 1
}

// Tail returns the tip height and hash.
func (bc *Blockchain) Tail() (uint64, types.Hash) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	h, hash, _ := bc.index.Tail()
	return h, hash
}

// HaveBlock reports whether the hash is known on main or as an
// alternative.
func (bc *Blockchain) HaveBlock(hash types.Hash) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if _, ok := bc.index.GetHeight(hash); ok {
		return true
	}
	_, ok := bc.alternatives[hash]
	return ok
}

// GetBlockHeight returns the main-chain height of a block hash.
func (bc *Blockchain) GetBlockHeight(hash types.Hash) (uint64, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.index.GetHeight(hash)
}

// GetBlockHashByHeight returns the main-chain hash at a height.
func (bc *Blockchain) GetBlockHashByHeight(height uint64) (types.Hash, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.index.GetHash(height)
}

// GetBlockByHash returns a copy of a main-chain or alternative block.
func (bc *Blockchain) GetBlockByHash(hash types.Hash) (*block.Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if height, ok := bc.index.GetHeight(hash); ok {
		blk := bc.entries[height].Block
		return &blk, true
	}
	if alt, ok := bc.alternatives[hash]; ok {
		blk := alt.block
		return &blk, true
	}
	return nil, false
}

// GetBlockByHeight returns a copy of the main-chain block at a height.
func (bc *Blockchain) GetBlockByHeight(height uint64) (*block.Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if height >= uint64(len(bc.entries)) {
		return nil, false
	}
	blk := bc.entries[height].Block
	return &blk, true
}

// GetBlockEntry returns the stored metadata of the block at a height.
func (bc *Blockchain) GetBlockEntry(height uint64) (cumulativeSize, cumulativeDifficulty, generatedCoins, timestamp uint64, ok bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if height >= uint64(len(bc.entries)) {
		return 0, 0, 0, 0, false
	}
	e := bc.entries[height]
	return e.BlockCumulativeSize, e.CumulativeDifficulty, e.AlreadyGeneratedCoins, e.Block.Timestamp, true
}

// CoinsInCirculation returns the generated coins at the tip.
func (bc *Blockchain) CoinsInCirculation() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.entries[len(bc.entries)-1].AlreadyGeneratedCoins
}

// CumulativeDifficulty returns the total work at the tip.
func (bc *Blockchain) CumulativeDifficulty() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.entries[len(bc.entries)-1].CumulativeDifficulty
}

// AlternativeBlockCount returns the number of stored alternative blocks.
func (bc *Blockchain) AlternativeBlockCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.alternatives)
}

// AlternativeBlockHashes enumerates the stored alternative blocks.
func (bc *Blockchain) AlternativeBlockHashes() []types.Hash {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]types.Hash, 0, len(bc.alternatives))
	for h := range bc.alternatives {
		out = append(out, h)
	}
	return out
}

// HaveTransaction reports whether the transaction is on the main chain.
func (bc *Blockchain) HaveTransaction(hash types.Hash) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	_, ok := bc.txIndex[hash]
	return ok
}

// GetTransaction returns a main-chain transaction and its block height.
func (bc *Blockchain) GetTransaction(hash types.Hash) (*transaction.Transaction, uint64, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	idx, ok := bc.txIndex[hash]
	if !ok {
		return nil, 0, false
	}
	tx := bc.entries[idx.Block].Transactions[idx.Transaction].Tx
	return &tx, idx.Block, true
}

// GetOutputsGlobalIndices returns the global output indices assigned to a
// main-chain transaction's outputs.
func (bc *Blockchain) GetOutputsGlobalIndices(txHash types.Hash) ([]uint32, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	idx, ok := bc.txIndex[txHash]
	if !ok {
		return nil, false
	}
	src := bc.entries[idx.Block].Transactions[idx.Transaction].GlobalOutputIndexes
	out := make([]uint32, len(src))
	copy(out, src)
	return out, true
}

// IsKeyImageSpent reports whether the key image appears on the main chain.
func (bc *Blockchain) IsKeyImageSpent(image types.KeyImage) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.spentImages.Contains(image)
}

// BuildSparseChain returns the sparse chain from the tip.
func (bc *Blockchain) BuildSparseChain() []types.Hash {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	height, _, _ := bc.index.Tail()
	return bc.index.BuildSparseChain(height)
}

// FindBlockchainSupplement locates the fork point with a remote sparse
// chain and returns up to maxCount main-chain hashes from there, plus the
// local total height.
func (bc *Blockchain) FindBlockchainSupplement(remoteSparse []types.Hash, maxCount int) (startHeight uint64, hashes []types.Hash, totalHeight uint64, err error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	start, ok := bc.index.FindSupplement(remoteSparse)
	if !ok {
		return 0, nil, 0, fmt.Errorf("no common ancestor: %w", ErrNotFound)
	}
	return start, bc.index.HashRange(start, maxCount), uint64(len(bc.entries)), nil
}

// GetBlockIDsByTimestampRange returns main-chain block hashes whose
// timestamps fall within [begin, end], up to limit.
func (bc *Blockchain) GetBlockIDsByTimestampRange(begin, end uint64, limit int) []types.Hash {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	var out []types.Hash
	for _, e := range bc.entries {
		ts := e.Block.Timestamp
		if ts >= begin && ts <= end {
			out = append(out, e.Block.MustHash())
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// GetTransactionsByPaymentID returns main-chain transaction hashes
// carrying the payment id. Requires the indices to be enabled.
func (bc *Blockchain) GetTransactionsByPaymentID(paymentID types.Hash) ([]types.Hash, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if !bc.paymentIDs.Enabled() {
		return nil, fmt.Errorf("payment id index disabled")
	}
	return bc.paymentIDs.Get(paymentID), nil
}

// RandomOutputRequest asks for count mixin candidates of one amount.
type RandomOutputRequest struct {
	Amount uint64
	Count  int
}

// RandomOutputEntry is one mixin candidate.
type RandomOutputEntry struct {
	GlobalIndex uint32
	Key         types.PublicKey
}

// RandomOutputsForAmounts selects up to the requested number of spendable
// outputs per amount, uniformly from the prefix old enough to spend, and
// excluding outputs that are still time-locked.
func (bc *Blockchain) RandomOutputsForAmounts(requests []RandomOutputRequest) (map[uint64][]RandomOutputEntry, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	height := uint64(len(bc.entries)) - 1
	result := make(map[uint64][]RandomOutputEntry, len(requests))

	for _, req := range requests {
		total := bc.outputs.Count(req.Amount)

		// Only the prefix of sufficiently aged outputs is eligible.
		var eligible uint32
		for eligible = total; eligible > 0; eligible-- {
			ref, _ := bc.outputs.Get(req.Amount, eligible-1)
			if ref.TxIndex.Block+bc.currency.SpendableAge() <= height {
				break
			}
		}

		if eligible == 0 {
			result[req.Amount] = nil
			continue
		}

		picked := make([]RandomOutputEntry, 0, req.Count)
		gen := crypto.NewShuffleGenerator(uint64(eligible))
		for len(picked) < req.Count {
			idx, ok := gen.Next()
			if !ok {
				break
			}
			entry, err := bc.outputEntryLocked(req.Amount, uint32(idx))
			if err != nil {
				continue
			}
			// Skip outputs whose owning transaction is still locked.
			if !bc.isUnlockedLocked(entry.unlockTime, height) {
				continue
			}
			picked = append(picked, RandomOutputEntry{GlobalIndex: uint32(idx), Key: entry.key})
		}
		result[req.Amount] = picked
	}
	return result, nil
}

// outputEntryLocked resolves (amount, global index) to the one-time key and
// the unlock time of the owning transaction.
type resolvedOutput struct {
	key        types.PublicKey
	unlockTime uint64
	height     uint64
}

func (bc *Blockchain) outputEntryLocked(amount uint64, globalIndex uint32) (resolvedOutput, error) {
	ref, ok := bc.outputs.Get(amount, globalIndex)
	if !ok {
		return resolvedOutput{}, fmt.Errorf("output %d/%d: %w", amount, globalIndex, ErrNotFound)
	}
	entry := bc.entries[ref.TxIndex.Block]
	tx := &entry.Transactions[ref.TxIndex.Transaction].Tx
	out := tx.Outputs[ref.OutSlot]
	target, ok := out.Target.(*transaction.KeyOutputTarget)
	if !ok {
		return resolvedOutput{}, fmt.Errorf("output %d/%d is not a key output", amount, globalIndex)
	}
	return resolvedOutput{
		key:        target.Key,
		unlockTime: tx.UnlockTime,
		height:     ref.TxIndex.Block,
	}, nil
}

// isUnlockedLocked evaluates unlock_time at a height: small values are
// heights, large ones unix timestamps.
func (bc *Blockchain) isUnlockedLocked(unlockTime, height uint64) bool {
	if unlockTime < unlockTimeIsHeightThreshold {
		return height+lockedTxAllowedDeltaBlocks >= unlockTime
	}
	return bc.now()+lockedTxAllowedDeltaSeconds >= unlockTime
}

// DifficultyForNextBlock returns the difficulty required of the next block
// on the main chain.
func (bc *Blockchain) DifficultyForNextBlock() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.difficultyForNextBlockLocked()
}

func (bc *Blockchain) difficultyForNextBlockLocked() uint64 {
	nextHeight := uint64(len(bc.entries))
	version := bc.currency.BlockMajorVersionForHeight(nextHeight)
	timestamps, cumDiffs := bc.difficultyWindowLocked(uint64(len(bc.entries)))
	return bc.currency.NextDifficulty(nextHeight, version, timestamps, cumDiffs)
}

// difficultyWindowLocked returns the trailing timestamps and cumulative
// difficulties below chainSize, oldest first, sized for the widest
// retarget window.
func (bc *Blockchain) difficultyWindowLocked(chainSize uint64) ([]uint64, []uint64) {
	const maxWindow = difficultyWindowSlack
	start := uint64(0)
	if chainSize > maxWindow {
		start = chainSize - maxWindow
	}
	timestamps := make([]uint64, 0, chainSize-start)
	cumDiffs := make([]uint64, 0, chainSize-start)
	for h := start; h < chainSize; h++ {
		timestamps = append(timestamps, bc.entries[h].Block.Timestamp)
		cumDiffs = append(cumDiffs, bc.entries[h].CumulativeDifficulty)
	}
	return timestamps, cumDiffs
}

// medianTimestampLocked returns the median of the last window timestamps
// below chainSize.
func (bc *Blockchain) medianTimestampLocked(chainSize uint64, window int) uint64 {
	if chainSize == 0 {
		return 0
	}
	start := uint64(0)
	if chainSize > uint64(window) {
		start = chainSize - uint64(window)
	}
	ts := make([]uint64, 0, chainSize-start)
	for h := start; h < chainSize; h++ {
		ts = append(ts, bc.entries[h].Block.Timestamp)
	}
	return medianValue(ts)
}

// medianBlockSizeLocked returns the median cumulative size of the last
// window blocks below chainSize.
func (bc *Blockchain) medianBlockSizeLocked(chainSize uint64) uint64 {
	window := bc.currency.RewardBlocksWindow()
	start := uint64(0)
	if chainSize > window {
		start = chainSize - window
	}
	sizes := make([]uint64, 0, chainSize-start)
	for h := start; h < chainSize; h++ {
		sizes = append(sizes, bc.blockSizeLocked(h))
	}
	return medianValue(sizes)
}

// blockSizeLocked returns the cumulative byte size recorded for the block
// at height: its base transaction blob plus the blobs of its transactions.
func (bc *Blockchain) blockSizeLocked(height uint64) uint64 {
	return bc.entries[height].BlockCumulativeSize
}

// CumulativeSizeLimit returns the current block assembly size bound:
// twice the median of the reward window, floored at the full reward zone.
func (bc *Blockchain) CumulativeSizeLimit() uint64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	nextHeight := uint64(len(bc.entries))
	version := bc.currency.BlockMajorVersionForHeight(nextHeight)
	median := bc.medianBlockSizeLocked(uint64(len(bc.entries)))
	if zone := bc.currency.FullRewardZoneByVersion(version); median < zone {
		median = zone
	}
	return 2 * median
}

// hashingBlobLocked returns the cached or computed hashing blob.
func (bc *Blockchain) hashingBlobLocked(hash types.Hash, blk *block.Block) ([]byte, error) {
	if !bc.noBlobs {
		if blob, ok := bc.blobCache[hash]; ok {
			return blob, nil
		}
	}
	blob, err := blk.HashingBlob()
	if err != nil {
		return nil, err
	}
	if !bc.noBlobs {
		bc.blobCache[hash] = blob
	}
	return blob, nil
}

// medianValue returns the median of values; the mean of the middle pair
// for even counts.
func medianValue(values []uint64) uint64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]uint64, len(values))
	copy(sorted, values)
	sortUint64(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// event is one collected observer notification; dispatch delivers the
// collected events outside the lock.
type event struct {
	blockAdded        *types.Hash
	blockDisconnected *types.Hash
	height            uint64
	txAdded           *types.Hash
	txRemoved         *types.Hash
}

func (bc *Blockchain) snapshotObservers() []Observer {
	bc.obsMu.Lock()
	defer bc.obsMu.Unlock()
	out := make([]Observer, len(bc.observers))
	copy(out, bc.observers)
	return out
}

func dispatch(observers []Observer, events []event) {
	for _, ev := range events {
		for _, o := range observers {
			switch {
			case ev.blockAdded != nil && o.BlockAdded != nil:
				o.BlockAdded(*ev.blockAdded, ev.height)
			case ev.blockDisconnected != nil && o.BlockDisconnected != nil:
				o.BlockDisconnected(*ev.blockDisconnected, ev.height)
			case ev.txAdded != nil && o.TransactionAdded != nil:
				o.TransactionAdded(*ev.txAdded)
			case ev.txRemoved != nil && o.TransactionRemoved != nil:
				o.TransactionRemoved(*ev.txRemoved)
			}
		}
	}
}
