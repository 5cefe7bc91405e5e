// Package mempool stages unconfirmed transactions: priority ordering for
// block assembly, double-spend exclusion against the pool and the chain,
// TTL eviction and the kept-by-block reorg path.
package mempool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mevanet/mevanet-chain/internal/currency"
	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Pool errors.
var (
	ErrAlreadyInPool   = errors.New("transaction already in pool")
	ErrRecentlyDeleted = errors.New("transaction was recently deleted from pool")
	ErrConflict        = errors.New("transaction conflicts with a pool entry")
	ErrFeeTooLow       = errors.New("transaction fee below minimum")
	ErrTooBig          = errors.New("transaction too large")
	ErrValidation      = errors.New("transaction failed validation")
)

// BlockInfo is a (height, hash) watermark used to cache validation results
// across tip changes.
type BlockInfo struct {
	Height uint64
	Hash   types.Hash
}

// Empty reports whether the watermark is unset.
func (b BlockInfo) Empty() bool {
	return b.Hash.IsZero()
}

// Validator is the chain surface the pool validates against. Implemented
// by the blockchain engine; every method takes the engine lock internally,
// so the pool must never call these while holding its own mutex.
type Validator interface {
	// CheckTransactionInputs validates tx against the tip and returns
	// the height the check was performed at (the next block's height).
	CheckTransactionInputs(tx *transaction.Transaction) (uint64, error)
	// HaveSpentKeyImages reports whether any key image of tx is spent
	// on the main chain.
	HaveSpentKeyImages(tx *transaction.Transaction) bool
	// CheckTransactionSize reports whether the blob size is admissible.
	CheckTransactionSize(blobSize int) bool
	// Tail returns the current tip.
	Tail() (uint64, types.Hash)
	// GetBlockHashByHeight resolves a main-chain height, used to test
	// whether a cached watermark is still on main.
	GetBlockHashByHeight(height uint64) (types.Hash, bool)
}

// Entry is one pooled transaction with its cached metadata.
type Entry struct {
	Tx          *transaction.Transaction
	Hash        types.Hash
	BlobSize    uint64
	Fee         uint64
	KeptByBlock bool
	ReceiveTime uint64

	// MaxUsedBlock is the newest tip the entry validated against;
	// LastFailedBlock the newest tip it failed against.
	MaxUsedBlock    BlockInfo
	LastFailedBlock BlockInfo
}

type globalOutput struct {
	amount uint64
	index  uint32
}

// Pool holds unconfirmed transactions.
type Pool struct {
	mu        sync.Mutex
	currency  *currency.Currency
	validator Validator

	txs          map[types.Hash]*Entry
	spentImages  map[types.KeyImage]map[types.Hash]struct{}
	spentOutputs map[globalOutput]types.Hash

	recentlyDeleted map[types.Hash]uint64

	paymentIDs map[types.Hash][]types.Hash
	indicesOn  bool

	// TransactionAdded and TransactionRemoved fire outside the pool
	// mutex when set.
	TransactionAdded   func(hash types.Hash)
	TransactionRemoved func(hash types.Hash)

	now func() uint64
}

// New creates a pool bound to a currency and a chain validator.
func New(c *currency.Currency, v Validator, indicesEnabled bool) *Pool {
	return &Pool{
		currency:        c,
		validator:       v,
		txs:             make(map[types.Hash]*Entry),
		spentImages:     make(map[types.KeyImage]map[types.Hash]struct{}),
		spentOutputs:    make(map[globalOutput]types.Hash),
		recentlyDeleted: make(map[types.Hash]uint64),
		paymentIDs:      make(map[types.Hash][]types.Hash),
		indicesOn:       indicesEnabled,
		now:             func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Add admits a transaction. keptByBlock marks transactions re-injected by
// a chain disconnect: their TTL is extended and tip validation plus the
// fee floor are bypassed so the network can reorganize them back in.
func (p *Pool) Add(tx *transaction.Transaction, keptByBlock bool) error {
	hash := tx.Hash()
	blobSize := uint64(tx.BlobSize())

	if err := tx.CheckSemantics(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if tx.IsCoinbase() {
		return fmt.Errorf("%w: coinbase transactions are not relayed", ErrValidation)
	}
	if !p.validator.CheckTransactionSize(int(blobSize)) {
		return fmt.Errorf("%w: %d bytes", ErrTooBig, blobSize)
	}

	fee, err := tx.Fee()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Tip validation happens before the pool mutex: the validator takes
	// the engine lock.
	var usedBlock BlockInfo
	if !keptByBlock {
		if p.validator.HaveSpentKeyImages(tx) {
			return fmt.Errorf("%w: key image already spent on chain", ErrValidation)
		}
		height, err := p.validator.CheckTransactionInputs(tx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if err := p.checkFee(tx, fee, blobSize, height); err != nil {
			return err
		}
		tipHeight, tipHash := p.validator.Tail()
		usedBlock = BlockInfo{Height: tipHeight, Hash: tipHash}
	}

	p.mu.Lock()

	if _, exists := p.txs[hash]; exists {
		p.mu.Unlock()
		return ErrAlreadyInPool
	}
	if _, deleted := p.recentlyDeleted[hash]; deleted && !keptByBlock {
		p.mu.Unlock()
		return ErrRecentlyDeleted
	}

	// Double-spend exclusion within the pool. Kept-by-block entries may
	// conflict: the chain decides which side wins.
	if !keptByBlock {
		for _, image := range tx.KeyImages() {
			if owners := p.spentImages[image]; len(owners) > 0 {
				p.mu.Unlock()
				return fmt.Errorf("%w: image %s", ErrConflict, image)
			}
		}
		for _, in := range tx.Inputs {
			if ms, ok := in.(*transaction.MultisigInput); ok {
				ref := globalOutput{amount: ms.Amount, index: ms.OutputIndex}
				if owner, used := p.spentOutputs[ref]; used {
					p.mu.Unlock()
					return fmt.Errorf("%w: multisig output %d/%d spent by %s", ErrConflict, ms.Amount, ms.OutputIndex, owner)
				}
			}
		}
	}

	entry := &Entry{
		Tx:           tx,
		Hash:         hash,
		BlobSize:     blobSize,
		Fee:          fee,
		KeptByBlock:  keptByBlock,
		ReceiveTime:  p.now(),
		MaxUsedBlock: usedBlock,
	}
	p.txs[hash] = entry
	p.indexInputsLocked(entry)

	if p.indicesOn {
		if pid, err := transaction.PaymentIDFromExtra(tx.Extra); err == nil {
			p.paymentIDs[pid] = append(p.paymentIDs[pid], hash)
		}
	}

	added := p.TransactionAdded
	p.mu.Unlock()

	log.Mempool.Debug().
		Str("tx", hash.String()).
		Uint64("fee", fee).
		Uint64("size", blobSize).
		Bool("kept_by_block", keptByBlock).
		Msg("transaction admitted")

	if added != nil {
		added(hash)
	}
	return nil
}

// checkFee enforces the height-banded fee floor with the per-byte extra
// surcharge. Fusion transactions pass with zero fee.
func (p *Pool) checkFee(tx *transaction.Transaction, fee, blobSize uint64, height uint64) error {
	inputAmounts := make([]uint64, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if ki, ok := in.(*transaction.KeyInput); ok {
			inputAmounts = append(inputAmounts, ki.Amount)
		}
	}
	outputAmounts := make([]uint64, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		outputAmounts = append(outputAmounts, out.Amount)
	}
	if p.currency.IsFusionTransaction(inputAmounts, outputAmounts, blobSize, height) {
		return nil
	}

	minFee := p.currency.MinimalFee(height)
	required := minFee + p.currency.FeePerByte(uint64(len(tx.Extra)), minFee)
	if fee < required {
		return fmt.Errorf("%w: got %d, need %d", ErrFeeTooLow, fee, required)
	}
	return nil
}

// indexInputsLocked records the entry's key images and multisig
// references in the conflict sets.
func (p *Pool) indexInputsLocked(entry *Entry) {
	for _, image := range entry.Tx.KeyImages() {
		owners := p.spentImages[image]
		if owners == nil {
			owners = make(map[types.Hash]struct{})
			p.spentImages[image] = owners
		}
		owners[entry.Hash] = struct{}{}
	}
	for _, in := range entry.Tx.Inputs {
		if ms, ok := in.(*transaction.MultisigInput); ok {
			p.spentOutputs[globalOutput{amount: ms.Amount, index: ms.OutputIndex}] = entry.Hash
		}
	}
}

// unindexInputsLocked removes the entry from the conflict sets.
func (p *Pool) unindexInputsLocked(entry *Entry) {
	for _, image := range entry.Tx.KeyImages() {
		if owners := p.spentImages[image]; owners != nil {
			delete(owners, entry.Hash)
			if len(owners) == 0 {
				delete(p.spentImages, image)
			}
		}
	}
	for _, in := range entry.Tx.Inputs {
		if ms, ok := in.(*transaction.MultisigInput); ok {
			ref := globalOutput{amount: ms.Amount, index: ms.OutputIndex}
			if p.spentOutputs[ref] == entry.Hash {
				delete(p.spentOutputs, ref)
			}
		}
	}
}

// removeLocked deletes an entry, optionally remembering it so late gossip
// does not re-admit it. Returns the removal callback to fire.
func (p *Pool) removeLocked(hash types.Hash, remember bool) func(types.Hash) {
	entry, ok := p.txs[hash]
	if !ok {
		return nil
	}
	p.unindexInputsLocked(entry)
	delete(p.txs, hash)

	if p.indicesOn {
		if pid, err := transaction.PaymentIDFromExtra(entry.Tx.Extra); err == nil {
			list := p.paymentIDs[pid]
			for i, h := range list {
				if h == hash {
					list = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(list) == 0 {
				delete(p.paymentIDs, pid)
			} else {
				p.paymentIDs[pid] = list
			}
		}
	}

	if remember {
		p.recentlyDeleted[hash] = p.now()
	}
	return p.TransactionRemoved
}

// Take removes and returns a pooled transaction with its fee.
func (p *Pool) Take(hash types.Hash) (*transaction.Transaction, uint64, bool) {
	p.mu.Lock()
	entry, ok := p.txs[hash]
	if !ok {
		p.mu.Unlock()
		return nil, 0, false
	}
	removed := p.removeLocked(hash, false)
	p.mu.Unlock()

	if removed != nil {
		removed(hash)
	}
	return entry.Tx, entry.Fee, true
}

// Have reports whether the pool holds the transaction.
func (p *Pool) Have(hash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.txs[hash]
	return ok
}

// Get returns a pooled transaction without removing it.
func (p *Pool) Get(hash types.Hash) (*transaction.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.txs[hash]
	if !ok {
		return nil, false
	}
	return entry.Tx, true
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.txs)
}

// Hashes returns every pooled transaction hash.
func (p *Pool) Hashes() []types.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Hash, 0, len(p.txs))
	for h := range p.txs {
		out = append(out, h)
	}
	return out
}

// GetDifference returns the pooled transactions missing from known (added)
// and the hashes in known the pool no longer holds (deleted), for pool-sync
// gossip.
func (p *Pool) GetDifference(known []types.Hash) (added, deleted []types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	knownSet := make(map[types.Hash]struct{}, len(known))
	for _, h := range known {
		knownSet[h] = struct{}{}
		if _, ok := p.txs[h]; !ok {
			deleted = append(deleted, h)
		}
	}
	for h := range p.txs {
		if _, ok := knownSet[h]; !ok {
			added = append(added, h)
		}
	}
	return added, deleted
}

// TransactionsByPaymentID returns pooled transaction hashes carrying the
// payment id.
func (p *Pool) TransactionsByPaymentID(paymentID types.Hash) []types.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.paymentIDs[paymentID]
	out := make([]types.Hash, len(list))
	copy(out, list)
	return out
}

// TransactionsByTimestampRange returns pooled transaction hashes received
// within [begin, end], up to limit.
func (p *Pool) TransactionsByTimestampRange(begin, end uint64, limit int) []types.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []types.Hash
	for h, e := range p.txs {
		if e.ReceiveTime >= begin && e.ReceiveTime <= end {
			out = append(out, h)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}
