package chain_test

import (
	"errors"
	"testing"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/internal/chain"
	"github.com/mevanet/mevanet-chain/internal/currency"
	"github.com/mevanet/mevanet-chain/internal/mempool"
	"github.com/mevanet/mevanet-chain/internal/storage"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// harness wires a mainnet engine over an in-memory store with the fast
// hasher and deterministic timestamps. Mainnet keeps the tested heights in
// the v1 era, where the retarget has no difficulty floor.
type harness struct {
	t    *testing.T
	cur  *currency.Currency
	bc   *chain.Blockchain
	pool *mempool.Pool

	keys types.AccountKeys
	ts   uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cur, err := currency.New(false)
	if err != nil {
		t.Fatalf("currency: %v", err)
	}

	bc, err := chain.New(chain.Options{
		Currency:  cur,
		Store:     chain.NewStore(storage.NewMemory()),
		PowHasher: crypto.FastHasher{},
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	pool := mempool.New(cur, bc, true)
	bc.SetPool(pool)

	spend := crypto.GenerateDeterministicKeys([]byte("harness-spend"))
	view := crypto.GenerateDeterministicKeys([]byte("harness-view"))

	return &harness{
		t:    t,
		cur:  cur,
		bc:   bc,
		pool: pool,
		keys: types.AccountKeys{
			Address: types.AccountAddress{
				SpendPublicKey: spend.Public,
				ViewPublicKey:  view.Public,
			},
			SpendSecretKey: spend.Secret,
			ViewSecretKey:  view.Secret,
		},
		ts: 1_000_000,
	}
}

// buildBlock assembles a valid block on the current tip carrying the given
// transactions and the exact penalized reward. rewardDelta shifts the
// coinbase total to construct deliberately invalid blocks.
func (h *harness) buildBlock(rewardDelta int64, txs ...*transaction.Transaction) *block.Block {
	h.t.Helper()

	tipHeight, tipHash := h.bc.Tail()
	height := tipHeight + 1
	version := h.bc.NextBlockVersion()
	median := h.bc.MedianBlockSize()
	generated := h.bc.CoinsInCirculation()

	var totalFee, txsSize uint64
	hashes := make([]types.Hash, 0, len(txs))
	for _, tx := range txs {
		fee, err := tx.Fee()
		if err != nil {
			h.t.Fatalf("tx fee: %v", err)
		}
		totalFee += fee
		txsSize += uint64(tx.BlobSize())
		hashes = append(hashes, tx.Hash())
	}

	// Converge the coinbase size.
	var coinbase *transaction.Transaction
	cumSize := txsSize
	for i := 0; i < 12; i++ {
		cb, _, err := h.cur.ConstructMinerTx(version, height, median, cumSize,
			generated, totalFee, h.keys.Address, nil, 10, tipHash)
		if err != nil {
			h.t.Fatalf("construct coinbase: %v", err)
		}
		next := txsSize + uint64(cb.BlobSize())
		coinbase = cb
		if next == cumSize {
			break
		}
		cumSize = next
	}

	if rewardDelta != 0 {
		// Bend the first coinbase output to break the reward equation.
		out := &coinbase.Outputs[0]
		if rewardDelta > 0 {
			out.Amount += uint64(rewardDelta)
		} else {
			out.Amount -= uint64(-rewardDelta)
		}
	}

	h.ts += config.DifficultyTarget
	blk := &block.Block{
		MajorVersion:      version,
		MinorVersion:      block.MinorVersion0,
		Timestamp:         h.ts,
		PreviousBlockHash: tipHash,
		BaseTransaction:   *coinbase,
		TransactionHashes: hashes,
	}
	if version >= block.MajorVersion5 {
		blk.Signature = &types.Signature{}
	}

	h.seal(blk)
	return blk
}

// seal iterates the nonce until the fast hash satisfies the next
// difficulty.
func (h *harness) seal(blk *block.Block) {
	h.t.Helper()
	difficulty := h.bc.DifficultyForNextBlock()
	hasher := crypto.FastHasher{}
	for nonce := uint32(0); ; nonce++ {
		blk.Nonce = nonce
		blob, err := blk.HashingBlob()
		if err != nil {
			h.t.Fatalf("hashing blob: %v", err)
		}
		if crypto.CheckHash(hasher.PowHash(blob), difficulty) {
			return
		}
		if nonce > 1<<22 {
			h.t.Fatal("seal: nonce space exhausted")
		}
	}
}

// mine appends one valid block carrying txs and returns it.
func (h *harness) mine(txs ...*transaction.Transaction) *block.Block {
	h.t.Helper()
	blk := h.buildBlock(0, txs...)
	result, err := h.bc.AddBlock(blk, txs)
	if err != nil {
		h.t.Fatalf("mine at height %d: %v", blk.Height(), err)
	}
	if result != chain.AddedToMain {
		h.t.Fatalf("mine: result %v, want AddedToMain", result)
	}
	return blk
}

// mineEmpty appends n empty blocks.
func (h *harness) mineEmpty(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.mine()
	}
}

// ownedOutput locates an output of the given amount inside the coinbase
// at blockHeight and returns a ready transaction source with the real
// member plus decoys of the same amount from other blocks.
func (h *harness) ownedOutput(blockHeight uint64, amount uint64, decoyHeights []uint64) transaction.Source {
	h.t.Helper()

	find := func(height uint64) (uint32, types.PublicKey, uint64) {
		entries, err := h.bc.GetBlocks(height, 1)
		if err != nil {
			h.t.Fatalf("load block %d: %v", height, err)
		}
		coinbase := &entries[0].Transactions[0]
		for slot, out := range coinbase.Tx.Outputs {
			if out.Amount != amount {
				continue
			}
			target, ok := out.Target.(*transaction.KeyOutputTarget)
			if !ok {
				continue
			}
			return coinbase.GlobalOutputIndexes[slot], target.Key, uint64(slot)
		}
		h.t.Fatalf("no output of amount %d in block %d", amount, height)
		return 0, types.PublicKey{}, 0
	}

	realIdx, realKey, realSlot := find(blockHeight)

	entries, err := h.bc.GetBlocks(blockHeight, 1)
	if err != nil {
		h.t.Fatal(err)
	}
	txPub, err := transaction.TxPublicKeyFromExtra(entries[0].Transactions[0].Tx.Extra)
	if err != nil {
		h.t.Fatalf("coinbase tx public key: %v", err)
	}

	outputs := []transaction.SourceOutput{{GlobalIndex: realIdx, Key: realKey}}
	for _, dh := range decoyHeights {
		idx, key, _ := find(dh)
		outputs = append(outputs, transaction.SourceOutput{GlobalIndex: idx, Key: key})
	}

	return transaction.Source{
		Outputs:         outputs,
		RealOutput:      0,
		RealTxPublicKey: txPub,
		RealOutputIndex: realSlot,
		Amount:          amount,
	}
}

// topDenomination returns the largest coinbase output amount of the block
// at the given height.
func (h *harness) topDenomination(height uint64) uint64 {
	h.t.Helper()
	entries, err := h.bc.GetBlocks(height, 1)
	if err != nil {
		h.t.Fatal(err)
	}
	var top uint64
	for _, out := range entries[0].Transactions[0].Tx.Outputs {
		if out.Amount > top {
			top = out.Amount
		}
	}
	return top
}

// spendTx builds a ring-signed transaction spending the top denomination
// of srcHeight with decoys from decoyHeights, paying fee back to the
// harness account.
func (h *harness) spendTx(srcHeight uint64, decoyHeights []uint64, fee uint64) *transaction.Transaction {
	h.t.Helper()

	amount := h.topDenomination(srcHeight)
	source := h.ownedOutput(srcHeight, amount, decoyHeights)

	tx, err := transaction.Construct(h.keys, []transaction.Source{source},
		[]transaction.Destination{{Amount: amount - fee, Address: h.keys.Address}}, nil, 0)
	if err != nil {
		h.t.Fatalf("construct spend: %v", err)
	}
	return tx
}

func TestFreshChain_OneEmptyBlock(t *testing.T) {
	h := newHarness(t)

	if height, _ := h.bc.Tail(); height != 0 {
		t.Fatalf("fresh chain height = %d", height)
	}

	blk := h.mine()

	height, tip := h.bc.Tail()
	if height != 1 {
		t.Errorf("height after one block = %d", height)
	}
	if tip != blk.MustHash() {
		t.Error("tail hash is not the mined block")
	}

	// The block at height 1 pays the hard-coded grant.
	total, err := blk.BaseTransaction.OutputsAmount()
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(1_000_000) * config.Coin; total != want {
		t.Errorf("height-1 coinbase pays %d, want the %d grant", total, want)
	}
	if got := h.bc.CoinsInCirculation(); got < total {
		t.Errorf("generated coins %d below coinbase %d", got, total)
	}
}

func TestAddBlock_Idempotent(t *testing.T) {
	h := newHarness(t)
	blk := h.mine()

	heightBefore, tipBefore := h.bc.Tail()
	result, err := h.bc.AddBlock(blk, nil)
	if !errors.Is(err, chain.ErrAlreadyKnown) || result != chain.Rejected {
		t.Errorf("second add = (%v, %v), want ErrAlreadyKnown", result, err)
	}
	heightAfter, tipAfter := h.bc.Tail()
	if heightBefore != heightAfter || tipBefore != tipAfter {
		t.Error("duplicate add changed the chain state")
	}
}

func TestAddBlock_Orphan(t *testing.T) {
	h := newHarness(t)
	h.mine()

	blk := h.buildBlock(0)
	blk.PreviousBlockHash[0] ^= 0xff
	h.seal(blk)

	if _, err := h.bc.AddBlock(blk, nil); !errors.Is(err, chain.ErrOrphan) {
		t.Errorf("orphan add = %v, want ErrOrphan", err)
	}
}

func TestAddBlock_BadTimestamp(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(3)

	// Below the median of the trailing window.
	blk := h.buildBlock(0)
	blk.Timestamp = 1
	h.seal(blk)
	if _, err := h.bc.AddBlock(blk, nil); !errors.Is(err, chain.ErrBadTimestamp) {
		t.Errorf("past timestamp = %v, want ErrBadTimestamp", err)
	}

	// Beyond now plus the future time limit.
	blk2 := h.buildBlock(0)
	blk2.Timestamp = uint64(1) << 62
	h.seal(blk2)
	if _, err := h.bc.AddBlock(blk2, nil); !errors.Is(err, chain.ErrBadTimestamp) {
		t.Errorf("future timestamp = %v, want ErrBadTimestamp", err)
	}
}

func TestAddBlock_BadRewardRejected(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(2)

	blk := h.buildBlock(1) // one atomic unit too generous
	if _, err := h.bc.AddBlock(blk, nil); !errors.Is(err, chain.ErrBadCoinbase) {
		t.Errorf("inflated coinbase = %v, want ErrBadCoinbase", err)
	}

	blk = h.buildBlock(-1)
	if _, err := h.bc.AddBlock(blk, nil); !errors.Is(err, chain.ErrBadCoinbase) {
		t.Errorf("deflated coinbase = %v, want ErrBadCoinbase", err)
	}
}

func TestAddBlock_WrongVersionRejected(t *testing.T) {
	h := newHarness(t)

	blk := h.buildBlock(0)
	blk.MajorVersion = block.MajorVersion4 // the schedule expects v1 at height 1
	h.seal(blk)
	if _, err := h.bc.AddBlock(blk, nil); !errors.Is(err, chain.ErrBadVersion) {
		t.Errorf("wrong version = %v, want ErrBadVersion", err)
	}
}

func TestGlobalIndices_AssignedInOrder(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(5)

	// Every coinbase output must carry a global index equal to its
	// insertion position within its amount bucket.
	counts := make(map[uint64]uint32)
	for height := uint64(0); height <= 5; height++ {
		entries, err := h.bc.GetBlocks(height, 1)
		if err != nil {
			t.Fatal(err)
		}
		coinbase := &entries[0].Transactions[0]
		for slot, out := range coinbase.Tx.Outputs {
			if got := coinbase.GlobalOutputIndexes[slot]; got != counts[out.Amount] {
				t.Errorf("height %d slot %d: global index %d, want %d", height, slot, got, counts[out.Amount])
			}
			counts[out.Amount]++
		}

		hash := entries[0].Block.MustHash()
		if _, ok := h.bc.GetBlockHeight(hash); !ok {
			t.Errorf("height %d block missing from index", height)
		}
		indices, ok := h.bc.GetOutputsGlobalIndices(coinbase.Tx.Hash())
		if !ok || len(indices) != len(coinbase.Tx.Outputs) {
			t.Errorf("height %d: global indices lookup failed", height)
		}
	}
}

func TestSparseChainAndSupplement(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(20)

	sparse := h.bc.BuildSparseChain()
	if len(sparse) == 0 {
		t.Fatal("empty sparse chain")
	}

	start, hashes, total, err := h.bc.FindBlockchainSupplement(sparse, 100)
	if err != nil {
		t.Fatalf("supplement: %v", err)
	}
	if start != 20 || total != 21 {
		t.Errorf("supplement start/total = %d/%d, want 20/21", start, total)
	}
	if len(hashes) != 1 {
		t.Errorf("supplement returned %d hashes, want 1", len(hashes))
	}
}
