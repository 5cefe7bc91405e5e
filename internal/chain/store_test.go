package chain

import (
	"testing"

	"github.com/mevanet/mevanet-chain/internal/currency"
	"github.com/mevanet/mevanet-chain/internal/storage"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

func mustTestCurrency(t *testing.T) *currency.Currency {
	t.Helper()
	cur, err := currency.New(true)
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	return cur
}

func storeEntry(height uint64) *BlockEntry {
	var outKey types.PublicKey
	outKey[0] = byte(height)
	coinbase := transaction.Transaction{
		Prefix: transaction.Prefix{
			Version:    transaction.CurrentVersion,
			UnlockTime: height + 10,
			Inputs:     []transaction.Input{&transaction.CoinbaseInput{BlockHeight: height}},
			Outputs:    []transaction.Output{{Amount: 700, Target: &transaction.KeyOutputTarget{Key: outKey}}},
		},
		Signatures: [][]types.Signature{nil},
	}
	return &BlockEntry{
		Block: block.Block{
			MajorVersion:    block.MajorVersion1,
			Timestamp:       1000 + height,
			BaseTransaction: coinbase,
		},
		Height:                height,
		BlockCumulativeSize:   321,
		CumulativeDifficulty:  height + 1,
		AlreadyGeneratedCoins: 700 * (height + 1),
		Transactions: []TransactionEntry{
			{Tx: coinbase, GlobalOutputIndexes: []uint32{uint32(height)}},
		},
	}
}

func TestStore_CommitAndLoad(t *testing.T) {
	s := NewStore(storage.NewMemory())

	entry := storeEntry(0)
	tip := entry.Block.MustHash()
	if err := s.CommitEntry(entry, tip); err != nil {
		t.Fatalf("CommitEntry: %v", err)
	}

	height, ok, err := s.TipHeight()
	if err != nil || !ok || height != 0 {
		t.Fatalf("TipHeight = (%d, %v, %v)", height, ok, err)
	}
	gotTip, err := s.TipHash()
	if err != nil || gotTip != tip {
		t.Fatalf("TipHash = (%s, %v)", gotTip, err)
	}

	loaded, err := s.GetEntry(0)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if loaded.Height != 0 || loaded.CumulativeDifficulty != 1 || loaded.AlreadyGeneratedCoins != 700 {
		t.Errorf("loaded entry fields wrong: %+v", loaded)
	}
	if loaded.Block.MustHash() != tip {
		t.Error("loaded block hashes differently")
	}
	if len(loaded.Transactions) != 1 || loaded.Transactions[0].GlobalOutputIndexes[0] != 0 {
		t.Error("transaction entry not preserved")
	}
}

func TestStore_PopEntry(t *testing.T) {
	s := NewStore(storage.NewMemory())

	e0 := storeEntry(0)
	e1 := storeEntry(1)
	if err := s.CommitEntry(e0, e0.Block.MustHash()); err != nil {
		t.Fatal(err)
	}
	if err := s.CommitEntry(e1, e1.Block.MustHash()); err != nil {
		t.Fatal(err)
	}

	if err := s.PopEntry(1, e0.Block.MustHash(), 0); err != nil {
		t.Fatalf("PopEntry: %v", err)
	}
	if _, err := s.GetEntry(1); err == nil {
		t.Error("popped entry still loads")
	}
	height, ok, _ := s.TipHeight()
	if !ok || height != 0 {
		t.Errorf("tip after pop = %d", height)
	}
}

func TestStore_ChecksumDetectsCorruption(t *testing.T) {
	db := storage.NewMemory()
	s := NewStore(db)

	entry := storeEntry(0)
	if err := s.CommitEntry(entry, entry.Block.MustHash()); err != nil {
		t.Fatal(err)
	}

	// Flip one byte of the stored row.
	key := entryKey(0)
	row, err := db.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	row[len(row)/2] ^= 0x01
	if err := db.Put(key, row); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetEntry(0); err == nil {
		t.Error("corrupt row loaded without error")
	}
}

func TestEngine_ReloadsFromStore(t *testing.T) {
	// A chain built on a store must come back identically from a fresh
	// engine over the same store.
	db := storage.NewMemory()

	cur := mustTestCurrency(t)
	first, err := New(Options{Currency: cur, Store: NewStore(db), PowHasher: crypto.FastHasher{}})
	if err != nil {
		t.Fatalf("first engine: %v", err)
	}
	genHeight, genTip := first.Tail()
	if genHeight != 0 {
		t.Fatalf("fresh engine height = %d", genHeight)
	}

	second, err := New(Options{Currency: cur, Store: NewStore(db), PowHasher: crypto.FastHasher{}})
	if err != nil {
		t.Fatalf("second engine: %v", err)
	}
	height, tip := second.Tail()
	if height != 0 || tip != genTip {
		t.Errorf("reloaded tail = (%d, %s), want (0, %s)", height, tip, genTip)
	}
}
