package chain_test

import (
	"testing"

	"github.com/mevanet/mevanet-chain/internal/chain"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// replayPrefix feeds src's main-chain blocks in [1, upTo] into dst.
func replayPrefix(t *testing.T, src, dst *harness, upTo uint64) {
	t.Helper()
	for h := uint64(1); h <= upTo; h++ {
		entries, err := src.bc.GetBlocks(h, 1)
		if err != nil {
			t.Fatalf("load source block %d: %v", h, err)
		}
		entry := entries[0]
		txs := make([]*transaction.Transaction, 0, len(entry.Transactions)-1)
		for i := 1; i < len(entry.Transactions); i++ {
			tx := entry.Transactions[i].Tx
			txs = append(txs, &tx)
		}
		blk := entry.Block
		if _, err := dst.bc.AddBlock(&blk, txs); err != nil {
			t.Fatalf("replay block %d: %v", h, err)
		}
	}
}

func TestReorg_HeavierAlternativeWins(t *testing.T) {
	a := newHarness(t)
	a.mineEmpty(15)

	// A includes a spend at height 16.
	spend := a.spendTx(2, []uint64{3, 4}, testFee)
	aBlk := a.mine(spend)

	image := spend.KeyImages()[0]
	if !a.bc.IsKeyImageSpent(image) {
		t.Fatal("spend not committed on main")
	}

	// B shares the chain only through height 15 and mines two empty
	// blocks of its own.
	b := newHarness(t)
	replayPrefix(t, a, b, 15)
	b.ts = a.ts + 31

	alt1 := b.mine()
	alt2 := b.mine()

	// Feed the fork into A: the first block ties on work and stays an
	// alternative; the second exceeds main and triggers the switch.
	result, err := a.bc.AddBlock(alt1, nil)
	if err != nil {
		t.Fatalf("alt1: %v", err)
	}
	if result != chain.AddedAsAlternative {
		t.Fatalf("alt1 result = %v, want AddedAsAlternative", result)
	}
	if a.bc.AlternativeBlockCount() == 0 {
		t.Fatal("alternative block not retained")
	}

	result, err = a.bc.AddBlock(alt2, nil)
	if err != nil {
		t.Fatalf("alt2: %v", err)
	}
	if result != chain.AddedToMain {
		t.Fatalf("alt2 result = %v, want AddedToMain (switch)", result)
	}

	// The tail is now B's tip.
	height, tip := a.bc.Tail()
	if height != 17 || tip != alt2.MustHash() {
		t.Errorf("tail = (%d, %s), want (17, %s)", height, tip, alt2.MustHash())
	}

	// Key images of the disconnected block are gone and the spend is
	// back in the pool, kept by block.
	if a.bc.IsKeyImageSpent(image) {
		t.Error("key image survived the disconnect")
	}
	if !a.pool.Have(spend.Hash()) {
		t.Error("reverted transaction not re-pooled")
	}

	// The disconnected block is still reachable as an alternative.
	if _, ok := a.bc.GetBlockByHash(aBlk.MustHash()); !ok {
		t.Error("old main block lost after switch")
	}
	if _, onMain := a.bc.GetBlockHeight(aBlk.MustHash()); onMain {
		t.Error("old main block still indexed as main")
	}
}

func TestReorg_EqualWorkKeepsMain(t *testing.T) {
	a := newHarness(t)
	a.mineEmpty(10)

	b := newHarness(t)
	replayPrefix(t, a, b, 9)
	b.ts = a.ts + 31
	alt := b.mine()

	_, tipBefore := a.bc.Tail()
	result, err := a.bc.AddBlock(alt, nil)
	if err != nil {
		t.Fatalf("alt: %v", err)
	}
	if result != chain.AddedAsAlternative {
		t.Errorf("equal-work fork result = %v, want AddedAsAlternative", result)
	}
	if _, tipAfter := a.bc.Tail(); tipAfter != tipBefore {
		t.Error("equal work moved the tip")
	}
}

func TestReorg_InvalidAlternativeRestoresMain(t *testing.T) {
	a := newHarness(t)
	a.mineEmpty(10)

	b := newHarness(t)
	replayPrefix(t, a, b, 9)
	b.ts = a.ts + 31

	// Two alternative blocks; corrupt the second one's coinbase so the
	// switch fails mid-replay.
	alt1 := b.mine()
	alt2 := b.buildBlock(1)

	heightBefore, tipBefore := a.bc.Tail()

	if _, err := a.bc.AddBlock(alt1, nil); err != nil {
		t.Fatalf("alt1: %v", err)
	}
	if _, err := a.bc.AddBlock(alt2, nil); err == nil {
		t.Fatal("corrupt alternative accepted")
	}

	heightAfter, tipAfter := a.bc.Tail()
	if heightAfter != heightBefore || tipAfter != tipBefore {
		t.Error("failed switch did not restore the original chain")
	}

	// The engine still works afterwards.
	a.mine()
	if height, _ := a.bc.Tail(); height != heightBefore+1 {
		t.Error("chain cannot extend after a failed switch")
	}
}

func TestReorg_ObserversSeeDisconnects(t *testing.T) {
	a := newHarness(t)
	a.mineEmpty(10)

	var added, disconnected int
	a.bc.AddObserver(chain.Observer{
		BlockAdded:        func(_ types.Hash, _ uint64) { added++ },
		BlockDisconnected: func(_ types.Hash, _ uint64) { disconnected++ },
	})

	b := newHarness(t)
	replayPrefix(t, a, b, 9)
	b.ts = a.ts + 31
	b.mine()
	b.mine()

	for _, blk := range altChainOf(t, b, 10, 11) {
		if _, err := a.bc.AddBlock(blk, nil); err != nil {
			t.Fatalf("feed alt: %v", err)
		}
	}

	if disconnected != 1 {
		t.Errorf("disconnect notifications = %d, want 1", disconnected)
	}
	if added != 2 {
		t.Errorf("add notifications = %d, want 2", added)
	}
}

// altChainOf returns the main-chain blocks of h in [from, to].
func altChainOf(t *testing.T, h *harness, from, to uint64) []*block.Block {
	t.Helper()
	var out []*block.Block
	for height := from; height <= to; height++ {
		entries, err := h.bc.GetBlocks(height, 1)
		if err != nil {
			t.Fatal(err)
		}
		blk := entries[0].Block
		out = append(out, &blk)
	}
	return out
}
