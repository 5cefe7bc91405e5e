package chain_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mevanet/mevanet-chain/internal/chain"
	"github.com/mevanet/mevanet-chain/internal/mempool"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
)

const testFee = 100_000_000_000 // band-1 fee floor

func TestSpend_RingSignatureAccepted(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	tx := h.spendTx(2, []uint64{3, 4}, testFee)

	// The pool admits it against the tip.
	if err := h.bc.AddTransaction(tx); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if !h.pool.Have(tx.Hash()) {
		t.Fatal("admitted transaction missing from pool")
	}

	// Admitting again reports the duplicate.
	if err := h.bc.AddTransaction(tx); !errors.Is(err, mempool.ErrAlreadyInPool) {
		t.Errorf("second add = %v, want ErrAlreadyInPool", err)
	}

	// A block including it commits the spend.
	blk := h.mine(tx)
	if len(blk.TransactionHashes) != 1 {
		t.Fatal("block does not carry the spend")
	}

	images := tx.KeyImages()
	if len(images) != 1 || !h.bc.IsKeyImageSpent(images[0]) {
		t.Error("key image not recorded as spent")
	}
	if h.pool.Have(tx.Hash()) {
		t.Error("included transaction still pooled")
	}
	if _, _, ok := h.bc.GetTransaction(tx.Hash()); !ok {
		t.Error("included transaction not indexed on chain")
	}
}

func TestSpend_DoubleSpendInSameBlockRejected(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	tx1 := h.spendTx(2, []uint64{3, 4}, testFee)
	tx2 := h.spendTx(2, []uint64{3, 5}, testFee+1)

	if tx1.KeyImages()[0] != tx2.KeyImages()[0] {
		t.Fatal("competing spends have different key images")
	}
	if tx1.Hash() == tx2.Hash() {
		t.Fatal("competing spends hash identically")
	}

	blk := h.buildBlock(0, tx1, tx2)
	if _, err := h.bc.AddBlock(blk, []*transaction.Transaction{tx1, tx2}); !errors.Is(err, chain.ErrDoubleSpend) {
		t.Errorf("double spend block = %v, want ErrDoubleSpend", err)
	}
}

func TestSpend_DoubleSpendAcrossBlocksRejected(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	tx1 := h.spendTx(2, []uint64{3, 4}, testFee)
	h.mine(tx1)

	tx2 := h.spendTx(2, []uint64{3, 5}, testFee+1)
	blk := h.buildBlock(0, tx2)
	if _, err := h.bc.AddBlock(blk, []*transaction.Transaction{tx2}); !errors.Is(err, chain.ErrDoubleSpend) {
		t.Errorf("second spend = %v, want ErrDoubleSpend", err)
	}

	// The pool refuses it as well.
	if err := h.bc.AddTransaction(tx2); err == nil {
		t.Error("pool admitted a spent key image")
	}
}

func TestSpend_PoolConflictRejected(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	tx1 := h.spendTx(2, []uint64{3, 4}, testFee)
	tx2 := h.spendTx(2, []uint64{3, 5}, testFee+1)

	if err := h.bc.AddTransaction(tx1); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := h.bc.AddTransaction(tx2); err == nil {
		t.Error("pool admitted a conflicting spend")
	}
}

func TestSpend_ImmatureCoinbaseRejected(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(12)

	// Block 11's coinbase is not yet old enough for the spendable age.
	tx := h.spendTx(11, []uint64{2, 3}, testFee)
	if err := h.bc.AddTransaction(tx); err == nil {
		t.Error("pool admitted a spend of an immature output")
	}
}

func TestSpend_AmountConservationEnforced(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	// Outputs above inputs cannot pass validation anywhere.
	tx := h.spendTx(2, []uint64{3, 4}, testFee)
	tx.Outputs[0].Amount += 2 * testFee

	if err := h.bc.AddTransaction(tx); err == nil {
		t.Error("pool admitted a coin-creating transaction")
	}
	blk := h.buildBlock(0, tx)
	if _, err := h.bc.AddBlock(blk, []*transaction.Transaction{tx}); err == nil {
		t.Error("block with a coin-creating transaction accepted")
	}
}

func TestSpend_TamperedSignatureRejected(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	tx := h.spendTx(2, []uint64{3, 4}, testFee)
	tx.Signatures[0][1][7] ^= 0x01

	if err := h.bc.AddTransaction(tx); err == nil {
		t.Error("pool admitted a tampered ring signature")
	}
	blk := h.buildBlock(0, tx)
	if _, err := h.bc.AddBlock(blk, []*transaction.Transaction{tx}); !errors.Is(err, chain.ErrBadInput) {
		t.Errorf("tampered block = %v, want ErrBadInput", err)
	}
}

func TestSizePenalty_RewardShrinksQuadratically(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	// A spend padded to roughly one and a half reward zones forces the
	// penalty path; the harness builds the exact penalized coinbase, so
	// the block must be accepted.
	amount := h.topDenomination(2)
	source := h.ownedOutput(2, amount, []uint64{3, 4})
	padded, err := transaction.Construct(h.keys, []transaction.Source{source},
		[]transaction.Destination{{Amount: amount - testFee, Address: h.keys.Address}},
		bytes.Repeat([]byte{0x04}, 14_500), 0)
	if err != nil {
		t.Fatalf("construct padded spend: %v", err)
	}

	generatedBefore := h.bc.CoinsInCirculation()
	baseReward := h.cur.CalculateReward(generatedBefore)

	blk := h.mine(padded)

	coinbaseTotal, err := blk.BaseTransaction.OutputsAmount()
	if err != nil {
		t.Fatal(err)
	}
	// Penalized: strictly below base reward plus the (penalized) fee.
	if coinbaseTotal >= baseReward+testFee {
		t.Errorf("coinbase %d not penalized (base %d, fee %d)", coinbaseTotal, baseReward, uint64(testFee))
	}

	// The same block with one extra unit in the coinbase must reject.
	h2 := newHarness(t)
	h2.mineEmpty(15)
	source2 := h2.ownedOutput(2, h2.topDenomination(2), []uint64{3, 4})
	padded2, err := transaction.Construct(h2.keys, []transaction.Source{source2},
		[]transaction.Destination{{Amount: h2.topDenomination(2) - testFee, Address: h2.keys.Address}},
		bytes.Repeat([]byte{0x04}, 14_500), 0)
	if err != nil {
		t.Fatal(err)
	}
	bad := h2.buildBlock(1, padded2)
	if _, err := h2.bc.AddBlock(bad, []*transaction.Transaction{padded2}); !errors.Is(err, chain.ErrBadCoinbase) {
		t.Errorf("over-paying penalized block = %v, want ErrBadCoinbase", err)
	}
}

func TestRandomOutputs_SpendablePrefixOnly(t *testing.T) {
	h := newHarness(t)
	h.mineEmpty(15)

	amount := h.topDenomination(2)
	result, err := h.bc.RandomOutputsForAmounts([]chain.RandomOutputRequest{{Amount: amount, Count: 3}})
	if err != nil {
		t.Fatalf("RandomOutputsForAmounts: %v", err)
	}

	picked := result[amount]
	if len(picked) == 0 {
		t.Fatal("no mixin candidates returned")
	}
	seen := make(map[uint32]bool)
	for _, entry := range picked {
		if seen[entry.GlobalIndex] {
			t.Errorf("global index %d returned twice", entry.GlobalIndex)
		}
		seen[entry.GlobalIndex] = true

		// Only aged outputs qualify, so the picked indices stay within
		// the spendable prefix of the amount's list.
		height, _ := h.bc.Tail()
		if entry.GlobalIndex > uint32(height) {
			t.Errorf("global index %d beyond the spendable prefix", entry.GlobalIndex)
		}
	}
}
