package mempool

import (
	"errors"
	"testing"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

func entryWith(seed byte, fee, blobSize, receiveTime uint64) *Entry {
	var hash types.Hash
	hash[0] = seed
	return &Entry{Hash: hash, Fee: fee, BlobSize: blobSize, ReceiveTime: receiveTime}
}

func TestPriorityLess_FeeRateWins(t *testing.T) {
	rich := entryWith(1, 2_000, 100, 50)
	poor := entryWith(2, 1_000, 100, 10)

	if !priorityLess(rich, poor) {
		t.Error("higher fee rate must sort first")
	}
	if priorityLess(poor, rich) {
		t.Error("ordering is not antisymmetric")
	}
}

func TestPriorityLess_TieBreaks(t *testing.T) {
	// Equal fee rate: smaller blob first.
	small := entryWith(1, 1_000, 100, 50)
	large := entryWith(2, 10_000, 1000, 10)
	if !priorityLess(small, large) {
		t.Error("equal rate: smaller blob must sort first")
	}

	// Equal rate and size: older first.
	old := entryWith(3, 1_000, 100, 10)
	young := entryWith(4, 1_000, 100, 20)
	if !priorityLess(old, young) {
		t.Error("equal rate and size: older must sort first")
	}

	// Full tie: the hash decides, deterministically.
	a := entryWith(5, 1_000, 100, 10)
	b := entryWith(6, 1_000, 100, 10)
	if priorityLess(a, b) == priorityLess(b, a) {
		t.Error("full tie is not broken deterministically")
	}
}

func TestPriorityLess_LargeValuesNoOverflow(t *testing.T) {
	// Cross multiplication of 64-bit fee and size exceeds 64 bits; the
	// comparison must still order by true rate.
	big := entryWith(1, ^uint64(0)/2, 3, 0)
	bigger := entryWith(2, ^uint64(0)/2, 2, 0)
	if !priorityLess(bigger, big) {
		t.Error("128-bit comparison ordered large rates wrongly")
	}
}

func TestFillBlockTemplate_PriorityAndCaps(t *testing.T) {
	p, _ := newTestPool(t)

	cheap := poolTx(t, 1, config.MinimumFeeV1, 3)
	rich := poolTx(t, 2, 4*config.MinimumFeeV1, 3)

	if err := p.Add(cheap, false); err != nil {
		t.Fatal(err)
	}
	if err := p.Add(rich, false); err != nil {
		t.Fatal(err)
	}

	txs, totalSize, totalFee := p.FillBlockTemplate(100_000, 200_000, config.CoinbaseBlobReservedSize)
	if len(txs) != 2 {
		t.Fatalf("template carries %d txs, want 2", len(txs))
	}
	if txs[0].Hash() != rich.Hash() {
		t.Error("higher fee-rate transaction not first")
	}
	if totalSize == 0 || totalFee != 5*config.MinimumFeeV1 {
		t.Errorf("size/fee = %d/%d", totalSize, totalFee)
	}

	// A tiny size budget keeps the template empty.
	txs, _, _ = p.FillBlockTemplate(100, 100, config.CoinbaseBlobReservedSize)
	if len(txs) != 0 {
		t.Errorf("tiny budget still selected %d txs", len(txs))
	}
}

func TestFillBlockTemplate_SkipsConflictingKeptEntries(t *testing.T) {
	p, _ := newTestPool(t)

	// Two kept-by-block entries spending the same key image: only one
	// fits a single block.
	tx1 := poolTx(t, 7, config.MinimumFeeV1, 3)
	tx2 := poolTx(t, 7, config.MinimumFeeV1+5, 3)

	if err := p.Add(tx1, true); err != nil {
		t.Fatal(err)
	}
	if err := p.Add(tx2, true); err != nil {
		t.Fatal(err)
	}

	txs, _, _ := p.FillBlockTemplate(100_000, 200_000, config.CoinbaseBlobReservedSize)
	if len(txs) != 1 {
		t.Fatalf("template carries %d conflicting txs, want 1", len(txs))
	}
}

func TestFillBlockTemplate_WatermarkCaching(t *testing.T) {
	p, v := newTestPool(t)

	tx := poolTx(t, 8, config.MinimumFeeV1, 3)
	if err := p.Add(tx, false); err != nil {
		t.Fatal(err)
	}

	// First fill validates and stamps the watermark.
	if txs, _, _ := p.FillBlockTemplate(100_000, 200_000, 0); len(txs) != 1 {
		t.Fatal("transaction not selected")
	}

	// Break the validator: the cached watermark must keep the entry
	// ready while the tip is unchanged.
	v.inputsErr = errValidatorBroken
	if txs, _, _ := p.FillBlockTemplate(100_000, 200_000, 0); len(txs) != 1 {
		t.Error("watermarked entry revalidated needlessly")
	}

	// Move the tip so the watermark goes stale: the entry now fails and
	// is skipped.
	v.tipHeight++
	v.tipHash[0] ^= 0xff
	if txs, _, _ := p.FillBlockTemplate(100_000, 200_000, 0); len(txs) != 0 {
		t.Error("stale entry selected after validation failure")
	}
}

var errValidatorBroken = errors.New("validator broken")
