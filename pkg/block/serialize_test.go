package block

import (
	"bytes"
	"testing"

	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

func coinbaseTx(height uint64) transaction.Transaction {
	var outKey types.PublicKey
	outKey[3] = 0x42
	return transaction.Transaction{
		Prefix: transaction.Prefix{
			Version:    transaction.CurrentVersion,
			UnlockTime: height + 10,
			Inputs:     []transaction.Input{&transaction.CoinbaseInput{BlockHeight: height}},
			Outputs:    []transaction.Output{{Amount: 100, Target: &transaction.KeyOutputTarget{Key: outKey}}},
		},
		Signatures: [][]types.Signature{nil},
	}
}

func sampleBlock(major uint8) *Block {
	blk := &Block{
		MajorVersion:      major,
		MinorVersion:      MinorVersion0,
		Timestamp:         1_600_000_000,
		Nonce:             7,
		BaseTransaction:   coinbaseTx(9),
		TransactionHashes: []types.Hash{{0x01}, {0x02}},
	}
	blk.PreviousBlockHash[0] = 0xaa

	if hasParent(major) {
		parent := &ParentBlock{
			MajorVersion:          MajorVersion1,
			MinorVersion:          MinorVersion0,
			TransactionCount:      4,
			BaseTransactionBranch: []types.Hash{{0x03}},
			BaseTransaction:       coinbaseTx(0),
			BlockchainBranch:      []types.Hash{{0x04}, {0x05}},
		}
		parent.PreviousBlockHash[1] = 0xbb
		blk.Parent = parent
	}
	if hasSignature(major) {
		sig := types.Signature{0x06}
		blk.Signature = &sig
	}
	return blk
}

func TestBlock_RoundTrip(t *testing.T) {
	for _, major := range []uint8{MajorVersion1, MajorVersion2, MajorVersion3, MajorVersion4, MajorVersion5, MajorVersion6} {
		blk := sampleBlock(major)
		blob, err := blk.Serialize()
		if err != nil {
			t.Fatalf("v%d: Serialize: %v", major, err)
		}

		decoded, err := Deserialize(blob)
		if err != nil {
			t.Fatalf("v%d: Deserialize: %v", major, err)
		}
		reencoded, err := decoded.Serialize()
		if err != nil {
			t.Fatalf("v%d: re-serialize: %v", major, err)
		}
		if !bytes.Equal(reencoded, blob) {
			t.Errorf("v%d: round trip not bitwise", major)
		}

		origHash, err := blk.Hash()
		if err != nil {
			t.Fatalf("v%d: Hash: %v", major, err)
		}
		gotHash, err := decoded.Hash()
		if err != nil {
			t.Fatalf("v%d: decoded Hash: %v", major, err)
		}
		if origHash != gotHash {
			t.Errorf("v%d: hash changed across round trip", major)
		}
	}
}

func TestBlock_ParentRequired(t *testing.T) {
	blk := sampleBlock(MajorVersion2)
	blk.Parent = nil
	if _, err := blk.Serialize(); err == nil {
		t.Error("v2 block without parent serialized")
	}

	blk = sampleBlock(MajorVersion1)
	blk.Parent = &ParentBlock{BaseTransaction: coinbaseTx(0)}
	if _, err := blk.Serialize(); err == nil {
		t.Error("v1 block with parent serialized")
	}
}

func TestBlock_HashCoversHeader(t *testing.T) {
	blk := sampleBlock(MajorVersion1)
	base, err := blk.Hash()
	if err != nil {
		t.Fatal(err)
	}

	mutations := []func(*Block){
		func(b *Block) { b.Nonce++ },
		func(b *Block) { b.Timestamp++ },
		func(b *Block) { b.PreviousBlockHash[0] ^= 1 },
		func(b *Block) { b.MinorVersion++ },
		func(b *Block) { b.TransactionHashes[0][0] ^= 1 },
		func(b *Block) { b.BaseTransaction.UnlockTime++ },
	}
	for i, mutate := range mutations {
		m := sampleBlock(MajorVersion1)
		mutate(m)
		h, err := m.Hash()
		if err != nil {
			t.Fatalf("mutation %d: %v", i, err)
		}
		if h == base {
			t.Errorf("mutation %d does not change the block hash", i)
		}
	}
}

func TestBlock_SignatureOutsideHashingBlob(t *testing.T) {
	blk := sampleBlock(MajorVersion5)
	before, err := blk.Hash()
	if err != nil {
		t.Fatal(err)
	}
	blk.Signature[0] ^= 0xff
	after, err := blk.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Error("block signature must not feed the hashing blob")
	}
}

func TestBlock_Height(t *testing.T) {
	blk := sampleBlock(MajorVersion1)
	if got := blk.Height(); got != 9 {
		t.Errorf("height = %d, want 9", got)
	}
}

func TestDeserialize_TrailingBytes(t *testing.T) {
	blk := sampleBlock(MajorVersion1)
	blob, err := blk.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Deserialize(append(blob, 0)); err == nil {
		t.Error("trailing bytes accepted")
	}
}
