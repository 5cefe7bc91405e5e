package transaction

import (
	"errors"
	"testing"

	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

func validKey() types.PublicKey {
	return crypto.GenerateKeys().Public
}

func TestCheckInputTypes(t *testing.T) {
	empty := &Prefix{}
	if err := empty.CheckInputTypes(); !errors.Is(err, ErrNoInputs) {
		t.Errorf("no inputs: got %v", err)
	}

	mixed := &Prefix{Inputs: []Input{
		&KeyInput{Amount: 1, OutputOffsets: []uint32{0}},
		&CoinbaseInput{BlockHeight: 5},
	}}
	if err := mixed.CheckInputTypes(); !errors.Is(err, ErrCoinbaseInRegular) {
		t.Errorf("coinbase in regular tx: got %v", err)
	}
}

func TestCheckOutputs(t *testing.T) {
	zero := &Prefix{Outputs: []Output{{Amount: 0, Target: &KeyOutputTarget{Key: validKey()}}}}
	if err := zero.CheckOutputs(); !errors.Is(err, ErrZeroAmountOutput) {
		t.Errorf("zero amount: got %v", err)
	}

	var notAPoint types.PublicKey
	for i := range notAPoint {
		notAPoint[i] = 0xff
	}
	badKey := &Prefix{Outputs: []Output{{Amount: 1, Target: &KeyOutputTarget{Key: notAPoint}}}}
	if err := badKey.CheckOutputs(); !errors.Is(err, ErrInvalidOutputKey) {
		t.Errorf("undecodable output key: got %v", err)
	}

	badMsig := &Prefix{Outputs: []Output{{
		Amount: 1,
		Target: &MultisigOutputTarget{Keys: []types.PublicKey{validKey()}, RequiredSignatures: 2},
	}}}
	if err := badMsig.CheckOutputs(); !errors.Is(err, ErrBadMultisigOutput) {
		t.Errorf("threshold above key count: got %v", err)
	}

	good := &Prefix{Outputs: []Output{
		{Amount: 1, Target: &KeyOutputTarget{Key: validKey()}},
		{Amount: 2, Target: &MultisigOutputTarget{Keys: []types.PublicKey{validKey(), validKey()}, RequiredSignatures: 1}},
	}}
	if err := good.CheckOutputs(); err != nil {
		t.Errorf("valid outputs rejected: %v", err)
	}
}

func TestCheckInputsUnique(t *testing.T) {
	var image types.KeyImage
	image[0] = 1

	dupImage := &Prefix{Inputs: []Input{
		&KeyInput{Amount: 1, OutputOffsets: []uint32{0}, KeyImage: image},
		&KeyInput{Amount: 2, OutputOffsets: []uint32{1}, KeyImage: image},
	}}
	if err := dupImage.CheckInputsUnique(); !errors.Is(err, ErrDuplicateKeyImage) {
		t.Errorf("duplicate image: got %v", err)
	}

	dupRing := &Prefix{Inputs: []Input{
		&KeyInput{Amount: 1, OutputOffsets: []uint32{4, 0}, KeyImage: image},
	}}
	if err := dupRing.CheckInputsUnique(); !errors.Is(err, ErrDuplicateRing) {
		t.Errorf("zero delta: got %v", err)
	}

	dupMsig := &Prefix{Inputs: []Input{
		&MultisigInput{Amount: 5, OutputIndex: 2, SignatureCount: 1},
		&MultisigInput{Amount: 5, OutputIndex: 2, SignatureCount: 1},
	}}
	if err := dupMsig.CheckInputsUnique(); !errors.Is(err, ErrDuplicateMultisig) {
		t.Errorf("duplicate multisig ref: got %v", err)
	}

	emptyRing := &Prefix{Inputs: []Input{
		&KeyInput{Amount: 1, KeyImage: image},
	}}
	if err := emptyRing.CheckInputsUnique(); !errors.Is(err, ErrEmptyRing) {
		t.Errorf("empty ring: got %v", err)
	}
}

func TestCheckSignatureShape(t *testing.T) {
	tx := &Transaction{
		Prefix: Prefix{Inputs: []Input{
			&KeyInput{Amount: 1, OutputOffsets: []uint32{0, 1, 2}},
		}},
		Signatures: [][]types.Signature{make([]types.Signature, 2)},
	}
	if err := tx.CheckSignatureShape(); !errors.Is(err, ErrSignatureShape) {
		t.Errorf("wrong ring signature count: got %v", err)
	}

	tx.Signatures = [][]types.Signature{make([]types.Signature, 3)}
	if err := tx.CheckSignatureShape(); err != nil {
		t.Errorf("correct shape rejected: %v", err)
	}
}
