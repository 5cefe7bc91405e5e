// Package transaction defines the transaction model: tagged input and
// output variants, the canonical binary codec, the extra-field format and
// structural validation.
package transaction

import (
	"errors"
	"fmt"
	"math"

	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// CurrentVersion is the transaction format version produced by this node.
const CurrentVersion = 1

// Input is a transaction input variant. The set of implementations is
// closed: CoinbaseInput, KeyInput and MultisigInput.
type Input interface {
	inputTag() byte
}

// CoinbaseInput mints the block reward. It appears exactly once, as
// input 0 of a block's base transaction, and carries the block height so
// every coinbase transaction hashes uniquely.
type CoinbaseInput struct {
	BlockHeight uint64 `json:"block_height"`
}

// KeyInput spends one output from a ring of same-amount outputs. The ring
// members are referenced by global output index, stored as deltas from the
// previous offset. The key image links double-spends of the real member.
type KeyInput struct {
	Amount        uint64         `json:"amount"`
	OutputOffsets []uint32       `json:"output_offsets"`
	KeyImage      types.KeyImage `json:"key_image"`
}

// MultisigInput spends a multisignature output, identified by amount and
// global index, with SignatureCount participant signatures attached.
type MultisigInput struct {
	Amount         uint64 `json:"amount"`
	SignatureCount uint8  `json:"signature_count"`
	OutputIndex    uint32 `json:"output_index"`
}

func (CoinbaseInput) inputTag() byte { return tagInputCoinbase }
func (KeyInput) inputTag() byte      { return tagInputKey }
func (MultisigInput) inputTag() byte { return tagInputMultisig }

// OutputTarget is an output destination variant: KeyOutputTarget or
// MultisigOutputTarget.
type OutputTarget interface {
	targetTag() byte
}

// KeyOutputTarget locks an output to a one-time public key.
type KeyOutputTarget struct {
	Key types.PublicKey `json:"key"`
}

// MultisigOutputTarget locks an output to a required-signatures threshold
// over a set of participant keys.
type MultisigOutputTarget struct {
	Keys               []types.PublicKey `json:"keys"`
	RequiredSignatures uint8             `json:"required_signatures"`
}

func (KeyOutputTarget) targetTag() byte      { return tagOutputKey }
func (MultisigOutputTarget) targetTag() byte { return tagOutputMultisig }

// Output is an amount bound to a target.
type Output struct {
	Amount uint64       `json:"amount"`
	Target OutputTarget `json:"target"`
}

// Prefix is the signed portion of a transaction: everything except the
// signatures. Its hash is both the ring-signature message and the base of
// the transaction id.
type Prefix struct {
	Version    uint8    `json:"version"`
	UnlockTime uint64   `json:"unlock_time"`
	Inputs     []Input  `json:"inputs"`
	Outputs    []Output `json:"outputs"`
	Extra      []byte   `json:"extra"`
}

// Transaction is a prefix plus one ring signature per input.
// Signatures[i] holds one element per ring member of input i.
type Transaction struct {
	Prefix
	Signatures [][]types.Signature `json:"signatures"`
}

// Transaction shape errors.
var (
	ErrUnknownInputType  = errors.New("unsupported input type")
	ErrUnknownOutputType = errors.New("unsupported output type")
	ErrAmountOverflow    = errors.New("amount sum overflow")
)

// Hash returns the transaction id: the hash of the full canonical encoding.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.Serialize())
}

// PrefixHash returns the hash of the canonical prefix encoding. Ring
// signatures sign this value.
func (t *Prefix) PrefixHash() types.Hash {
	return crypto.Hash(t.SerializePrefix())
}

// BlobSize returns the canonical encoded size in bytes.
func (t *Transaction) BlobSize() int {
	return len(t.Serialize())
}

// IsCoinbase reports whether the transaction is a base transaction: exactly
// one input of the coinbase variant.
func (t *Prefix) IsCoinbase() bool {
	if len(t.Inputs) != 1 {
		return false
	}
	_, ok := t.Inputs[0].(*CoinbaseInput)
	return ok
}

// InputsAmount sums the input amounts. Coinbase inputs contribute nothing.
func (t *Prefix) InputsAmount() (uint64, error) {
	var total uint64
	for _, in := range t.Inputs {
		var a uint64
		switch v := in.(type) {
		case *CoinbaseInput:
		case *KeyInput:
			a = v.Amount
		case *MultisigInput:
			a = v.Amount
		default:
			return 0, ErrUnknownInputType
		}
		if total > math.MaxUint64-a {
			return 0, fmt.Errorf("inputs: %w", ErrAmountOverflow)
		}
		total += a
	}
	return total, nil
}

// OutputsAmount sums the output amounts.
func (t *Prefix) OutputsAmount() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("outputs: %w", ErrAmountOverflow)
		}
		total += out.Amount
	}
	return total, nil
}

// Fee returns inputs minus outputs. Coinbase transactions have zero fee;
// for any other transaction outputs exceeding inputs is an error.
func (t *Prefix) Fee() (uint64, error) {
	if t.IsCoinbase() {
		return 0, nil
	}
	in, err := t.InputsAmount()
	if err != nil {
		return 0, err
	}
	out, err := t.OutputsAmount()
	if err != nil {
		return 0, err
	}
	if out > in {
		return 0, fmt.Errorf("outputs %d exceed inputs %d", out, in)
	}
	return in - out, nil
}

// KeyImages returns the key image of every key input, in input order.
func (t *Prefix) KeyImages() []types.KeyImage {
	var images []types.KeyImage
	for _, in := range t.Inputs {
		if ki, ok := in.(*KeyInput); ok {
			images = append(images, ki.KeyImage)
		}
	}
	return images
}

// RelativeToAbsolute converts delta-encoded ring offsets to absolute global
// indices. Returns an error on overflow.
func RelativeToAbsolute(offsets []uint32) ([]uint32, error) {
	out := make([]uint32, len(offsets))
	var acc uint64
	for i, d := range offsets {
		acc += uint64(d)
		if acc > math.MaxUint32 {
			return nil, fmt.Errorf("output offset overflow")
		}
		out[i] = uint32(acc)
	}
	return out, nil
}

// AbsoluteToRelative converts ascending absolute global indices into the
// delta encoding used on the wire. The input must be strictly ascending
// after the first element.
func AbsoluteToRelative(indices []uint32) ([]uint32, error) {
	out := make([]uint32, len(indices))
	for i, v := range indices {
		if i == 0 {
			out[i] = v
			continue
		}
		if v <= indices[i-1] {
			return nil, fmt.Errorf("output indices not ascending")
		}
		out[i] = v - indices[i-1]
	}
	return out, nil
}
