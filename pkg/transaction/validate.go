package transaction

import (
	"errors"
	"fmt"

	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Structural validation errors.
var (
	ErrNoInputs           = errors.New("transaction has no inputs")
	ErrEmptyRing          = errors.New("key input references no outputs")
	ErrZeroAmountOutput   = errors.New("output amount is zero")
	ErrInvalidOutputKey   = errors.New("output key is not a valid point")
	ErrDuplicateKeyImage  = errors.New("duplicate key image within transaction")
	ErrDuplicateRing      = errors.New("duplicate ring member offset")
	ErrDuplicateMultisig  = errors.New("duplicate multisignature input reference")
	ErrBadMultisigOutput  = errors.New("malformed multisignature output")
	ErrSignatureShape     = errors.New("signature count does not match inputs")
	ErrCoinbaseInRegular  = errors.New("coinbase input in non-base transaction")
	ErrUnlockTimeOverflow = errors.New("unlock time out of range")
)

// CheckInputTypes verifies that every input is one of the supported
// variants and that coinbase inputs appear only in base transactions.
func (t *Prefix) CheckInputTypes() error {
	if len(t.Inputs) == 0 {
		return ErrNoInputs
	}
	for i, in := range t.Inputs {
		switch in.(type) {
		case *CoinbaseInput:
			if !t.IsCoinbase() {
				return fmt.Errorf("input %d: %w", i, ErrCoinbaseInRegular)
			}
		case *KeyInput, *MultisigInput:
		default:
			return fmt.Errorf("input %d: %w", i, ErrUnknownInputType)
		}
	}
	return nil
}

// CheckOutputs verifies every output: nonzero amount, decodable one-time
// keys, and consistent multisignature thresholds.
func (t *Prefix) CheckOutputs() error {
	for i, out := range t.Outputs {
		if out.Amount == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroAmountOutput)
		}
		switch target := out.Target.(type) {
		case *KeyOutputTarget:
			if !crypto.CheckKey(target.Key) {
				return fmt.Errorf("output %d: %w", i, ErrInvalidOutputKey)
			}
		case *MultisigOutputTarget:
			if len(target.Keys) == 0 || int(target.RequiredSignatures) > len(target.Keys) || target.RequiredSignatures == 0 {
				return fmt.Errorf("output %d: %w", i, ErrBadMultisigOutput)
			}
			for _, k := range target.Keys {
				if !crypto.CheckKey(k) {
					return fmt.Errorf("output %d: %w", i, ErrInvalidOutputKey)
				}
			}
		default:
			return fmt.Errorf("output %d: %w", i, ErrUnknownOutputType)
		}
	}
	return nil
}

// CheckInputsUnique rejects key-image duplicates, zero-delta ring members
// and repeated multisignature references inside a single transaction.
func (t *Prefix) CheckInputsUnique() error {
	images := make(map[types.KeyImage]struct{})
	type msigRef struct {
		amount uint64
		index  uint32
	}
	msigs := make(map[msigRef]struct{})

	for i, in := range t.Inputs {
		switch v := in.(type) {
		case *KeyInput:
			if len(v.OutputOffsets) == 0 {
				return fmt.Errorf("input %d: %w", i, ErrEmptyRing)
			}
			// Deltas after the first must be nonzero, otherwise two ring
			// slots point at the same output.
			for j := 1; j < len(v.OutputOffsets); j++ {
				if v.OutputOffsets[j] == 0 {
					return fmt.Errorf("input %d: %w", i, ErrDuplicateRing)
				}
			}
			if _, dup := images[v.KeyImage]; dup {
				return fmt.Errorf("input %d: %w", i, ErrDuplicateKeyImage)
			}
			images[v.KeyImage] = struct{}{}

		case *MultisigInput:
			ref := msigRef{amount: v.Amount, index: v.OutputIndex}
			if _, dup := msigs[ref]; dup {
				return fmt.Errorf("input %d: %w", i, ErrDuplicateMultisig)
			}
			msigs[ref] = struct{}{}
		}
	}
	return nil
}

// CheckSignatureShape verifies that the signature groups line up with the
// inputs: one group per input, one element per ring member.
func (t *Transaction) CheckSignatureShape() error {
	if len(t.Signatures) != len(t.Inputs) {
		return fmt.Errorf("%w: %d groups for %d inputs", ErrSignatureShape, len(t.Signatures), len(t.Inputs))
	}
	for i, in := range t.Inputs {
		if want := signatureCount(in); len(t.Signatures[i]) != want {
			return fmt.Errorf("%w: input %d has %d signatures, want %d", ErrSignatureShape, i, len(t.Signatures[i]), want)
		}
	}
	return nil
}

// CheckSemantics bundles the context-free checks: input types, outputs,
// amount overflow, intra-transaction uniqueness and signature shape.
// Context-dependent checks (ring member existence, unlock times, spent key
// images) belong to the blockchain engine.
func (t *Transaction) CheckSemantics() error {
	if err := t.CheckInputTypes(); err != nil {
		return err
	}
	if err := t.CheckOutputs(); err != nil {
		return err
	}
	if _, err := t.InputsAmount(); err != nil {
		return err
	}
	if _, err := t.OutputsAmount(); err != nil {
		return err
	}
	if !t.IsCoinbase() {
		if _, err := t.Fee(); err != nil {
			return err
		}
	}
	if err := t.CheckInputsUnique(); err != nil {
		return err
	}
	return t.CheckSignatureShape()
}
