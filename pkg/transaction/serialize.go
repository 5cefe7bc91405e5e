package transaction

import (
	"fmt"

	"github.com/mevanet/mevanet-chain/pkg/serialize"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Wire tags for the tagged variants.
const (
	tagInputCoinbase = 0xff
	tagInputKey      = 0x02
	tagInputMultisig = 0x03

	tagOutputKey      = 0x02
	tagOutputMultisig = 0x03
)

// maxExtraSize bounds the extra field on decode.
const maxExtraSize = 64 * 1024

// SerializePrefix returns the canonical encoding of the prefix.
func (t *Prefix) SerializePrefix() []byte {
	w := serialize.NewWriter()
	t.writePrefix(w)
	return w.Bytes()
}

func (t *Prefix) writePrefix(w *serialize.Writer) {
	w.WriteVarint(uint64(t.Version))
	w.WriteVarint(t.UnlockTime)

	w.WriteVarint(uint64(len(t.Inputs)))
	for _, in := range t.Inputs {
		w.WriteByte(in.inputTag())
		switch v := in.(type) {
		case *CoinbaseInput:
			w.WriteVarint(v.BlockHeight)
		case *KeyInput:
			w.WriteVarint(v.Amount)
			w.WriteVarint(uint64(len(v.OutputOffsets)))
			for _, off := range v.OutputOffsets {
				w.WriteVarint(uint64(off))
			}
			w.WriteBytes(v.KeyImage[:])
		case *MultisigInput:
			w.WriteVarint(v.Amount)
			w.WriteVarint(uint64(v.SignatureCount))
			w.WriteVarint(uint64(v.OutputIndex))
		}
	}

	w.WriteVarint(uint64(len(t.Outputs)))
	for _, out := range t.Outputs {
		w.WriteVarint(out.Amount)
		w.WriteByte(out.Target.targetTag())
		switch v := out.Target.(type) {
		case *KeyOutputTarget:
			w.WriteBytes(v.Key[:])
		case *MultisigOutputTarget:
			w.WriteVarint(uint64(len(v.Keys)))
			for _, k := range v.Keys {
				w.WriteBytes(k[:])
			}
			w.WriteVarint(uint64(v.RequiredSignatures))
		}
	}

	w.WriteVarBytes(t.Extra)
}

// Serialize returns the canonical encoding of the full transaction:
// prefix followed by the flat signature sequence grouped by input.
func (t *Transaction) Serialize() []byte {
	w := serialize.NewWriter()
	t.writePrefix(w)
	for _, group := range t.Signatures {
		for _, sig := range group {
			w.WriteBytes(sig[:])
		}
	}
	return w.Bytes()
}

// signatureCount returns the number of signatures input expects.
func signatureCount(in Input) int {
	switch v := in.(type) {
	case *KeyInput:
		return len(v.OutputOffsets)
	case *MultisigInput:
		return int(v.SignatureCount)
	default:
		return 0
	}
}

// readPrefix decodes a prefix from r.
func readPrefix(r *serialize.Reader) (*Prefix, error) {
	var t Prefix

	version, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("version: %w", err)
	}
	if version > 0xff {
		return nil, fmt.Errorf("version %d out of range", version)
	}
	t.Version = uint8(version)

	if t.UnlockTime, err = r.ReadVarint(); err != nil {
		return nil, fmt.Errorf("unlock time: %w", err)
	}

	inputCount, err := r.ReadCount()
	if err != nil {
		return nil, fmt.Errorf("input count: %w", err)
	}
	t.Inputs = make([]Input, 0, inputCount)
	for i := 0; i < inputCount; i++ {
		in, err := readInput(r)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		t.Inputs = append(t.Inputs, in)
	}

	outputCount, err := r.ReadCount()
	if err != nil {
		return nil, fmt.Errorf("output count: %w", err)
	}
	t.Outputs = make([]Output, 0, outputCount)
	for i := 0; i < outputCount; i++ {
		out, err := readOutput(r)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		t.Outputs = append(t.Outputs, out)
	}

	extra, err := r.ReadVarBytes()
	if err != nil {
		return nil, fmt.Errorf("extra: %w", err)
	}
	if len(extra) > maxExtraSize {
		return nil, fmt.Errorf("extra too large: %d bytes", len(extra))
	}
	t.Extra = extra

	return &t, nil
}

func readInput(r *serialize.Reader) (Input, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagInputCoinbase:
		height, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		return &CoinbaseInput{BlockHeight: height}, nil

	case tagInputKey:
		var in KeyInput
		if in.Amount, err = r.ReadVarint(); err != nil {
			return nil, err
		}
		count, err := r.ReadCount()
		if err != nil {
			return nil, err
		}
		in.OutputOffsets = make([]uint32, count)
		for i := 0; i < count; i++ {
			off, err := r.ReadVarint()
			if err != nil {
				return nil, err
			}
			if off > 0xffffffff {
				return nil, fmt.Errorf("output offset %d out of range", off)
			}
			in.OutputOffsets[i] = uint32(off)
		}
		if err := r.ReadHash32((*[32]byte)(&in.KeyImage)); err != nil {
			return nil, err
		}
		return &in, nil

	case tagInputMultisig:
		var in MultisigInput
		if in.Amount, err = r.ReadVarint(); err != nil {
			return nil, err
		}
		sigCount, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		if sigCount > 0xff {
			return nil, fmt.Errorf("signature count %d out of range", sigCount)
		}
		in.SignatureCount = uint8(sigCount)
		idx, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		if idx > 0xffffffff {
			return nil, fmt.Errorf("output index %d out of range", idx)
		}
		in.OutputIndex = uint32(idx)
		return &in, nil

	default:
		return nil, fmt.Errorf("%w: tag 0x%02x", ErrUnknownInputType, tag)
	}
}

func readOutput(r *serialize.Reader) (Output, error) {
	var out Output
	var err error
	if out.Amount, err = r.ReadVarint(); err != nil {
		return Output{}, err
	}

	tag, err := r.ReadByte()
	if err != nil {
		return Output{}, err
	}
	switch tag {
	case tagOutputKey:
		var target KeyOutputTarget
		if err := r.ReadHash32((*[32]byte)(&target.Key)); err != nil {
			return Output{}, err
		}
		out.Target = &target

	case tagOutputMultisig:
		var target MultisigOutputTarget
		count, err := r.ReadCount()
		if err != nil {
			return Output{}, err
		}
		target.Keys = make([]types.PublicKey, count)
		for i := 0; i < count; i++ {
			if err := r.ReadHash32((*[32]byte)(&target.Keys[i])); err != nil {
				return Output{}, err
			}
		}
		required, err := r.ReadVarint()
		if err != nil {
			return Output{}, err
		}
		if required > 0xff {
			return Output{}, fmt.Errorf("required signatures %d out of range", required)
		}
		target.RequiredSignatures = uint8(required)
		out.Target = &target

	default:
		return Output{}, fmt.Errorf("%w: tag 0x%02x", ErrUnknownOutputType, tag)
	}
	return out, nil
}

// Deserialize decodes a full transaction and requires the input to be
// consumed exactly.
func Deserialize(data []byte) (*Transaction, error) {
	r := serialize.NewReader(data)
	t, err := ReadFrom(r)
	if err != nil {
		return nil, err
	}
	if !r.Done() {
		return nil, fmt.Errorf("%d trailing bytes after transaction", r.Remaining())
	}
	return t, nil
}

// ReadFrom decodes a transaction from r, leaving any trailing bytes
// unread. Used when a transaction is embedded in a larger structure.
func ReadFrom(r *serialize.Reader) (*Transaction, error) {
	prefix, err := readPrefix(r)
	if err != nil {
		return nil, err
	}

	t := &Transaction{Prefix: *prefix}
	if len(prefix.Inputs) > 0 {
		t.Signatures = make([][]types.Signature, len(prefix.Inputs))
	}
	for i, in := range prefix.Inputs {
		n := signatureCount(in)
		group := make([]types.Signature, n)
		for j := 0; j < n; j++ {
			b, err := r.ReadBytes(types.SignatureSize)
			if err != nil {
				return nil, fmt.Errorf("signature %d/%d: %w", i, j, err)
			}
			copy(group[j][:], b)
		}
		t.Signatures[i] = group
	}
	return t, nil
}
