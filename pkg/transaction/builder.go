package transaction

import (
	"fmt"
	"sort"

	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// SourceOutput is one ring member: a global output index and its one-time
// public key.
type SourceOutput struct {
	GlobalIndex uint32
	Key         types.PublicKey
}

// Source describes one input to construct: the full ring, the position and
// origin of the real output within it, and the amount being spent.
type Source struct {
	Outputs []SourceOutput // ring members, real one included
	// RealOutput is the index within Outputs of the member actually owned.
	RealOutput int
	// RealTxPublicKey is the transaction key of the transaction that
	// created the real output.
	RealTxPublicKey types.PublicKey
	// RealOutputIndex is the slot of the real output inside its
	// originating transaction.
	RealOutputIndex uint64
	Amount          uint64
}

// Destination is one payment target.
type Destination struct {
	Amount  uint64
	Address types.AccountAddress
}

// Construct builds and ring-signs a transaction spending sources to
// destinations. The transaction key pair is derived deterministically from
// the inputs hash and the sender's view secret so that the sender can later
// reproduce it. unlockTime is carried verbatim.
func Construct(sender types.AccountKeys, sources []Source, destinations []Destination,
	extra []byte, unlockTime uint64) (*Transaction, error) {

	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources")
	}
	for i, d := range destinations {
		if d.Amount == 0 {
			return nil, fmt.Errorf("destination %d: zero amount", i)
		}
	}

	// One-time spend keys and key images per source.
	type inputContext struct {
		ephemeralSecret types.SecretKey
		ringKeys        []types.PublicKey
		realIndex       int
	}
	contexts := make([]inputContext, 0, len(sources))
	inputs := make([]Input, 0, len(sources))

	for i := range sources {
		src := &sources[i]
		if src.RealOutput < 0 || src.RealOutput >= len(src.Outputs) {
			return nil, fmt.Errorf("source %d: real output index out of range", i)
		}

		derivation, err := crypto.GenerateKeyDerivation(src.RealTxPublicKey, sender.ViewSecretKey)
		if err != nil {
			return nil, fmt.Errorf("source %d: derivation: %w", i, err)
		}
		ephemeralSecret, err := crypto.DeriveSecretKey(derivation, src.RealOutputIndex, sender.SpendSecretKey)
		if err != nil {
			return nil, fmt.Errorf("source %d: secret key: %w", i, err)
		}
		ephemeralPublic, err := crypto.DerivePublicKey(derivation, src.RealOutputIndex, sender.Address.SpendPublicKey)
		if err != nil {
			return nil, fmt.Errorf("source %d: public key: %w", i, err)
		}
		if ephemeralPublic != src.Outputs[src.RealOutput].Key {
			return nil, fmt.Errorf("source %d: derived key does not match real output", i)
		}
		keyImage, err := crypto.GenerateKeyImage(ephemeralPublic, ephemeralSecret)
		if err != nil {
			return nil, fmt.Errorf("source %d: key image: %w", i, err)
		}

		// Ring members sorted by global index; the wire carries deltas.
		members := make([]SourceOutput, len(src.Outputs))
		copy(members, src.Outputs)
		realKey := src.Outputs[src.RealOutput].Key
		sort.Slice(members, func(a, b int) bool { return members[a].GlobalIndex < members[b].GlobalIndex })

		absolute := make([]uint32, len(members))
		ringKeys := make([]types.PublicKey, len(members))
		realIndex := -1
		for j, m := range members {
			absolute[j] = m.GlobalIndex
			ringKeys[j] = m.Key
			if m.Key == realKey {
				realIndex = j
			}
		}
		if realIndex < 0 {
			return nil, fmt.Errorf("source %d: real output missing from ring", i)
		}
		offsets, err := AbsoluteToRelative(absolute)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}

		inputs = append(inputs, &KeyInput{
			Amount:        src.Amount,
			OutputOffsets: offsets,
			KeyImage:      keyImage,
		})
		contexts = append(contexts, inputContext{
			ephemeralSecret: ephemeralSecret,
			ringKeys:        ringKeys,
			realIndex:       realIndex,
		})
	}

	// Deterministic transaction keys from the inputs hash.
	inputsPrefix := Prefix{Version: CurrentVersion, Inputs: inputs}
	txKeys := crypto.DeterministicTxKeys(crypto.Hash(inputsPrefix.SerializePrefix()), sender.ViewSecretKey)

	outputs := make([]Output, 0, len(destinations))
	for i, d := range destinations {
		derivation, err := crypto.GenerateKeyDerivation(d.Address.ViewPublicKey, txKeys.Secret)
		if err != nil {
			return nil, fmt.Errorf("destination %d: derivation: %w", i, err)
		}
		outKey, err := crypto.DerivePublicKey(derivation, uint64(i), d.Address.SpendPublicKey)
		if err != nil {
			return nil, fmt.Errorf("destination %d: output key: %w", i, err)
		}
		outputs = append(outputs, Output{
			Amount: d.Amount,
			Target: &KeyOutputTarget{Key: outKey},
		})
	}

	tx := &Transaction{
		Prefix: Prefix{
			Version:    CurrentVersion,
			UnlockTime: unlockTime,
			Inputs:     inputs,
			Outputs:    outputs,
			Extra:      AppendTxPublicKeyToExtra(extra, txKeys.Public),
		},
	}

	prefixHash := tx.PrefixHash()
	tx.Signatures = make([][]types.Signature, len(inputs))
	for i, ctx := range contexts {
		in := inputs[i].(*KeyInput)
		sigs, err := crypto.GenerateRingSignature(prefixHash, in.KeyImage, ctx.ringKeys,
			ctx.ephemeralSecret, ctx.realIndex)
		if err != nil {
			return nil, fmt.Errorf("input %d: ring signature: %w", i, err)
		}
		tx.Signatures[i] = sigs
	}

	return tx, nil
}
