package currency

import (
	"errors"
	"fmt"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// ErrRewardMismatch indicates the constructed coinbase outputs failed to
// sum to the computed reward.
var ErrRewardMismatch = errors.New("coinbase outputs do not sum to reward")

// ConstructMinerTx builds the base transaction of a block: the reward,
// decomposed into pretty amounts and locked for the unlock window, paid to
// minerAddress through per-output derived one-time keys.
//
// txSeed keys the deterministic transaction key pair so repeated template
// construction at the same height yields identical coinbases; pass a zero
// hash for the genesis coinbase.
func (c *Currency) ConstructMinerTx(majorVersion uint8, height uint64, medianSize, currentBlockSize uint64,
	alreadyGeneratedCoins, fee uint64, minerAddress types.AccountAddress, extraNonce []byte,
	maxOuts int, txSeed types.Hash) (*transaction.Transaction, crypto.KeyPair, error) {

	if maxOuts < 1 {
		return nil, crypto.KeyPair{}, fmt.Errorf("max outs must be at least 1")
	}

	seed := make([]byte, 0, 40)
	seed = append(seed, txSeed[:]...)
	for v := height; ; v >>= 7 {
		if v < 0x80 {
			seed = append(seed, byte(v))
			break
		}
		seed = append(seed, byte(v)|0x80)
	}
	txKeys := crypto.GenerateDeterministicKeys(seed)

	reward, _, err := c.GetBlockReward(majorVersion, height, medianSize, currentBlockSize, alreadyGeneratedCoins, fee)
	if err != nil {
		return nil, crypto.KeyPair{}, err
	}

	outAmounts := types.DecomposeAmountIntoDigits(reward)
	// The chunks come smallest-first; fold the largest denominations
	// together until the output count fits.
	for len(outAmounts) > maxOuts {
		outAmounts[len(outAmounts)-2] += outAmounts[len(outAmounts)-1]
		outAmounts = outAmounts[:len(outAmounts)-1]
	}

	extra := transaction.AppendTxPublicKeyToExtra(nil, txKeys.Public)
	if len(extraNonce) > 0 {
		if extra, err = transaction.AppendNonceToExtra(extra, extraNonce); err != nil {
			return nil, crypto.KeyPair{}, err
		}
	}

	outputs := make([]transaction.Output, 0, len(outAmounts))
	var summary uint64
	for i, amount := range outAmounts {
		derivation, err := crypto.GenerateKeyDerivation(minerAddress.ViewPublicKey, txKeys.Secret)
		if err != nil {
			return nil, crypto.KeyPair{}, fmt.Errorf("output %d derivation: %w", i, err)
		}
		outKey, err := crypto.DerivePublicKey(derivation, uint64(i), minerAddress.SpendPublicKey)
		if err != nil {
			return nil, crypto.KeyPair{}, fmt.Errorf("output %d key: %w", i, err)
		}
		outputs = append(outputs, transaction.Output{
			Amount: amount,
			Target: &transaction.KeyOutputTarget{Key: outKey},
		})
		summary += amount
	}

	if summary != reward {
		return nil, crypto.KeyPair{}, fmt.Errorf("%w: got %d, want %d", ErrRewardMismatch, summary, reward)
	}

	tx := &transaction.Transaction{
		Prefix: transaction.Prefix{
			Version:    transaction.CurrentVersion,
			UnlockTime: height + c.minedMoneyUnlockWindow,
			Inputs:     []transaction.Input{&transaction.CoinbaseInput{BlockHeight: height}},
			Outputs:    outputs,
			Extra:      extra,
		},
		Signatures: [][]types.Signature{nil},
	}
	return tx, txKeys, nil
}

// generateGenesisBlock constructs the deterministic genesis block: a v1
// block at height 0 whose coinbase pays the emission-curve reward to the
// zero address.
func (c *Currency) generateGenesisBlock() error {
	var zeroAddress types.AccountAddress

	tx, _, err := c.ConstructMinerTx(block.MajorVersion1, 0, 0, 0, 0, 0, zeroAddress, nil, 1, types.Hash{})
	if err != nil {
		return fmt.Errorf("genesis coinbase: %w", err)
	}

	nonce := uint32(config.GenesisNonce)
	if c.testnet {
		nonce = config.TestnetGenesisNonce
	}

	c.genesisBlock = &block.Block{
		MajorVersion:    block.MajorVersion1,
		MinorVersion:    block.MinorVersion0,
		Timestamp:       config.GenesisTimestamp,
		Nonce:           nonce,
		BaseTransaction: *tx,
	}

	hash, err := c.genesisBlock.Hash()
	if err != nil {
		return err
	}
	c.genesisHash = hash
	return nil
}
