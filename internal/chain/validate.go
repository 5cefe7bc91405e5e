package chain

import (
	"errors"
	"fmt"

	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Rejection reasons surfaced by the validating entry points.
var (
	ErrBadVersion   = errors.New("bad block version")
	ErrBadPoW       = errors.New("proof of work below target")
	ErrBadTimestamp = errors.New("block timestamp out of range")
	ErrTooBig       = errors.New("block or transaction too large")
	ErrBadCoinbase  = errors.New("invalid coinbase transaction")
	ErrBadInput     = errors.New("invalid transaction input")
	ErrDoubleSpend  = errors.New("key image already spent")
)

// validateTransactionLocked checks a transaction against the current
// main-chain state, as of a block being built or validated at blockHeight:
// ring members must exist, be old enough and unlocked; key images must be
// unspent; ring signatures must verify over the prefix hash.
//
// checkSignatures is false inside the checkpointed range, where cheaper
// verification is permitted.
func (bc *Blockchain) validateTransactionLocked(tx *transaction.Transaction, blockHeight uint64, checkSignatures bool) error {
	if err := tx.CheckSemantics(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	if size := uint64(tx.BlobSize()); size > bc.currency.MaxTxSizeLimit() {
		return fmt.Errorf("%w: transaction is %d bytes", ErrTooBig, size)
	}

	prefixHash := tx.PrefixHash()

	for i, in := range tx.Inputs {
		switch v := in.(type) {
		case *transaction.KeyInput:
			if err := bc.validateKeyInputLocked(v, tx.Signatures[i], prefixHash, blockHeight, checkSignatures, i); err != nil {
				return err
			}
		case *transaction.MultisigInput:
			if err := bc.validateMultisigInputLocked(v, tx.Signatures[i], prefixHash, blockHeight, checkSignatures, i); err != nil {
				return err
			}
		case *transaction.CoinbaseInput:
			return fmt.Errorf("%w: input %d: coinbase input outside base transaction", ErrBadInput, i)
		}
	}
	return nil
}

func (bc *Blockchain) validateKeyInputLocked(in *transaction.KeyInput, sigs []types.Signature,
	prefixHash types.Hash, blockHeight uint64, checkSignatures bool, inputIdx int) error {

	if in.Amount == 0 {
		return fmt.Errorf("%w: input %d: zero amount", ErrBadInput, inputIdx)
	}

	mixin := len(in.OutputOffsets) - 1
	if mixin < bc.currency.MinMixin() || mixin > bc.currency.MaxMixin() {
		return fmt.Errorf("%w: input %d: mixin %d outside [%d, %d]",
			ErrBadInput, inputIdx, mixin, bc.currency.MinMixin(), bc.currency.MaxMixin())
	}

	absolute, err := transaction.RelativeToAbsolute(in.OutputOffsets)
	if err != nil {
		return fmt.Errorf("%w: input %d: %v", ErrBadInput, inputIdx, err)
	}

	if bc.spentImages.Contains(in.KeyImage) {
		return fmt.Errorf("%w: input %d: image %s", ErrDoubleSpend, inputIdx, in.KeyImage)
	}

	ringKeys := make([]types.PublicKey, len(absolute))
	for j, globalIndex := range absolute {
		entry, err := bc.outputEntryLocked(in.Amount, globalIndex)
		if err != nil {
			return fmt.Errorf("%w: input %d ring %d: %v", ErrBadInput, inputIdx, j, err)
		}
		if entry.height+bc.currency.SpendableAge() > blockHeight {
			return fmt.Errorf("%w: input %d ring %d: output too young (height %d, need age %d)",
				ErrBadInput, inputIdx, j, entry.height, bc.currency.SpendableAge())
		}
		if !bc.isUnlockedLocked(entry.unlockTime, blockHeight) {
			return fmt.Errorf("%w: input %d ring %d: output locked until %d",
				ErrBadInput, inputIdx, j, entry.unlockTime)
		}
		ringKeys[j] = entry.key
	}

	if checkSignatures {
		if !crypto.CheckRingSignature(prefixHash, in.KeyImage, ringKeys, sigs) {
			return fmt.Errorf("%w: input %d: ring signature invalid", ErrBadInput, inputIdx)
		}
	}
	return nil
}

func (bc *Blockchain) validateMultisigInputLocked(in *transaction.MultisigInput, sigs []types.Signature,
	prefixHash types.Hash, blockHeight uint64, checkSignatures bool, inputIdx int) error {

	usage, ok := bc.outputs.GetMultisig(in.Amount, in.OutputIndex)
	if !ok {
		return fmt.Errorf("%w: input %d: multisig output %d/%d unknown",
			ErrBadInput, inputIdx, in.Amount, in.OutputIndex)
	}
	if usage.IsUsed {
		return fmt.Errorf("%w: input %d: multisig output %d/%d already spent",
			ErrDoubleSpend, inputIdx, in.Amount, in.OutputIndex)
	}

	entry := bc.entries[usage.TxIndex.Block]
	owner := &entry.Transactions[usage.TxIndex.Transaction].Tx
	target, ok := owner.Outputs[usage.OutSlot].Target.(*transaction.MultisigOutputTarget)
	if !ok {
		bc.quarantine("multisig index points at a non-multisig output")
		return fmt.Errorf("multisig index corrupt: %w", ErrQuarantined)
	}

	if usage.TxIndex.Block+bc.currency.SpendableAge() > blockHeight {
		return fmt.Errorf("%w: input %d: multisig output too young", ErrBadInput, inputIdx)
	}
	if !bc.isUnlockedLocked(owner.UnlockTime, blockHeight) {
		return fmt.Errorf("%w: input %d: multisig output locked until %d", ErrBadInput, inputIdx, owner.UnlockTime)
	}
	if in.SignatureCount != target.RequiredSignatures {
		return fmt.Errorf("%w: input %d: signature count %d, output requires %d",
			ErrBadInput, inputIdx, in.SignatureCount, target.RequiredSignatures)
	}

	if checkSignatures {
		// Each signature must verify against a distinct participant key,
		// in key order.
		sigIdx := 0
		for _, key := range target.Keys {
			if sigIdx >= len(sigs) {
				break
			}
			if crypto.CheckSignature(prefixHash, key, sigs[sigIdx]) {
				sigIdx++
			}
		}
		if sigIdx != len(sigs) {
			return fmt.Errorf("%w: input %d: multisig signatures invalid", ErrBadInput, inputIdx)
		}
	}
	return nil
}

// validateMergeMining checks the parent container of a merge-mined block:
// the parent's base transaction must carry a merge-mining tag whose merkle
// root is reached from this block's aux header hash through the recorded
// branch.
func (bc *Blockchain) validateMergeMining(blk *block.Block) error {
	if !blk.NeedsParent() {
		if blk.Parent != nil {
			return fmt.Errorf("%w: unexpected parent block", ErrBadVersion)
		}
		return nil
	}
	if blk.Parent == nil {
		return fmt.Errorf("%w: parent block missing", ErrBadVersion)
	}

	tag, err := transaction.MergeMiningTagFromExtra(blk.Parent.BaseTransaction.Extra)
	if err != nil {
		return fmt.Errorf("%w: merge mining tag: %v", ErrBadVersion, err)
	}
	if tag.Depth != uint64(len(blk.Parent.BlockchainBranch)) {
		return fmt.Errorf("%w: merge mining depth %d, branch length %d",
			ErrBadVersion, tag.Depth, len(blk.Parent.BlockchainBranch))
	}
	if err := block.VerifyBranch(blk.Parent.BlockchainBranch, blk.AuxHeaderHash(), tag.MerkleRoot); err != nil {
		return fmt.Errorf("%w: merge mining proof: %v", ErrBadVersion, err)
	}
	return nil
}

// validateCoinbaseLocked checks the base transaction shape for a block at
// height: exactly one coinbase input carrying the height, outputs with
// valid targets, and the unlock window applied.
func (bc *Blockchain) validateCoinbaseLocked(base *transaction.Transaction, height uint64) error {
	if len(base.Inputs) != 1 {
		return fmt.Errorf("%w: %d inputs", ErrBadCoinbase, len(base.Inputs))
	}
	in, ok := base.Inputs[0].(*transaction.CoinbaseInput)
	if !ok {
		return fmt.Errorf("%w: input is not a coinbase input", ErrBadCoinbase)
	}
	if in.BlockHeight != height {
		return fmt.Errorf("%w: input height %d, block height %d", ErrBadCoinbase, in.BlockHeight, height)
	}
	if base.UnlockTime != height+bc.currency.MinedMoneyUnlockWindow() {
		return fmt.Errorf("%w: unlock time %d, want %d", ErrBadCoinbase,
			base.UnlockTime, height+bc.currency.MinedMoneyUnlockWindow())
	}
	if err := base.CheckOutputs(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCoinbase, err)
	}
	if _, err := base.OutputsAmount(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCoinbase, err)
	}
	return nil
}

// CheckTransactionInputs validates a transaction against the current tip
// for mempool admission. It returns the height the check was performed at.
func (bc *Blockchain) CheckTransactionInputs(tx *transaction.Transaction) (uint64, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if err := bc.checkOperable(); err != nil {
		return 0, err
	}

	// A transaction entering the pool must be spendable in the NEXT
	// block.
	nextHeight := uint64(len(bc.entries))
	if err := bc.validateTransactionLocked(tx, nextHeight, true); err != nil {
		return 0, err
	}
	return nextHeight, nil
}

// HaveSpentKeyImages reports whether any key image of the transaction is
// already spent on the main chain.
func (bc *Blockchain) HaveSpentKeyImages(tx *transaction.Transaction) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, image := range tx.KeyImages() {
		if bc.spentImages.Contains(image) {
			return true
		}
	}
	return false
}

// CheckTransactionSize reports whether a blob of the given size is
// admissible.
func (bc *Blockchain) CheckTransactionSize(blobSize int) bool {
	return uint64(blobSize) <= bc.currency.MaxTxSizeLimit()
}
