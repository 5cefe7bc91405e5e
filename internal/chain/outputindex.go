package chain

import (
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// OutputRef locates one output on the main chain: the transaction that
// created it and the slot within that transaction.
type OutputRef struct {
	TxIndex TransactionIndex
	OutSlot uint16
}

// MultisigOutputUsage is a multisignature output plus its spent flag. A
// multisignature output has no key image; double spends are prevented by
// marking the reference used.
type MultisigOutputUsage struct {
	TxIndex TransactionIndex
	OutSlot uint16
	IsUsed  bool
}

// OutputIndex maps each amount to the ordered list of outputs of that
// amount across the whole main chain. Insertion order is the global index;
// indices are immutable while the owning block stays on main and revoked
// from the tail when it is disconnected.
type OutputIndex struct {
	outputs  map[uint64][]OutputRef
	multisig map[uint64][]MultisigOutputUsage
}

// NewOutputIndex returns an empty index.
func NewOutputIndex() *OutputIndex {
	return &OutputIndex{
		outputs:  make(map[uint64][]OutputRef),
		multisig: make(map[uint64][]MultisigOutputUsage),
	}
}

// Append records a new output of the given amount and returns its global
// index.
func (oi *OutputIndex) Append(amount uint64, ref OutputRef) uint32 {
	list := oi.outputs[amount]
	idx := uint32(len(list))
	oi.outputs[amount] = append(list, ref)
	return idx
}

// Count returns how many outputs of the amount exist.
func (oi *OutputIndex) Count(amount uint64) uint32 {
	return uint32(len(oi.outputs[amount]))
}

// Get returns the output at (amount, globalIndex).
func (oi *OutputIndex) Get(amount uint64, globalIndex uint32) (OutputRef, bool) {
	list := oi.outputs[amount]
	if uint64(globalIndex) >= uint64(len(list)) {
		return OutputRef{}, false
	}
	return list[globalIndex], true
}

// PopTail revokes the newest output of the amount. The revoked output must
// be the one being disconnected; global indices never shift.
func (oi *OutputIndex) PopTail(amount uint64) bool {
	list := oi.outputs[amount]
	if len(list) == 0 {
		return false
	}
	list = list[:len(list)-1]
	if len(list) == 0 {
		delete(oi.outputs, amount)
	} else {
		oi.outputs[amount] = list
	}
	return true
}

// AppendMultisig records a new multisignature output and returns its
// global index within the multisig table of the amount.
func (oi *OutputIndex) AppendMultisig(amount uint64, usage MultisigOutputUsage) uint32 {
	list := oi.multisig[amount]
	idx := uint32(len(list))
	oi.multisig[amount] = append(list, usage)
	return idx
}

// GetMultisig returns the multisignature output at (amount, globalIndex).
func (oi *OutputIndex) GetMultisig(amount uint64, globalIndex uint32) (*MultisigOutputUsage, bool) {
	list := oi.multisig[amount]
	if uint64(globalIndex) >= uint64(len(list)) {
		return nil, false
	}
	return &list[globalIndex], true
}

// MultisigCount returns how many multisignature outputs of the amount
// exist.
func (oi *OutputIndex) MultisigCount(amount uint64) uint32 {
	return uint32(len(oi.multisig[amount]))
}

// PopMultisigTail revokes the newest multisignature output of the amount.
func (oi *OutputIndex) PopMultisigTail(amount uint64) bool {
	list := oi.multisig[amount]
	if len(list) == 0 {
		return false
	}
	list = list[:len(list)-1]
	if len(list) == 0 {
		delete(oi.multisig, amount)
	} else {
		oi.multisig[amount] = list
	}
	return true
}

// PaymentIDIndex is the optional secondary index from payment id to the
// transactions carrying it.
type PaymentIDIndex struct {
	enabled bool
	txs     map[types.Hash][]types.Hash
}

// NewPaymentIDIndex returns an index; a disabled index ignores all writes.
func NewPaymentIDIndex(enabled bool) *PaymentIDIndex {
	return &PaymentIDIndex{
		enabled: enabled,
		txs:     make(map[types.Hash][]types.Hash),
	}
}

// Enabled reports whether the index is maintained.
func (pi *PaymentIDIndex) Enabled() bool { return pi.enabled }

// Add records a transaction under its payment id.
func (pi *PaymentIDIndex) Add(paymentID, txHash types.Hash) {
	if !pi.enabled {
		return
	}
	pi.txs[paymentID] = append(pi.txs[paymentID], txHash)
}

// Remove forgets a transaction under its payment id.
func (pi *PaymentIDIndex) Remove(paymentID, txHash types.Hash) {
	if !pi.enabled {
		return
	}
	list := pi.txs[paymentID]
	for i, h := range list {
		if h == txHash {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(pi.txs, paymentID)
	} else {
		pi.txs[paymentID] = list
	}
}

// Get returns the transactions carrying the payment id.
func (pi *PaymentIDIndex) Get(paymentID types.Hash) []types.Hash {
	list := pi.txs[paymentID]
	out := make([]types.Hash, len(list))
	copy(out, list)
	return out
}
