package p2p

import (
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// BlockCompleteEntry is a block blob with the blobs of its transactions,
// as carried by block announcements and object responses.
type BlockCompleteEntry struct {
	Block        []byte   `json:"block"`
	Transactions [][]byte `json:"transactions,omitempty"`
}

// NotifyNewBlock announces a freshly mined or relayed block.
type NotifyNewBlock struct {
	Block              BlockCompleteEntry `json:"block"`
	CurrentChainHeight uint64             `json:"current_chain_height"`
}

// NotifyNewTransactions announces relayed transactions.
type NotifyNewTransactions struct {
	Transactions [][]byte `json:"transactions"`
}

// RequestChain negotiates a common ancestor: the sender's sparse chain,
// newest first, genesis last.
type RequestChain struct {
	SparseChain []types.Hash `json:"sparse_chain"`
}

// ResponseChainEntry answers RequestChain with a block id range starting
// at the fork point.
type ResponseChainEntry struct {
	StartHeight uint64       `json:"start_height"`
	TotalHeight uint64       `json:"total_height"`
	BlockIDs    []types.Hash `json:"block_ids"`
}

// RequestGetObjects asks for block and transaction bodies by id.
type RequestGetObjects struct {
	Blocks       []types.Hash `json:"blocks,omitempty"`
	Transactions []types.Hash `json:"transactions,omitempty"`
}

// ResponseGetObjects returns the requested bodies and the ids the peer
// could not serve.
type ResponseGetObjects struct {
	Blocks        []BlockCompleteEntry `json:"blocks,omitempty"`
	Transactions  [][]byte             `json:"transactions,omitempty"`
	MissedIDs     []types.Hash         `json:"missed_ids,omitempty"`
	CurrentHeight uint64               `json:"current_height"`
}
