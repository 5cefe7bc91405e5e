package p2p

import (
	"github.com/libp2p/go-libp2p/core/protocol"
)

// GossipSub topic names.
const (
	TopicTransactions = "/mevanet/tx/1.0.0"
	TopicBlocks       = "/mevanet/block/1.0.0"
)

// Stream protocol ids.
const (
	// ChainProtocol negotiates a common ancestor via sparse chains and
	// streams block id ranges.
	ChainProtocol = protocol.ID("/mevanet/chain/1.0.0")

	// ObjectsProtocol fetches block and transaction bodies by id.
	ObjectsProtocol = protocol.ID("/mevanet/objects/1.0.0")
)

// dhtRendezvous isolates peer discovery per network.
const (
	dhtRendezvousMainnet = "mevanet-mainnet-1"
	dhtRendezvousTestnet = "mevanet-testnet-1"
)
