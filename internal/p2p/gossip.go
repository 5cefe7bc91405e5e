package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/mevanet/mevanet-chain/internal/log"
)

// BroadcastBlock publishes a block announcement.
func (n *Node) BroadcastBlock(msg NotifyNewBlock) error {
	if n.topicBlocks == nil {
		return fmt.Errorf("p2p node not started")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal block notify: %w", err)
	}
	return n.topicBlocks.Publish(n.ctx, data)
}

// BroadcastTransactions publishes a transaction announcement.
func (n *Node) BroadcastTransactions(msg NotifyNewTransactions) error {
	if n.topicTx == nil {
		return fmt.Errorf("p2p node not started")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal tx notify: %w", err)
	}
	return n.topicTx.Publish(n.ctx, data)
}

// receiveBlocks drains the block topic into the core.
func (n *Node) receiveBlocks() {
	defer n.wg.Done()
	for {
		msg, err := n.subBlocks.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		var notify NotifyNewBlock
		if err := json.Unmarshal(msg.Data, &notify); err != nil {
			log.P2P.Debug().Str("peer", msg.ReceivedFrom.String()).Err(err).Msg("malformed block notify")
			continue
		}

		if err := n.core.HandleNewBlock(notify.Block); err != nil {
			log.P2P.Debug().
				Str("peer", msg.ReceivedFrom.String()).
				Err(err).
				Msg("gossiped block rejected")
		}
	}
}

// receiveTransactions drains the transaction topic into the core.
func (n *Node) receiveTransactions() {
	defer n.wg.Done()
	for {
		msg, err := n.subTx.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		var notify NotifyNewTransactions
		if err := json.Unmarshal(msg.Data, &notify); err != nil {
			log.P2P.Debug().Str("peer", msg.ReceivedFrom.String()).Err(err).Msg("malformed tx notify")
			continue
		}

		for _, err := range n.core.HandleNewTransactions(notify.Transactions) {
			if err != nil {
				log.P2P.Debug().Str("peer", msg.ReceivedFrom.String()).Err(err).Msg("gossiped tx rejected")
			}
		}
	}
}
