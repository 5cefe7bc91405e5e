package p2p

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/mevanet/mevanet-chain/internal/log"
)

const (
	streamTimeout = 30 * time.Second
	// maxChainEntryIDs caps a single chain-entry response.
	maxChainEntryIDs = 10_000
	// maxObjectsPerRequest caps a single object fetch.
	maxObjectsPerRequest = 100
)

// handleChainStream serves RequestChain with the supplement of the
// remote's sparse chain.
func (n *Node) handleChainStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(streamTimeout))

	var req RequestChain
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&req); err != nil {
		log.P2P.Debug().Err(err).Msg("malformed chain request")
		return
	}

	start, ids, total, err := n.core.FindSupplement(req.SparseChain, maxChainEntryIDs)
	if err != nil {
		log.P2P.Debug().Err(err).Msg("no supplement for peer")
		return
	}

	resp := ResponseChainEntry{StartHeight: start, TotalHeight: total, BlockIDs: ids}

	if err := json.NewEncoder(s).Encode(&resp); err != nil {
		log.P2P.Debug().Err(err).Msg("write chain response")
	}
}

// handleObjectsStream serves RequestGetObjects from the core.
func (n *Node) handleObjectsStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(streamTimeout))

	var req RequestGetObjects
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&req); err != nil {
		log.P2P.Debug().Err(err).Msg("malformed objects request")
		return
	}
	if len(req.Blocks)+len(req.Transactions) > maxObjectsPerRequest {
		log.P2P.Debug().Int("count", len(req.Blocks)+len(req.Transactions)).Msg("oversized objects request")
		return
	}

	resp := n.core.ServeObjects(req)
	if err := json.NewEncoder(s).Encode(&resp); err != nil {
		log.P2P.Debug().Err(err).Msg("write objects response")
	}
}

// RequestChainFrom negotiates a common ancestor with a peer.
func (n *Node) RequestChainFrom(ctx context.Context, p peer.ID) (*ResponseChainEntry, error) {
	sparse := n.core.BuildSparseChain()

	s, err := n.host.NewStream(ctx, p, ChainProtocol)
	if err != nil {
		return nil, fmt.Errorf("open chain stream: %w", err)
	}
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(streamTimeout))

	req := RequestChain{SparseChain: sparse}
	if err := json.NewEncoder(s).Encode(&req); err != nil {
		return nil, fmt.Errorf("write chain request: %w", err)
	}

	var resp ResponseChainEntry
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read chain response: %w", err)
	}
	if len(resp.BlockIDs) > maxChainEntryIDs {
		return nil, fmt.Errorf("oversized chain response: %d ids", len(resp.BlockIDs))
	}
	return &resp, nil
}

// RequestObjectsFrom fetches block and transaction bodies from a peer.
func (n *Node) RequestObjectsFrom(ctx context.Context, p peer.ID, req RequestGetObjects) (*ResponseGetObjects, error) {
	s, err := n.host.NewStream(ctx, p, ObjectsProtocol)
	if err != nil {
		return nil, fmt.Errorf("open objects stream: %w", err)
	}
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(streamTimeout))

	if err := json.NewEncoder(s).Encode(&req); err != nil {
		return nil, fmt.Errorf("write objects request: %w", err)
	}

	var resp ResponseGetObjects
	if err := json.NewDecoder(bufio.NewReader(s)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read objects response: %w", err)
	}
	return &resp, nil
}

// SyncFrom pulls the chain from a peer until local height catches up.
func (n *Node) SyncFrom(ctx context.Context, p peer.ID) error {
	for {
		entry, err := n.RequestChainFrom(ctx, p)
		if err != nil {
			return err
		}
		if len(entry.BlockIDs) <= 1 {
			return nil // Tip reached.
		}

		// Fetch in batches, skipping the fork-point block we share.
		ids := entry.BlockIDs[1:]
		for len(ids) > 0 {
			batch := ids
			if len(batch) > maxObjectsPerRequest {
				batch = batch[:maxObjectsPerRequest]
			}
			ids = ids[len(batch):]

			req := RequestGetObjects{Blocks: batch}
			resp, err := n.RequestObjectsFrom(ctx, p, req)
			if err != nil {
				return err
			}
			if len(resp.Blocks) == 0 {
				return fmt.Errorf("peer returned no blocks")
			}
			for _, entry := range resp.Blocks {
				if err := n.core.HandleNewBlock(entry); err != nil {
					return fmt.Errorf("sync block rejected: %w", err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
