// Package p2p is the thin network adapter around the core: gossip topics
// for blocks and transactions, and request/response streams for chain
// negotiation and object fetch. The core never imports this package; the
// adapter drives the engine through its public validating entry points.
package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"github.com/multiformats/go-multiaddr"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Node is the libp2p-backed network adapter.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	dht    *dht.IpfsDHT
	cfg    config.P2PConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	topicTx     *pubsub.Topic
	topicBlocks *pubsub.Topic
	subTx       *pubsub.Subscription
	subBlocks   *pubsub.Subscription

	core       Core
	rendezvous string
}

// Core is the engine surface the adapter consumes: the narrow validating
// entry points plus the read-only queries needed to serve peers.
type Core interface {
	HandleNewBlock(entry BlockCompleteEntry) error
	HandleNewTransactions(blobs [][]byte) []error
	BuildSparseChain() []types.Hash
	FindSupplement(remoteSparse []types.Hash, maxCount int) (startHeight uint64, ids []types.Hash, totalHeight uint64, err error)
	ServeObjects(req RequestGetObjects) ResponseGetObjects
}

// NewNode constructs the adapter around a running engine.
func NewNode(cfg config.P2PConfig, testnet bool, core Core) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	listen, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", cfg.ListenAddr, cfg.Port))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen address: %w", err)
	}

	h, err := libp2p.New(libp2p.ListenAddrs(listen))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	rendezvous := dhtRendezvousMainnet
	if testnet {
		rendezvous = dhtRendezvousTestnet
	}

	n := &Node{
		host:       h,
		pubsub:     ps,
		cfg:        cfg,
		ctx:        ctx,
		cancel:     cancel,
		core:       core,
		rendezvous: rendezvous,
	}
	return n, nil
}

// Start joins the gossip topics, registers the stream handlers and kicks
// off discovery.
func (n *Node) Start() error {
	var err error
	if n.topicTx, err = n.pubsub.Join(TopicTransactions); err != nil {
		return fmt.Errorf("join tx topic: %w", err)
	}
	if n.topicBlocks, err = n.pubsub.Join(TopicBlocks); err != nil {
		return fmt.Errorf("join block topic: %w", err)
	}
	if n.subTx, err = n.topicTx.Subscribe(); err != nil {
		return fmt.Errorf("subscribe tx topic: %w", err)
	}
	if n.subBlocks, err = n.topicBlocks.Subscribe(); err != nil {
		return fmt.Errorf("subscribe block topic: %w", err)
	}

	n.host.SetStreamHandler(ChainProtocol, n.handleChainStream)
	n.host.SetStreamHandler(ObjectsProtocol, n.handleObjectsStream)

	n.wg.Add(2)
	go n.receiveTransactions()
	go n.receiveBlocks()

	if err := n.startDiscovery(); err != nil {
		return err
	}

	log.P2P.Info().
		Str("peer_id", n.host.ID().String()).
		Int("port", n.cfg.Port).
		Msg("p2p adapter started")
	return nil
}

// startDiscovery bootstraps the kademlia DHT from the configured seed
// nodes and advertises the network rendezvous.
func (n *Node) startDiscovery() error {
	kad, err := dht.New(n.ctx, n.host)
	if err != nil {
		return fmt.Errorf("create dht: %w", err)
	}
	n.dht = kad

	if err := kad.Bootstrap(n.ctx); err != nil {
		return fmt.Errorf("bootstrap dht: %w", err)
	}

	dialList := n.cfg.SeedNodes
	if len(n.cfg.ExclusiveNodes) > 0 {
		dialList = n.cfg.ExclusiveNodes
	} else {
		dialList = append(append([]string{}, n.cfg.PriorityNodes...), dialList...)
	}

	for _, addr := range dialList {
		info, err := peerInfoFromString(addr)
		if err != nil {
			log.P2P.Warn().Str("addr", addr).Err(err).Msg("bad seed address")
			continue
		}
		go func(pi peer.AddrInfo) {
			ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
			defer cancel()
			if err := n.host.Connect(ctx, pi); err != nil {
				log.P2P.Debug().Str("peer", pi.ID.String()).Err(err).Msg("seed dial failed")
			}
		}(info)
	}

	// Exclusive mode disables open discovery entirely.
	if len(n.cfg.ExclusiveNodes) > 0 {
		return nil
	}

	routing := drouting.NewRoutingDiscovery(kad)
	dutil.Advertise(n.ctx, routing, n.rendezvous)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-n.ctx.Done():
				return
			case <-ticker.C:
				if len(n.host.Network().Peers()) >= n.cfg.MaxPeers {
					continue
				}
				peers, err := routing.FindPeers(n.ctx, n.rendezvous)
				if err != nil {
					continue
				}
				for pi := range peers {
					if pi.ID == n.host.ID() || len(pi.Addrs) == 0 {
						continue
					}
					ctx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
					_ = n.host.Connect(ctx, pi)
					cancel()
				}
			}
		}
	}()
	return nil
}

func peerInfoFromString(addr string) (peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return peer.AddrInfo{}, err
	}
	return *info, nil
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	return len(n.host.Network().Peers())
}

// Close shuts the adapter down.
func (n *Node) Close() error {
	n.cancel()
	if n.subTx != nil {
		n.subTx.Cancel()
	}
	if n.subBlocks != nil {
		n.subBlocks.Cancel()
	}
	n.wg.Wait()
	if n.dht != nil {
		n.dht.Close()
	}
	return n.host.Close()
}
