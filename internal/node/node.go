// Package node wires the core together: currency, storage, engine,
// mempool and the network adapter.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/internal/chain"
	"github.com/mevanet/mevanet-chain/internal/currency"
	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/internal/mempool"
	"github.com/mevanet/mevanet-chain/internal/p2p"
	"github.com/mevanet/mevanet-chain/internal/storage"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// poolTickInterval drives mempool TTL maintenance.
const poolTickInterval = 30 * time.Second

// Node hosts the core and its adapters.
type Node struct {
	cfg      *config.Config
	currency *currency.Currency
	db       storage.DB
	chain    *chain.Blockchain
	pool     *mempool.Pool
	network  *p2p.Node
}

// New constructs a node from configuration. The returned node owns the
// database until Close.
func New(cfg *config.Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cur, err := currency.New(cfg.IsTestnet())
	if err != nil {
		return nil, fmt.Errorf("currency: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	db, err := storage.NewBadger(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return nil, err
	}

	checkpoints := chain.NewCheckpoints()
	if cfg.CheckpointsFile != "" {
		if err := checkpoints.LoadFromFile(cfg.CheckpointsFile); err != nil {
			db.Close()
			return nil, err
		}
	}

	var hasher crypto.PowHasher = crypto.SlowHasher{}
	if cfg.IsTestnet() {
		hasher = crypto.FastHasher{}
	}

	bc, err := chain.New(chain.Options{
		Currency:       cur,
		Store:          chain.NewStore(db),
		PowHasher:      hasher,
		Checkpoints:    checkpoints,
		AllowDeepReorg: cfg.AllowDeepReorg,
		NoBlobs:        cfg.NoBlobs,
		IndicesEnabled: cfg.BlockchainIndicesEnabled,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("chain: %w", err)
	}

	pool := mempool.New(cur, bc, cfg.BlockchainIndicesEnabled)
	pool.TransactionAdded = bc.NotifyTransactionAdded
	pool.TransactionRemoved = bc.NotifyTransactionRemoved
	bc.SetPool(pool)

	n := &Node{
		cfg:      cfg,
		currency: cur,
		db:       db,
		chain:    bc,
		pool:     pool,
	}

	if cfg.P2P.Enabled {
		network, err := p2p.NewNode(cfg.P2P, cfg.IsTestnet(), n)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("p2p: %w", err)
		}
		n.network = network
	}

	return n, nil
}

// Chain exposes the engine for embedding hosts.
func (n *Node) Chain() *chain.Blockchain { return n.chain }

// Pool exposes the mempool for embedding hosts.
func (n *Node) Pool() *mempool.Pool { return n.pool }

// Run starts the adapters and blocks until the context is cancelled.
func (n *Node) Run(ctx context.Context) error {
	if n.network != nil {
		if err := n.network.Start(); err != nil {
			return fmt.Errorf("start p2p: %w", err)
		}
	}

	height, tip := n.chain.Tail()
	log.Node.Info().Uint64("height", height).Str("tip", tip.String()).Msg("node running")

	ticker := time.NewTicker(poolTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.pool.Tick(uint64(time.Now().Unix()))
		}
	}
}

// Close releases everything the node owns.
func (n *Node) Close() error {
	n.chain.Shutdown()
	if n.network != nil {
		if err := n.network.Close(); err != nil {
			log.Node.Warn().Err(err).Msg("p2p close")
		}
	}
	return n.db.Close()
}

// HandleNewBlock implements p2p.Core: decode and submit a delivered block.
func (n *Node) HandleNewBlock(entry p2p.BlockCompleteEntry) error {
	blk, err := block.Deserialize(entry.Block)
	if err != nil {
		return fmt.Errorf("block blob: %w", err)
	}
	txs := make([]*transaction.Transaction, 0, len(entry.Transactions))
	for i, blob := range entry.Transactions {
		tx, err := transaction.Deserialize(blob)
		if err != nil {
			return fmt.Errorf("transaction blob %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	_, err = n.chain.AddBlock(blk, txs)
	return err
}

// HandleNewTransactions implements p2p.Core: decode and admit relayed
// transactions.
func (n *Node) HandleNewTransactions(blobs [][]byte) []error {
	errs := make([]error, len(blobs))
	for i, blob := range blobs {
		tx, err := transaction.Deserialize(blob)
		if err != nil {
			errs[i] = fmt.Errorf("transaction blob: %w", err)
			continue
		}
		errs[i] = n.chain.AddTransaction(tx)
	}
	return errs
}

// BuildSparseChain implements p2p.Core.
func (n *Node) BuildSparseChain() []types.Hash {
	return n.chain.BuildSparseChain()
}

// FindSupplement implements p2p.Core.
func (n *Node) FindSupplement(remoteSparse []types.Hash, maxCount int) (uint64, []types.Hash, uint64, error) {
	return n.chain.FindBlockchainSupplement(remoteSparse, maxCount)
}

// ServeObjects implements p2p.Core: resolve block and transaction bodies
// for a peer.
func (n *Node) ServeObjects(req p2p.RequestGetObjects) p2p.ResponseGetObjects {
	var resp p2p.ResponseGetObjects

	for _, id := range req.Blocks {
		height, ok := n.chain.GetBlockHeight(id)
		if !ok {
			resp.MissedIDs = append(resp.MissedIDs, id)
			continue
		}
		entries, err := n.chain.GetBlocks(height, 1)
		if err != nil || len(entries) != 1 {
			resp.MissedIDs = append(resp.MissedIDs, id)
			continue
		}
		entry := entries[0]
		blob, err := entry.Block.Serialize()
		if err != nil {
			resp.MissedIDs = append(resp.MissedIDs, id)
			continue
		}
		complete := p2p.BlockCompleteEntry{Block: blob}
		for t := 1; t < len(entry.Transactions); t++ {
			complete.Transactions = append(complete.Transactions, entry.Transactions[t].Tx.Serialize())
		}
		resp.Blocks = append(resp.Blocks, complete)
	}

	found, missed := n.chain.GetTransactions(req.Transactions)
	for _, tx := range found {
		resp.Transactions = append(resp.Transactions, tx.Serialize())
	}
	for _, id := range missed {
		if tx, ok := n.pool.Get(id); ok {
			resp.Transactions = append(resp.Transactions, tx.Serialize())
			continue
		}
		resp.MissedIDs = append(resp.MissedIDs, id)
	}

	tip, _ := n.chain.Tail()
	resp.CurrentHeight = tip
	return resp
}
