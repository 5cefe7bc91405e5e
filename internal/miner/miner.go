// Package miner implements block template assembly and nonce search.
package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/internal/chain"
	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/internal/mempool"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/crypto"
	"github.com/mevanet/mevanet-chain/pkg/transaction"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Miner assembles block templates from the mempool and searches the nonce
// space. Found blocks are handed back to the engine through AddBlock; the
// miner never mutates chain state directly.
type Miner struct {
	chain     *chain.Blockchain
	pool      *mempool.Pool
	powHasher crypto.PowHasher
	address   types.AccountAddress
}

// New creates a miner paying the given address.
func New(bc *chain.Blockchain, pool *mempool.Pool, hasher crypto.PowHasher, address types.AccountAddress) *Miner {
	if hasher == nil {
		hasher = crypto.SlowHasher{}
	}
	return &Miner{
		chain:     bc,
		pool:      pool,
		powHasher: hasher,
		address:   address,
	}
}

// Template is an assembled block plus the difficulty it must meet.
type Template struct {
	Block      *block.Block
	Difficulty uint64
	Fee        uint64
}

// BuildTemplate assembles a candidate block on the current tip. The
// coinbase is constructed iteratively because its own size feeds the
// penalty computation.
func (m *Miner) BuildTemplate(extraNonce []byte) (*Template, error) {
	cur := m.chain.Currency()

	tipHeight, tipHash := m.chain.Tail()
	height := tipHeight + 1
	version := m.chain.NextBlockVersion()
	difficulty := m.chain.DifficultyForNextBlock()
	median := m.chain.MedianBlockSize()
	if zone := cur.FullRewardZoneByVersion(version); median < zone {
		median = zone
	}
	generatedCoins := m.chain.CoinsInCirculation()

	maxCumulative := cur.MaxBlockCumulativeSize(height)
	if limit := 2 * median; limit < maxCumulative {
		maxCumulative = limit
	}

	txs, txsSize, totalFee := m.pool.FillBlockTemplate(median, maxCumulative, config.CoinbaseBlobReservedSize)

	// Iterate the coinbase until its size converges: reward depends on
	// the cumulative size, which depends on the coinbase blob.
	cumulativeSize := txsSize + config.CoinbaseBlobReservedSize
	var base *block.Block
	for attempt := 0; attempt < 10; attempt++ {
		coinbase, _, err := cur.ConstructMinerTx(version, height, median, cumulativeSize,
			generatedCoins, totalFee, m.address, extraNonce, 10, tipHash)
		if err != nil {
			return nil, fmt.Errorf("construct coinbase: %w", err)
		}

		coinbaseSize := uint64(coinbase.BlobSize())
		if txsSize+coinbaseSize != cumulativeSize {
			cumulativeSize = txsSize + coinbaseSize
			continue
		}

		timestamp := uint64(time.Now().Unix())
		if tsMedian := m.chain.MedianTimestamp(); timestamp <= tsMedian {
			timestamp = tsMedian + 1
		}

		hashes := make([]types.Hash, len(txs))
		for i, tx := range txs {
			hashes[i] = tx.Hash()
		}

		base = &block.Block{
			MajorVersion:      version,
			MinorVersion:      block.MinorVersion0,
			Timestamp:         timestamp,
			PreviousBlockHash: tipHash,
			BaseTransaction:   *coinbase,
			TransactionHashes: hashes,
		}
		if version >= block.MajorVersion5 {
			base.Signature = &types.Signature{}
		}
		if base.NeedsParent() {
			base.Parent = stubParent(base, height)
		}
		break
	}
	if base == nil {
		return nil, fmt.Errorf("coinbase size did not converge")
	}

	return &Template{Block: base, Difficulty: difficulty, Fee: totalFee}, nil
}

// stubParent builds the minimal merge-mining container for a solo-mined
// v2/v3 block: the aux hash is the sole leaf of the parent merkle tree, so
// the branch is empty and the tag root is the aux hash itself.
func stubParent(b *block.Block, height uint64) *block.ParentBlock {
	aux := b.AuxHeaderHash()
	extra := transaction.AppendMergeMiningTagToExtra(nil, transaction.MergeMiningTag{
		Depth:      0,
		MerkleRoot: aux,
	})
	return &block.ParentBlock{
		MajorVersion: block.MajorVersion1,
		MinorVersion: block.MinorVersion0,
		BaseTransaction: transaction.Transaction{
			Prefix: transaction.Prefix{
				Version: transaction.CurrentVersion,
				Inputs:  []transaction.Input{&transaction.CoinbaseInput{BlockHeight: height}},
				Extra:   extra,
			},
			Signatures: [][]types.Signature{nil},
		},
	}
}

// Seal searches the nonce space until the template's proof of work meets
// its difficulty or the context is cancelled.
func (m *Miner) Seal(ctx context.Context, tpl *Template) error {
	for nonce := uint32(0); ; nonce++ {
		if nonce&0xFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		tpl.Block.Nonce = nonce
		blob, err := tpl.Block.HashingBlob()
		if err != nil {
			return err
		}
		if crypto.CheckHash(m.powHasher.PowHash(blob), tpl.Difficulty) {
			return nil
		}
		if nonce == ^uint32(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

// Run mines continuously until the context is cancelled, submitting each
// sealed block to the engine.
func (m *Miner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tpl, err := m.BuildTemplate(nil)
		if err != nil {
			return fmt.Errorf("build template: %w", err)
		}
		if err := m.Seal(ctx, tpl); err != nil {
			return err
		}

		hash, err := tpl.Block.Hash()
		if err != nil {
			return err
		}
		if _, err := m.chain.AddBlock(tpl.Block, nil); err != nil {
			log.Node.Warn().Str("hash", hash.String()).Err(err).Msg("mined block rejected")
			continue
		}
		log.Node.Info().
			Str("hash", hash.String()).
			Uint64("height", tpl.Block.Height()).
			Uint64("difficulty", tpl.Difficulty).
			Msg("mined block")
	}
}
