package mempool

import (
	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// OnBlockAdded evicts every transaction the new block included, then every
// remaining entry whose key images intersect the block's spent set — an
// invisible double spend that just lost the race.
func (p *Pool) OnBlockAdded(spentImages []types.KeyImage, included []types.Hash) {
	var fired []func(types.Hash)
	var firedHashes []types.Hash

	p.mu.Lock()

	for _, hash := range included {
		if cb := p.removeLocked(hash, true); cb != nil {
			fired = append(fired, cb)
			firedHashes = append(firedHashes, hash)
		}
	}

	for _, image := range spentImages {
		owners := p.spentImages[image]
		if len(owners) == 0 {
			continue
		}
		losers := make([]types.Hash, 0, len(owners))
		for hash := range owners {
			losers = append(losers, hash)
		}
		for _, hash := range losers {
			if cb := p.removeLocked(hash, true); cb != nil {
				fired = append(fired, cb)
				firedHashes = append(firedHashes, hash)
				log.Mempool.Debug().Str("tx", hash.String()).Msg("evicted double spend after block")
			}
		}
	}

	p.mu.Unlock()

	for i, cb := range fired {
		cb(firedHashes[i])
	}
}

// Tick drives time-based maintenance from an external clock: expired
// entries are dropped and the recently-deleted memory is pruned. The pool
// owns no timer.
func (p *Pool) Tick(now uint64) {
	liveTime := p.currency.MempoolTxLiveTime()
	keptLiveTime := p.currency.MempoolTxFromAltBlockLiveTime()
	forgetAfter := p.currency.ForgetTxPeriods() * liveTime

	var fired []func(types.Hash)
	var firedHashes []types.Hash

	p.mu.Lock()

	for hash, e := range p.txs {
		ttl := liveTime
		if e.KeptByBlock {
			ttl = keptLiveTime
		}
		if now > e.ReceiveTime && now-e.ReceiveTime > ttl {
			if cb := p.removeLocked(hash, true); cb != nil {
				fired = append(fired, cb)
				firedHashes = append(firedHashes, hash)
			}
			log.Mempool.Info().Str("tx", hash.String()).Bool("kept_by_block", e.KeptByBlock).Msg("transaction expired")
		}
	}

	for hash, deletedAt := range p.recentlyDeleted {
		if now > deletedAt && now-deletedAt > forgetAfter {
			delete(p.recentlyDeleted, hash)
		}
	}

	p.mu.Unlock()

	for i, cb := range fired {
		cb(firedHashes[i])
	}
}
