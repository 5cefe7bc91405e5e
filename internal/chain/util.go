package chain

import (
	"sort"

	"github.com/mevanet/mevanet-chain/config"
)

// Engine-local views of shared consensus constants.
const (
	unlockTimeIsHeightThreshold = config.UnlockTimeIsHeightThreshold
	lockedTxAllowedDeltaBlocks  = config.LockedTxAllowedDeltaBlocks
	lockedTxAllowedDeltaSeconds = config.LockedTxAllowedDeltaSeconds

	// difficultyWindowSlack is the largest trailing window any retarget
	// algorithm can consume.
	difficultyWindowSlack = config.DifficultyWindow + config.DifficultyLag
)

func sortUint64(values []uint64) {
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
}
