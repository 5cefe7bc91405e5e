package currency

import (
	"math/big"
	"sort"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/pkg/block"
)

// NextDifficulty computes the required difficulty for the block at the
// given height, selected by its major version. timestamps and
// cumulativeDifficulties are the trailing window in ascending height order;
// the caller supplies at least as many entries as the widest algorithm
// needs, or fewer near the start of the chain.
func (c *Currency) NextDifficulty(height uint64, majorVersion uint8,
	timestamps []uint64, cumulativeDifficulties []uint64) uint64 {

	switch {
	case majorVersion >= block.MajorVersion5:
		return c.nextDifficultyV5(height, timestamps, cumulativeDifficulties)
	case majorVersion == block.MajorVersion4:
		return c.nextDifficultyV4(height, timestamps, cumulativeDifficulties)
	case majorVersion == block.MajorVersion3:
		return c.nextDifficultyV3(timestamps, cumulativeDifficulties)
	case majorVersion == block.MajorVersion2:
		return c.nextDifficultyV2(timestamps, cumulativeDifficulties)
	default:
		return c.nextDifficultyV1(timestamps, cumulativeDifficulties)
	}
}

// applyMinimum enforces the mainnet difficulty floor used by every
// algorithm from v2 on.
func (c *Currency) applyMinimum(d uint64) uint64 {
	if !c.testnet && d < config.MinimumDifficulty {
		return config.MinimumDifficulty
	}
	return d
}

// tail returns the last n entries of both windows.
func tail(timestamps, cumDiffs []uint64, n int) ([]uint64, []uint64) {
	if len(timestamps) > n {
		timestamps = timestamps[len(timestamps)-n:]
		cumDiffs = cumDiffs[len(cumDiffs)-n:]
	}
	return timestamps, cumDiffs
}

// nextDifficultyV1 is the Bytecoin classic algorithm: sort the window,
// drop outliers from both ends, divide the covered work by the time span.
// The caller supplies the trailing window plus DifficultyLag entries; v1
// drops the newest lag blocks and retargets over the older remainder, so
// the difficulty reacts one lag behind the tip.
func (c *Currency) nextDifficultyV1(timestamps, cumDiffs []uint64) uint64 {
	window := config.DifficultyWindow
	if len(timestamps) > window {
		timestamps = timestamps[:window]
		cumDiffs = cumDiffs[:window]
	}

	length := len(timestamps)
	if length <= 1 {
		return 1
	}

	sorted := make([]uint64, length)
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	cut := config.DifficultyCut
	var cutBegin, cutEnd int
	if length <= window-2*cut {
		cutBegin, cutEnd = 0, length
	} else {
		cutBegin = (length - (window - 2*cut) + 1) / 2
		cutEnd = cutBegin + (window - 2*cut)
	}

	timeSpan := sorted[cutEnd-1] - sorted[cutBegin]
	if timeSpan == 0 {
		timeSpan = 1
	}
	totalWork := cumDiffs[cutEnd-1] - cumDiffs[cutBegin]

	product := new(big.Int).SetUint64(totalWork)
	product.Mul(product, new(big.Int).SetUint64(c.difficultyTarget))
	product.Add(product, new(big.Int).SetUint64(timeSpan-1))
	product.Div(product, new(big.Int).SetUint64(timeSpan))
	if !product.IsUint64() {
		return 0
	}
	return product.Uint64()
}

// nextDifficultyV2 is zawy v1.0: total work over the full window time span,
// with the mainnet floor.
func (c *Currency) nextDifficultyV2(timestamps, cumDiffs []uint64) uint64 {
	timestamps, cumDiffs = tail(timestamps, cumDiffs, config.DifficultyWindowV2)

	length := len(timestamps)
	if length <= 1 {
		return 1
	}

	sorted := make([]uint64, length)
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	timeSpan := sorted[length-1] - sorted[0]
	if timeSpan == 0 {
		timeSpan = 1
	}
	totalWork := cumDiffs[length-1] - cumDiffs[0]

	product := new(big.Int).SetUint64(totalWork)
	product.Mul(product, new(big.Int).SetUint64(c.difficultyTarget))
	product.Div(product, new(big.Int).SetUint64(timeSpan))
	if !product.IsUint64() {
		return 0
	}
	return c.applyMinimum(product.Uint64())
}

// nextDifficultyV3 is LWMA-1: linearly weighted solve times with clamped
// outliers over a harmonic mean of the per-block difficulties.
func (c *Currency) nextDifficultyV3(timestamps, cumDiffs []uint64) uint64 {
	t := int64(c.difficultyTarget)
	n := config.DifficultyWindowV3

	if len(timestamps) < 4 {
		return 1
	}
	if len(timestamps) < n+1 {
		n = len(timestamps) - 1
	} else {
		timestamps, cumDiffs = tail(timestamps, cumDiffs, n+1)
	}

	const adjust = 0.998
	k := float64(n) * float64(n+1) / 2.0

	var lwma, sumInverseD float64
	for i := 1; i <= n; i++ {
		solveTime := int64(timestamps[i]) - int64(timestamps[i-1])
		if solveTime > 7*t {
			solveTime = 7 * t
		}
		if solveTime < -6*t {
			solveTime = -6 * t
		}
		difficulty := cumDiffs[i] - cumDiffs[i-1]
		lwma += float64(solveTime*int64(i)) / k
		sumInverseD += 1 / float64(difficulty)
	}

	if int64(lwma+0.5) < t/20 {
		lwma = float64(t) / 20
	}

	harmonicMeanD := float64(n) / sumInverseD * adjust
	next := harmonicMeanD * float64(t) / lwma

	return c.applyMinimum(uint64(next))
}

// nextDifficultyV4 is LWMA-2, switching to LWMA-3 (non-decreasing
// timestamps) once height reaches the mid-v4 soft upgrade.
func (c *Currency) nextDifficultyV4(height uint64, timestamps, cumDiffs []uint64) uint64 {
	t := int64(c.difficultyTarget)
	n := config.DifficultyWindowV4

	if len(timestamps) < n+1 {
		// Young chain: fall back to the LWMA-1 rule over what exists.
		return c.nextDifficultyV3(timestamps, cumDiffs)
	}
	timestamps, cumDiffs = tail(timestamps, cumDiffs, n+1)

	var l, sum3ST int64
	prevMaxTS := int64(timestamps[0])

	for i := 1; i <= n; i++ {
		var st int64
		if height < c.upgradeHeightV4_1 {
			// LWMA-2: symmetric clamp.
			st = int64(timestamps[i]) - int64(timestamps[i-1])
			if st > 6*t {
				st = 6 * t
			}
			if st < -6*t {
				st = -6 * t
			}
		} else {
			// LWMA-3: enforce non-decreasing timestamps.
			var maxTS int64
			if int64(timestamps[i]) > prevMaxTS {
				maxTS = int64(timestamps[i])
			} else {
				maxTS = prevMaxTS + 1
			}
			st = maxTS - prevMaxTS
			if st > 6*t {
				st = 6 * t
			}
			prevMaxTS = maxTS
		}
		l += st * int64(i)
		if i > n-3 {
			sum3ST += st
		}
	}

	if l <= 0 {
		l = 1
	}

	work := cumDiffs[n] - cumDiffs[0]
	nextD := new(big.Int).SetUint64(work)
	nextD.Mul(nextD, new(big.Int).SetInt64(t))
	nextD.Mul(nextD, new(big.Int).SetInt64(int64(n+1)))
	nextD.Div(nextD, new(big.Int).SetInt64(2*l))
	nextD.Mul(nextD, big.NewInt(99))
	nextD.Div(nextD, big.NewInt(100))

	prevD := cumDiffs[n] - cumDiffs[n-1]
	lo := prevD * 67 / 100
	hi := prevD * 150 / 100

	var next uint64
	if !nextD.IsUint64() {
		next = hi
	} else {
		next = nextD.Uint64()
	}
	if next < lo {
		next = lo
	}
	if next > hi {
		next = hi
	}
	if sum3ST < (8*t)/10 {
		next = prevD * 110 / 100
	}

	return c.applyMinimum(next)
}

// nextDifficultyV5 resets the difficulty on the first block of the v5
// epoch, then runs LWMA-1 with enforced monotonic timestamps and rounds
// the result to its leading significant digits.
func (c *Currency) nextDifficultyV5(height uint64, timestamps, cumDiffs []uint64) uint64 {
	// The rules below speak in terms of the top block index.
	height--

	if height == c.upgradeHeightV5 {
		if height == 0 {
			return 1
		}
		return cumDiffs[0] / height / config.ResetWorkFactorV5
	}

	count := uint64(config.DifficultyWindowV5)
	if height > c.upgradeHeightV5 && height < c.upgradeHeightV5+count {
		// Trim the window to blocks mined since the epoch reset.
		offset := count - (height - c.upgradeHeightV5)
		if offset < uint64(len(timestamps)) {
			timestamps = timestamps[offset:]
			cumDiffs = cumDiffs[offset:]
		}
	}

	if len(timestamps) < 2 {
		return 1
	}

	t := c.difficultyTarget
	n := uint64(config.DifficultyWindowV5)
	if max := uint64(len(cumDiffs) - 1); n > max {
		n = max
	}
	timestamps, cumDiffs = tail(timestamps, cumDiffs, int(n)+1)

	var l uint64
	previous := timestamps[0] - t
	for i := uint64(1); i <= n; i++ {
		var this uint64
		if timestamps[i] > previous {
			this = timestamps[i]
		} else {
			this = previous + 1
		}
		st := this - previous
		if st > 6*t {
			st = 6 * t
		}
		l += i * st
		previous = this
	}
	if floor := n * n * t / 20; l < floor {
		l = floor
	}

	avgD := (cumDiffs[n] - cumDiffs[0]) / n

	var next uint64
	if avgD > 2_000_000*n*n*t {
		// Prevent overflow for very large difficulties.
		next = (avgD / (200 * l)) * (n * (n + 1) * t * 99)
	} else {
		next = (avgD * n * (n + 1) * t * 99) / (200 * l)
	}

	// Zero the insignificant digits for readability.
	for i := uint64(1_000_000_000); i > 1; i /= 10 {
		if next > i*100 {
			next = ((next + i/2) / i) * i
			break
		}
	}

	return c.applyMinimum(next)
}
