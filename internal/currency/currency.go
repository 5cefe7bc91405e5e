// Package currency implements the consensus money rules: emission, block
// reward with size penalty, fee floors, fusion transactions, difficulty
// retargeting and the upgrade schedule.
package currency

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// ErrBlockTooBig rejects blocks above twice the median size.
var ErrBlockTooBig = errors.New("block cumulative size exceeds twice the median")

// Currency holds the consensus parameters of one network and answers every
// money-rule question the engine asks.
type Currency struct {
	testnet bool

	moneySupply         uint64
	emissionSpeedFactor uint
	genesisBlockGrant   uint64
	coinVersion         int

	difficultyTarget uint64
	blocksPerDay     uint64

	rewardBlocksWindow       uint64
	fullRewardZone           uint64
	fullRewardZoneV1         uint64
	fullRewardZoneV2         uint64
	coinbaseBlobReservedSize uint64
	maxTxSizeLimit           uint64

	maxBlockSizeInitial       uint64
	maxBlockGrowthNumerator   uint64
	maxBlockGrowthDenominator uint64

	minedMoneyUnlockWindow uint64
	spendableAge           uint64

	minMixin int
	maxMixin int

	minimumFeeV1  uint64
	minimumFeeV2  uint64
	minimumFeeV3  uint64
	dustThreshold uint64

	fusionTxMaxSize            uint64
	fusionTxMinInputCount      int
	fusionTxMinInOutCountRatio int

	upgradeHeightV2   uint64
	upgradeHeightV3   uint64
	upgradeHeightV3_1 uint64
	upgradeHeightV4   uint64
	upgradeHeightV4_1 uint64
	upgradeHeightV4_3 uint64
	upgradeHeightV5   uint64
	upgradeHeightV6   uint64

	upgradeVotingThreshold int
	upgradeVotingWindow    uint64
	upgradeWindow          uint64

	timestampCheckWindow   int
	timestampCheckWindowV1 int
	futureTimeLimit        uint64
	futureTimeLimitV1      uint64

	mempoolTxLiveTime             uint64
	mempoolTxFromAltBlockLiveTime uint64
	forgetTxPeriods               uint64

	addressPrefix uint64

	genesisBlock *block.Block
	genesisHash  types.Hash
}

// New builds the currency for the given network. The genesis block is
// generated deterministically during construction.
func New(testnet bool) (*Currency, error) {
	c := &Currency{
		testnet: testnet,

		moneySupply:         config.MoneySupply,
		emissionSpeedFactor: config.EmissionSpeedFactor,
		genesisBlockGrant:   config.GenesisBlockGrant,
		coinVersion:         config.CoinVersion,

		difficultyTarget: config.DifficultyTarget,
		blocksPerDay:     config.ExpectedBlocksPerDay,

		rewardBlocksWindow:       config.RewardBlocksWindow,
		fullRewardZone:           config.BlockGrantedFullRewardZone,
		fullRewardZoneV1:         config.BlockGrantedFullRewardZoneV1,
		fullRewardZoneV2:         config.BlockGrantedFullRewardZoneV2,
		coinbaseBlobReservedSize: config.CoinbaseBlobReservedSize,
		maxTxSizeLimit:           config.MaxTransactionSizeLimit,

		maxBlockSizeInitial:       config.MaxBlockSizeInitial,
		maxBlockGrowthNumerator:   config.MaxBlockSizeGrowthSpeedNumerator,
		maxBlockGrowthDenominator: config.MaxBlockSizeGrowthSpeedDenominator,

		minedMoneyUnlockWindow: config.MinedMoneyUnlockWindow,
		spendableAge:           config.TransactionSpendableAge,

		minMixin: config.MinTxMixinSize,
		maxMixin: config.MaxTxMixinSize,

		minimumFeeV1:  config.MinimumFeeV1,
		minimumFeeV2:  config.MinimumFeeV2,
		minimumFeeV3:  config.MinimumFeeV3,
		dustThreshold: config.DefaultDustThreshold,

		fusionTxMaxSize:            config.FusionTxMaxSize,
		fusionTxMinInputCount:      config.FusionTxMinInputCount,
		fusionTxMinInOutCountRatio: config.FusionTxMinInOutCountRatio,

		upgradeHeightV2:   config.UpgradeHeightV2,
		upgradeHeightV3:   config.UpgradeHeightV3,
		upgradeHeightV3_1: config.UpgradeHeightV3_1,
		upgradeHeightV4:   config.UpgradeHeightV4,
		upgradeHeightV4_1: config.UpgradeHeightV4_1,
		upgradeHeightV4_3: config.UpgradeHeightV4_3,
		upgradeHeightV5:   config.UpgradeHeightV5,
		upgradeHeightV6:   config.UpgradeHeightV6,

		upgradeVotingThreshold: config.UpgradeVotingThreshold,
		upgradeVotingWindow:    config.UpgradeVotingWindow,
		upgradeWindow:          config.UpgradeWindow,

		timestampCheckWindow:   config.TimestampCheckWindow,
		timestampCheckWindowV1: config.TimestampCheckWindowV1,
		futureTimeLimit:        config.BlockFutureTimeLimit,
		futureTimeLimitV1:      config.BlockFutureTimeLimitV1,

		mempoolTxLiveTime:             config.MempoolTxLiveTime,
		mempoolTxFromAltBlockLiveTime: config.MempoolTxFromAltBlockLiveTime,
		forgetTxPeriods:               config.ForgetTxPeriods,

		addressPrefix: config.AddressBase58Prefix,
	}

	if testnet {
		c.upgradeHeightV2 = config.TestnetUpgradeHeightV2
		c.upgradeHeightV3 = config.TestnetUpgradeHeightV3
		c.upgradeHeightV4 = config.TestnetUpgradeHeightV4
		c.upgradeHeightV5 = config.TestnetUpgradeHeightV5
		c.upgradeHeightV6 = config.TestnetUpgradeHeightV6
		c.upgradeHeightV3_1 = c.upgradeHeightV3
		c.upgradeHeightV4_1 = c.upgradeHeightV4
		c.upgradeHeightV4_3 = c.upgradeHeightV4
		c.addressPrefix = config.TestnetAddressBase58Prefix
	}

	if err := c.generateGenesisBlock(); err != nil {
		return nil, fmt.Errorf("generate genesis: %w", err)
	}
	return c, nil
}

// IsTestnet reports whether this currency uses the testnet profile.
func (c *Currency) IsTestnet() bool { return c.testnet }

// DifficultyTarget returns the target block interval in seconds.
func (c *Currency) DifficultyTarget() uint64 { return c.difficultyTarget }

// MinedMoneyUnlockWindow returns the coinbase maturity in blocks.
func (c *Currency) MinedMoneyUnlockWindow() uint64 { return c.minedMoneyUnlockWindow }

// SpendableAge returns the minimum age of a referenced output in blocks.
func (c *Currency) SpendableAge() uint64 { return c.spendableAge }

// MinMixin returns the smallest accepted ring size minus one.
func (c *Currency) MinMixin() int { return c.minMixin }

// MaxMixin returns the largest accepted ring size minus one.
func (c *Currency) MaxMixin() int { return c.maxMixin }

// AddressPrefix returns the base58 address tag for this network.
func (c *Currency) AddressPrefix() uint64 { return c.addressPrefix }

// GenesisBlock returns the hard-coded genesis block.
func (c *Currency) GenesisBlock() *block.Block { return c.genesisBlock }

// GenesisHash returns the hash of the genesis block.
func (c *Currency) GenesisHash() types.Hash { return c.genesisHash }

// MaxTxSizeLimit returns the per-transaction size bound.
func (c *Currency) MaxTxSizeLimit() uint64 { return c.maxTxSizeLimit }

// RewardBlocksWindow returns the size-median window length.
func (c *Currency) RewardBlocksWindow() uint64 { return c.rewardBlocksWindow }

// MempoolTxLiveTime returns the plain pool entry lifetime in seconds.
func (c *Currency) MempoolTxLiveTime() uint64 { return c.mempoolTxLiveTime }

// MempoolTxFromAltBlockLiveTime returns the kept-by-block lifetime.
func (c *Currency) MempoolTxFromAltBlockLiveTime() uint64 { return c.mempoolTxFromAltBlockLiveTime }

// ForgetTxPeriods scales the live time into the recently-deleted window.
func (c *Currency) ForgetTxPeriods() uint64 { return c.forgetTxPeriods }

// FullRewardZoneByVersion returns the penalty-free block size for the given
// block major version.
func (c *Currency) FullRewardZoneByVersion(majorVersion uint8) uint64 {
	switch {
	case majorVersion >= block.MajorVersion3:
		return c.fullRewardZone
	case majorVersion == block.MajorVersion2:
		return c.fullRewardZoneV2
	default:
		return c.fullRewardZoneV1
	}
}

// MaxBlockCumulativeSize returns the absolute block size cap at a height.
// The cap grows linearly so throughput can rise without a fork.
func (c *Currency) MaxBlockCumulativeSize(height uint64) uint64 {
	return c.maxBlockSizeInitial + height*c.maxBlockGrowthNumerator/c.maxBlockGrowthDenominator
}

// CalculateReward returns the unpenalized base reward for a block minted
// when alreadyGeneratedCoins are in circulation: the emission curve with a
// Friedman two-percent tail.
func (c *Currency) CalculateReward(alreadyGeneratedCoins uint64) uint64 {
	var baseRewardInitial uint64
	if alreadyGeneratedCoins < c.moneySupply {
		baseRewardInitial = (c.moneySupply - alreadyGeneratedCoins) >> c.emissionSpeedFactor
	} else {
		baseRewardInitial = config.TailEmissionReward
	}

	// Two percent of circulation per year, integer arithmetic throughout.
	blocksPerYear := c.blocksPerDay * 365
	twoPercent := alreadyGeneratedCoins / 100 * 2
	baseRewardTail := twoPercent / blocksPerYear

	if baseRewardTail > baseRewardInitial {
		return baseRewardTail
	}
	return baseRewardInitial
}

// GetBlockReward computes the penalized block reward.
// medianSize is the median of the trailing reward window; currentBlockSize
// is the cumulative size of the block being evaluated; fee is the total fee
// of its transactions. It returns the coinbase total and the emission change
// (new coins minted, which can fall below the base reward when fees are
// penalized).
func (c *Currency) GetBlockReward(majorVersion uint8, height uint64, medianSize, currentBlockSize uint64,
	alreadyGeneratedCoins, fee uint64) (reward uint64, emissionChange int64, err error) {

	// Hard-coded grant at height 1, preserved bitwise for chain
	// compatibility.
	if height == 1 {
		return c.genesisBlockGrant, int64(c.genesisBlockGrant), nil
	}

	baseReward := c.CalculateReward(alreadyGeneratedCoins)

	zone := c.FullRewardZoneByVersion(majorVersion)
	if medianSize < zone {
		medianSize = zone
	}
	if currentBlockSize > 2*medianSize {
		return 0, 0, fmt.Errorf("%w: size %d, median %d", ErrBlockTooBig, currentBlockSize, medianSize)
	}

	penalizedBaseReward := GetPenalizedAmount(baseReward, medianSize, currentBlockSize)
	penalizedFee := fee
	if majorVersion >= block.MajorVersion2 {
		penalizedFee = GetPenalizedAmount(fee, medianSize, currentBlockSize)
	}
	if c.coinVersion == 1 {
		penalizedFee = GetPenalizedAmount(fee, medianSize, currentBlockSize)
	}

	emissionChange = int64(penalizedBaseReward) - int64(fee-penalizedFee)
	reward = penalizedBaseReward + penalizedFee
	return reward, emissionChange, nil
}

// GetPenalizedAmount scales amount by (2*median - size) * size / median^2
// using 128-bit intermediates. Amounts are untouched at or below the
// median; the caller must have rejected sizes above twice the median.
func GetPenalizedAmount(amount, medianSize, currentBlockSize uint64) uint64 {
	if amount == 0 {
		return 0
	}
	if currentBlockSize <= medianSize {
		return amount
	}

	multiplicand := new(big.Int).SetUint64(2*medianSize - currentBlockSize)
	multiplicand.Mul(multiplicand, new(big.Int).SetUint64(currentBlockSize))

	product := new(big.Int).SetUint64(amount)
	product.Mul(product, multiplicand)

	median := new(big.Int).SetUint64(medianSize)
	product.Div(product, median)
	product.Div(product, median)

	return product.Uint64()
}

// MinimalFee returns the fee floor at a height. The bands follow the
// upgrade schedule.
func (c *Currency) MinimalFee(height uint64) uint64 {
	switch {
	case height <= c.upgradeHeightV3_1:
		return c.minimumFeeV1
	case height <= c.upgradeHeightV4:
		return c.minimumFeeV2
	default:
		return c.minimumFeeV3
	}
}

// FeePerByte returns the extra fee charged for oversized tx extra fields:
// every byte past 100 costs a hundredth of the minimal fee.
func (c *Currency) FeePerByte(txExtraSize uint64, minFee uint64) uint64 {
	if txExtraSize <= 100 {
		return 0
	}
	return minFee / 100 * (txExtraSize - 100)
}

// DustThreshold returns the dust threshold for output decomposition.
func (c *Currency) DustThreshold() uint64 { return c.dustThreshold }

// IsFusionTransaction reports whether a transaction with the given input
// and output amounts qualifies as a fusion transaction: enough inputs, a
// high input-to-output ratio, bounded size, and outputs that are exactly
// the decomposition of the input sum.
func (c *Currency) IsFusionTransaction(inputAmounts, outputAmounts []uint64, size uint64, height uint64) bool {
	if size > c.fusionTxMaxSize {
		return false
	}
	if len(inputAmounts) < c.fusionTxMinInputCount {
		return false
	}
	if len(inputAmounts) < len(outputAmounts)*c.fusionTxMinInOutCountRatio {
		return false
	}

	var inputTotal uint64
	for _, a := range inputAmounts {
		if height < c.upgradeHeightV4 && a < c.dustThreshold {
			return false
		}
		inputTotal += a
	}

	dust := uint64(0)
	if height < c.upgradeHeightV4 {
		dust = c.dustThreshold
	}
	var expected []uint64
	types.DecomposeAmount(inputTotal, dust,
		func(chunk uint64) { expected = append(expected, chunk) },
		func(d uint64) { expected = append(expected, d) })

	sorted := make([]uint64, len(outputAmounts))
	copy(sorted, outputAmounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sort.Slice(expected, func(i, j int) bool { return expected[i] < expected[j] })

	if len(sorted) != len(expected) {
		return false
	}
	for i := range sorted {
		if sorted[i] != expected[i] {
			return false
		}
	}
	return true
}

// TimestampCheckWindow returns the median window for the lower timestamp
// bound at the given height.
func (c *Currency) TimestampCheckWindow(height uint64) int {
	if height >= c.upgradeHeightV5 {
		return c.timestampCheckWindowV1
	}
	return c.timestampCheckWindow
}

// FutureTimeLimit returns the upper timestamp slack at the given height.
func (c *Currency) FutureTimeLimit(height uint64) uint64 {
	if height >= c.upgradeHeightV5 {
		return c.futureTimeLimitV1
	}
	return c.futureTimeLimit
}
