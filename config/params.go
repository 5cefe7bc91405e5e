package config

// Consensus parameters. These are fixed per network; changing any of them
// forks the chain.

// Money and emission.
const (
	// Coin is one whole coin in atomic units (12 decimal places).
	Coin uint64 = 1_000_000_000_000

	// MoneySupply is the emission asymptote in atomic units.
	MoneySupply uint64 = 10_000_000_000_000_000_000

	// EmissionSpeedFactor is the right-shift applied to the remaining
	// supply to obtain the base reward.
	EmissionSpeedFactor = 18

	// TailEmissionReward is the flat-rate floor the Friedman tail rule
	// replaced; kept for chains resuming from old heights.
	TailEmissionReward uint64 = 1_000_000_000_000

	// GenesisBlockGrant is the hard-coded premine paid by the block at
	// height 1 regardless of the emission curve.
	GenesisBlockGrant uint64 = 1_000_000 * Coin

	// CoinVersion gates the legacy penalized-fee rule: version 1 chains
	// penalize fees at every block major version.
	CoinVersion = 1
)

// Block timing and difficulty.
const (
	// DifficultyTarget is the target seconds between blocks.
	DifficultyTarget = 240

	ExpectedBlocksPerDay = 24 * 60 * 60 / DifficultyTarget

	// DifficultyWindow is the v1 retarget window in blocks.
	DifficultyWindow = 720
	// DifficultyCut is the number of outliers dropped from each end of
	// the sorted v1 timestamp window.
	DifficultyCut = 60
	// DifficultyLag widens the window handed to the v1 retarget: the
	// engine supplies the trailing DifficultyWindow+DifficultyLag blocks
	// and v1 discards the newest DifficultyLag of them, so the retarget
	// runs one lag behind the tip.
	DifficultyLag = 15

	// DifficultyWindowV2 is the zawy v1.0 window.
	DifficultyWindowV2 = 17
	// DifficultyWindowV3 is the LWMA-1 window used by v3 blocks.
	DifficultyWindowV3 = 45
	// DifficultyWindowV4 is the LWMA-2/LWMA-3 window used by v4 blocks.
	DifficultyWindowV4 = 45
	// DifficultyWindowV5 is the LWMA-1 window used from v5 on.
	DifficultyWindowV5 = 45

	// MinimumDifficulty is the mainnet floor applied by every algorithm
	// from v2 on.
	MinimumDifficulty uint64 = 100_000

	// ResetWorkFactorV5 divides the epoch reset difficulty on the first
	// v5 block. Matches the deployed chain; do not generalize.
	ResetWorkFactorV5 = 1000
)

// Block size and reward.
const (
	MaxBlockNumber   = 500_000_000
	MaxBlockBlobSize = 500_000_000
	MaxTxSize        = 1_000_000

	// RewardBlocksWindow is the number of trailing blocks whose median
	// size defines the penalty-free zone.
	RewardBlocksWindow = 100

	// BlockGrantedFullRewardZone is the penalty-free block size for the
	// current block major version.
	BlockGrantedFullRewardZone = 100_000
	// BlockGrantedFullRewardZoneV2 applies to major version 2 blocks.
	BlockGrantedFullRewardZoneV2 = 20_000
	// BlockGrantedFullRewardZoneV1 applies to major version 1 blocks.
	BlockGrantedFullRewardZoneV1 = 10_000

	// CoinbaseBlobReservedSize is the space reserved in a block template
	// for the final coinbase transaction.
	CoinbaseBlobReservedSize = 600

	// MaxTransactionSizeLimit bounds a single non-coinbase transaction.
	MaxTransactionSizeLimit = 4 * BlockGrantedFullRewardZone / 3

	MaxBlockSizeInitial                = 1_000_000
	MaxBlockSizeGrowthSpeedNumerator   = 100 * 1024
	MaxBlockSizeGrowthSpeedDenominator = 365 * ExpectedBlocksPerDay
)

// Fees and dust.
const (
	MinimumFeeV1 uint64 = 100_000_000_000
	MinimumFeeV2 uint64 = 10_000_000_000
	MinimumFeeV3 uint64 = 1_000_000_000

	DefaultDustThreshold uint64 = 1_000_000
)

// Unlock windows and timestamps.
const (
	// MinedMoneyUnlockWindow is the coinbase maturity in blocks.
	MinedMoneyUnlockWindow = 10
	// TransactionSpendableAge is the minimum age of any referenced output.
	TransactionSpendableAge = 10

	// UnlockTimeIsHeightThreshold splits unlock_time semantics: below it
	// the value is a block height, at or above it a unix timestamp.
	UnlockTimeIsHeightThreshold = 500_000_000

	// LockedTxAllowedDeltaSeconds and LockedTxAllowedDeltaBlocks pad the
	// unlock comparison for in-flight transactions.
	LockedTxAllowedDeltaSeconds = DifficultyTarget * LockedTxAllowedDeltaBlocks
	LockedTxAllowedDeltaBlocks  = 1

	// TimestampCheckWindow is the median window for the lower timestamp
	// bound; TimestampCheckWindowV1 applies from the v5 upgrade height.
	TimestampCheckWindow   = 60
	TimestampCheckWindowV1 = 11

	// BlockFutureTimeLimit caps how far a block timestamp may run ahead
	// of local time; BlockFutureTimeLimitV1 applies from the v5 height.
	BlockFutureTimeLimit   = 60 * 60 * 2
	BlockFutureTimeLimitV1 = 60 * 6
)

// Ring sizes.
const (
	MinTxMixinSize = 2
	MaxTxMixinSize = 20
)

// Upgrade schedule (mainnet). UpgradeHeightV4_1 switches LWMA-2 to LWMA-3
// mid-v4 without a major version bump.
const (
	UpgradeHeightV2   uint64 = 60_000
	UpgradeHeightV3   uint64 = 216_000
	UpgradeHeightV3_1 uint64 = 266_000
	UpgradeHeightV4   uint64 = 300_000
	UpgradeHeightV4_1 uint64 = 320_000
	UpgradeHeightV4_3 uint64 = 350_000
	UpgradeHeightV5   uint64 = 400_000
	// UpgradeHeightV6 is unscheduled: v6 activates by supermajority vote.
	UpgradeHeightV6 uint64 = ^uint64(0)

	UpgradeVotingThreshold = 90
	UpgradeVotingWindow    = ExpectedBlocksPerDay
	UpgradeWindow          = ExpectedBlocksPerDay * 7
)

// Testnet upgrade schedule.
const (
	TestnetUpgradeHeightV2 uint64 = 10
	TestnetUpgradeHeightV3 uint64 = 60
	TestnetUpgradeHeightV4 uint64 = 70
	TestnetUpgradeHeightV5 uint64 = 80
	TestnetUpgradeHeightV6 uint64 = 100
)

// Mempool lifetimes in seconds.
const (
	MempoolTxLiveTime             = 60 * 60 * 24
	MempoolTxFromAltBlockLiveTime = 60 * 60 * 24 * 7
	// ForgetTxPeriods scales the live time into the window during which
	// a deleted transaction hash is remembered.
	ForgetTxPeriods = 7
)

// Fusion transaction rules.
const (
	FusionTxMaxSize            = BlockGrantedFullRewardZone * 30 / 100
	FusionTxMinInputCount      = 12
	FusionTxMinInOutCountRatio = 4
)

// Address encoding.
const (
	// AddressBase58Prefix tags mainnet addresses.
	AddressBase58Prefix uint64 = 1118
	// TestnetAddressBase58Prefix tags testnet addresses.
	TestnetAddressBase58Prefix uint64 = 2214
)

// Genesis constants.
const (
	GenesisNonce        = 70
	TestnetGenesisNonce = 71
	GenesisTimestamp    = 0
)
