package currency

import (
	"errors"
	"testing"

	"github.com/mevanet/mevanet-chain/config"
	"github.com/mevanet/mevanet-chain/pkg/block"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

func mustCurrency(t *testing.T, testnet bool) *Currency {
	t.Helper()
	c, err := New(testnet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCalculateReward_InitialCurve(t *testing.T) {
	c := mustCurrency(t, false)

	want := config.MoneySupply >> config.EmissionSpeedFactor
	if got := c.CalculateReward(0); got != want {
		t.Errorf("reward at zero supply = %d, want %d", got, want)
	}

	// The reward shrinks as coins are generated.
	half := config.MoneySupply / 2
	if got := c.CalculateReward(half); got >= want {
		t.Errorf("reward at half supply %d not below initial %d", got, want)
	}
}

func TestCalculateReward_FriedmanTail(t *testing.T) {
	c := mustCurrency(t, false)

	// At the asymptote the tail rule takes over: two percent of the
	// circulating supply per year.
	supply := config.MoneySupply
	blocksPerYear := uint64(config.ExpectedBlocksPerDay) * 365
	wantTail := supply / 100 * 2 / blocksPerYear

	got := c.CalculateReward(supply)
	if got != wantTail {
		t.Errorf("tail reward = %d, want %d", got, wantTail)
	}
}

func TestGetBlockReward_HeightOneGrant(t *testing.T) {
	c := mustCurrency(t, false)

	reward, emission, err := c.GetBlockReward(block.MajorVersion1, 1, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("GetBlockReward: %v", err)
	}
	if want := uint64(1_000_000) * config.Coin; reward != want || emission != int64(want) {
		t.Errorf("height 1 grant = %d/%d, want %d", reward, emission, want)
	}
}

func TestGetPenalizedAmount(t *testing.T) {
	// median 1000, size 1500: multiplier (2*1000-1500)*1500/1000^2 = 0.75.
	if got := GetPenalizedAmount(1000, 1000, 1500); got != 750 {
		t.Errorf("penalized = %d, want 750", got)
	}
	// At or below the median the amount is untouched.
	if got := GetPenalizedAmount(777, 1000, 1000); got != 777 {
		t.Errorf("penalized at median = %d, want 777", got)
	}
	if got := GetPenalizedAmount(777, 1000, 10); got != 777 {
		t.Errorf("penalized below median = %d, want 777", got)
	}
	if got := GetPenalizedAmount(0, 1000, 1500); got != 0 {
		t.Errorf("penalized zero = %d, want 0", got)
	}
	// Large amounts exercise the 128-bit intermediates.
	amount := uint64(1) << 62
	got := GetPenalizedAmount(amount, 1000, 1500)
	if want := amount / 4 * 3; got != want {
		t.Errorf("large penalized = %d, want %d", got, want)
	}
}

func TestGetBlockReward_RejectsOversizedBlock(t *testing.T) {
	c := mustCurrency(t, false)

	zone := uint64(config.BlockGrantedFullRewardZoneV1)
	_, _, err := c.GetBlockReward(block.MajorVersion1, 2, 0, 2*zone+1, 0, 0)
	if !errors.Is(err, ErrBlockTooBig) {
		t.Errorf("got %v, want ErrBlockTooBig", err)
	}
}

func TestGetBlockReward_PenaltyAgainstZoneFloor(t *testing.T) {
	c := mustCurrency(t, false)

	// Median below the zone is floored at the zone, so a block of 1.5x
	// the zone earns the 0.75 multiplier on the base reward.
	zone := uint64(config.BlockGrantedFullRewardZoneV1)
	baseReward := c.CalculateReward(0)

	reward, _, err := c.GetBlockReward(block.MajorVersion1, 2, 0, zone*3/2, 0, 0)
	if err != nil {
		t.Fatalf("GetBlockReward: %v", err)
	}
	if want := GetPenalizedAmount(baseReward, zone, zone*3/2); reward != want {
		t.Errorf("penalized reward = %d, want %d", reward, want)
	}
	if reward >= baseReward {
		t.Errorf("oversized block was not penalized: %d >= %d", reward, baseReward)
	}
}

func TestGetBlockReward_FeesAlwaysPenalized(t *testing.T) {
	c := mustCurrency(t, false)

	// Coin version 1 penalizes fees even on v1 blocks.
	zone := uint64(config.BlockGrantedFullRewardZoneV1)
	fee := uint64(1_000_000)

	reward, _, err := c.GetBlockReward(block.MajorVersion1, 2, 0, zone*3/2, 0, fee)
	if err != nil {
		t.Fatalf("GetBlockReward: %v", err)
	}
	baseReward := c.CalculateReward(0)
	want := GetPenalizedAmount(baseReward, zone, zone*3/2) + GetPenalizedAmount(fee, zone, zone*3/2)
	if reward != want {
		t.Errorf("reward with fee = %d, want %d", reward, want)
	}
}

func TestMinimalFee_Bands(t *testing.T) {
	c := mustCurrency(t, false)

	if got := c.MinimalFee(1); got != config.MinimumFeeV1 {
		t.Errorf("band 1 fee = %d, want %d", got, config.MinimumFeeV1)
	}
	if got := c.MinimalFee(config.UpgradeHeightV3_1 + 1); got != config.MinimumFeeV2 {
		t.Errorf("band 2 fee = %d, want %d", got, config.MinimumFeeV2)
	}
	if got := c.MinimalFee(config.UpgradeHeightV4 + 1); got != config.MinimumFeeV3 {
		t.Errorf("band 3 fee = %d, want %d", got, config.MinimumFeeV3)
	}
}

func TestFeePerByte(t *testing.T) {
	c := mustCurrency(t, false)
	minFee := uint64(100_000)

	if got := c.FeePerByte(100, minFee); got != 0 {
		t.Errorf("100-byte extra surcharge = %d, want 0", got)
	}
	if got := c.FeePerByte(150, minFee); got != minFee/100*50 {
		t.Errorf("150-byte extra surcharge = %d, want %d", got, minFee/100*50)
	}
}

func TestIsFusionTransaction(t *testing.T) {
	c := mustCurrency(t, false)
	height := config.UpgradeHeightV4 + 1

	// Twelve inputs of one million consolidate into their exact
	// decomposition.
	inputs := make([]uint64, 12)
	var total uint64
	for i := range inputs {
		inputs[i] = 1_000_000
		total += inputs[i]
	}
	outputs := types.DecomposeAmountIntoDigits(total)

	if !c.IsFusionTransaction(inputs, outputs, 1000, height) {
		t.Error("valid fusion transaction rejected")
	}

	// Too few inputs.
	if c.IsFusionTransaction(inputs[:11], types.DecomposeAmountIntoDigits(11_000_000), 1000, height) {
		t.Error("fusion with 11 inputs accepted")
	}

	// Wrong output decomposition.
	bad := append([]uint64{}, outputs...)
	bad[0] = total
	if c.IsFusionTransaction(inputs, bad, 1000, height) {
		t.Error("fusion with wrong outputs accepted")
	}

	// Oversized.
	if c.IsFusionTransaction(inputs, outputs, config.FusionTxMaxSize+1, height) {
		t.Error("oversized fusion accepted")
	}

	// Ratio: too many outputs for the input count.
	many := make([]uint64, 4)
	for i := range many {
		many[i] = 1
	}
	if c.IsFusionTransaction(inputs, append(outputs, many...), 1000, height) {
		t.Error("fusion with bad in/out ratio accepted")
	}
}

func TestGenesisBlock_Deterministic(t *testing.T) {
	a := mustCurrency(t, false)
	b := mustCurrency(t, false)
	if a.GenesisHash() != b.GenesisHash() {
		t.Error("mainnet genesis hash is not deterministic")
	}

	tn := mustCurrency(t, true)
	if a.GenesisHash() == tn.GenesisHash() {
		t.Error("testnet genesis must differ from mainnet")
	}

	gen := a.GenesisBlock()
	if gen.Height() != 0 {
		t.Errorf("genesis height = %d", gen.Height())
	}
	if gen.MajorVersion != block.MajorVersion1 {
		t.Errorf("genesis major version = %d", gen.MajorVersion)
	}
	if gen.Nonce != config.GenesisNonce {
		t.Errorf("genesis nonce = %d, want %d", gen.Nonce, config.GenesisNonce)
	}
}

func TestConstructMinerTx_RewardDecomposition(t *testing.T) {
	c := mustCurrency(t, false)
	addr := testAddress(t)

	tx, _, err := c.ConstructMinerTx(block.MajorVersion1, 2, 0, 0, 0, 0, addr, nil, 10, types.Hash{})
	if err != nil {
		t.Fatalf("ConstructMinerTx: %v", err)
	}

	if !tx.IsCoinbase() {
		t.Fatal("miner tx is not a coinbase")
	}
	if tx.UnlockTime != 2+config.MinedMoneyUnlockWindow {
		t.Errorf("unlock time = %d, want %d", tx.UnlockTime, 2+config.MinedMoneyUnlockWindow)
	}

	total, err := tx.OutputsAmount()
	if err != nil {
		t.Fatal(err)
	}
	if want := c.CalculateReward(0); total != want {
		t.Errorf("coinbase outputs sum to %d, want %d", total, want)
	}
	if len(tx.Outputs) > 10 {
		t.Errorf("coinbase has %d outputs, cap is 10", len(tx.Outputs))
	}
}

func TestConstructMinerTx_DeterministicPerSeed(t *testing.T) {
	c := mustCurrency(t, false)
	addr := testAddress(t)
	seed := types.Hash{0x55}

	a, _, err := c.ConstructMinerTx(block.MajorVersion1, 5, 0, 0, 0, 0, addr, nil, 10, seed)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := c.ConstructMinerTx(block.MajorVersion1, 5, 0, 0, 0, 0, addr, nil, 10, seed)
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash() != b.Hash() {
		t.Error("same seed and height produced different coinbases")
	}
}

func TestTimestampRules_VersionSwitch(t *testing.T) {
	c := mustCurrency(t, false)

	if got := c.TimestampCheckWindow(1); got != config.TimestampCheckWindow {
		t.Errorf("early window = %d", got)
	}
	if got := c.TimestampCheckWindow(config.UpgradeHeightV5); got != config.TimestampCheckWindowV1 {
		t.Errorf("post-v5 window = %d", got)
	}
	if got := c.FutureTimeLimit(1); got != config.BlockFutureTimeLimit {
		t.Errorf("early ftl = %d", got)
	}
	if got := c.FutureTimeLimit(config.UpgradeHeightV5); got != config.BlockFutureTimeLimitV1 {
		t.Errorf("post-v5 ftl = %d", got)
	}
}
