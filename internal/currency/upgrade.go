package currency

import (
	"math"

	"github.com/mevanet/mevanet-chain/pkg/block"
)

// UpgradeHeightUnset marks an upgrade that activates by voting rather than
// at a fixed height.
const UpgradeHeightUnset = uint64(math.MaxUint64)

// UpgradeHeight returns the activation height of a block major version, or
// UpgradeHeightUnset when the version has no scheduled height.
func (c *Currency) UpgradeHeight(majorVersion uint8) uint64 {
	switch majorVersion {
	case block.MajorVersion2:
		return c.upgradeHeightV2
	case block.MajorVersion3:
		return c.upgradeHeightV3
	case block.MajorVersion4:
		return c.upgradeHeightV4
	case block.MajorVersion5:
		return c.upgradeHeightV5
	case block.MajorVersion6:
		return c.upgradeHeightV6
	default:
		return UpgradeHeightUnset
	}
}

// BlockMajorVersionForHeight returns the major version required of a block
// at the given height under the hard upgrade schedule.
func (c *Currency) BlockMajorVersionForHeight(height uint64) uint8 {
	switch {
	case height >= c.upgradeHeightV6:
		return block.MajorVersion6
	case height >= c.upgradeHeightV5:
		return block.MajorVersion5
	case height >= c.upgradeHeightV4:
		return block.MajorVersion4
	case height >= c.upgradeHeightV3:
		return block.MajorVersion3
	case height >= c.upgradeHeightV2:
		return block.MajorVersion2
	default:
		return block.MajorVersion1
	}
}

// UpgradeDetector tracks upgrade voting for one target major version. Ahead
// of the scheduled activation height, blocks vote with their minor version;
// once a supermajority of the sliding window votes, the upgrade activates
// UpgradeWindow blocks later. Activation never reverts except by reorg,
// which unwinds votes through PopVote.
type UpgradeDetector struct {
	currency      *Currency
	targetVersion uint8

	// window holds one bit per recent block: whether it voted.
	window []bool
	votes  int

	votingCompleteHeight uint64
	hasVotingComplete    bool
}

// NewUpgradeDetector returns a detector for the given target version.
func NewUpgradeDetector(c *Currency, targetVersion uint8) *UpgradeDetector {
	return &UpgradeDetector{
		currency:      c,
		targetVersion: targetVersion,
	}
}

// TargetVersion returns the version being voted on.
func (u *UpgradeDetector) TargetVersion() uint8 { return u.targetVersion }

// ActivationHeight returns the height at which the target version becomes
// mandatory and true, or false while undecided. A scheduled hard height
// always wins over voting.
func (u *UpgradeDetector) ActivationHeight() (uint64, bool) {
	if h := u.currency.UpgradeHeight(u.targetVersion); h != UpgradeHeightUnset {
		return h, true
	}
	if u.hasVotingComplete {
		return u.votingCompleteHeight + u.currency.upgradeWindow, true
	}
	return 0, false
}

// PushVote records the minor-version vote of the block appended at height.
func (u *UpgradeDetector) PushVote(minorVersion uint8, height uint64) {
	voted := minorVersion >= u.targetVersion
	u.window = append(u.window, voted)
	if voted {
		u.votes++
	}
	if over := len(u.window) - int(u.currency.upgradeVotingWindow); over > 0 {
		for _, v := range u.window[:over] {
			if v {
				u.votes--
			}
		}
		u.window = u.window[over:]
	}

	if u.hasVotingComplete {
		return
	}
	if len(u.window) == int(u.currency.upgradeVotingWindow) &&
		u.votes*100 >= u.currency.upgradeVotingThreshold*len(u.window) {
		u.votingCompleteHeight = height
		u.hasVotingComplete = true
	}
}

// PopVote unwinds the most recent vote during a reorg. Votes pushed out of
// the sliding window are gone; a deep rollback therefore re-runs voting,
// which matches the restart-from-disk behavior.
func (u *UpgradeDetector) PopVote(height uint64) {
	if len(u.window) == 0 {
		return
	}
	last := u.window[len(u.window)-1]
	u.window = u.window[:len(u.window)-1]
	if last {
		u.votes--
	}
	if u.hasVotingComplete && height <= u.votingCompleteHeight {
		u.hasVotingComplete = false
		u.votingCompleteHeight = 0
	}
}
