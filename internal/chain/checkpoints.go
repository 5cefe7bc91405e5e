package chain

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mevanet/mevanet-chain/internal/log"
	"github.com/mevanet/mevanet-chain/pkg/types"
)

// Checkpoints is an ordered list of (height, hash) pins. A candidate block
// at a pinned height must match the pin, and no reorg may cross below the
// top pin.
type Checkpoints struct {
	points map[uint64]types.Hash
	top    uint64
}

// NewCheckpoints returns an empty checkpoint list.
func NewCheckpoints() *Checkpoints {
	return &Checkpoints{points: make(map[uint64]types.Hash)}
}

// Add pins a hash at a height.
func (c *Checkpoints) Add(height uint64, hash types.Hash) {
	c.points[height] = hash
	if height > c.top {
		c.top = height
	}
}

// TopHeight returns the highest pinned height (0 when empty).
func (c *Checkpoints) TopHeight() uint64 {
	return c.top
}

// IsInZone reports whether a height lies at or below the top pin.
func (c *Checkpoints) IsInZone(height uint64) bool {
	return len(c.points) > 0 && height <= c.top
}

// Check verifies a candidate block hash against the pin at its height, if
// any.
func (c *Checkpoints) Check(height uint64, hash types.Hash) error {
	want, pinned := c.points[height]
	if !pinned {
		return nil
	}
	if want != hash {
		return fmt.Errorf("block %s at height %d conflicts with checkpoint %s", hash, height, want)
	}
	return nil
}

// IsAlternativeBlockAllowed reports whether an alternative block at
// altHeight may exist given the current chain height: it must not dip into
// the checkpointed range.
func (c *Checkpoints) IsAlternativeBlockAllowed(chainHeight, altHeight uint64) bool {
	if altHeight == 0 {
		return false
	}
	if len(c.points) == 0 {
		return true
	}
	return altHeight > c.top
}

// Heights returns the pinned heights in ascending order.
func (c *Checkpoints) Heights() []uint64 {
	out := make([]uint64, 0, len(c.points))
	for h := range c.points {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LoadFromFile merges pins from a CSV file of "height,hash" lines. Blank
// lines and #-comments are skipped.
func (c *Checkpoints) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoints: %w", err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, ",")
		if len(parts) != 2 {
			return fmt.Errorf("checkpoints line %d: want height,hash", line)
		}
		height, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("checkpoints line %d: height: %w", line, err)
		}
		hash, err := types.HexToHash(strings.TrimSpace(parts[1]))
		if err != nil {
			return fmt.Errorf("checkpoints line %d: hash: %w", line, err)
		}
		c.Add(height, hash)
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read checkpoints: %w", err)
	}

	log.Chain.Info().Int("count", loaded).Str("file", path).Msg("loaded checkpoints")
	return nil
}
