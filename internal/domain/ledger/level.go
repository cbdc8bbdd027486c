package ledger

import (
	"sort"

	"github.com/alem-hub/gamification/internal/domain/shared"
)

// DefaultLevelThresholds is the XP required to reach levels 1..10.
var DefaultLevelThresholds = []int64{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 11000}

// DefaultLevelStep is the XP per level past the last threshold.
const DefaultLevelStep int64 = 3000

// LevelCurve maps cumulative XP to a level. It is monotonic: more XP never
// yields a lower level.
type LevelCurve struct {
	thresholds []int64
	step       int64
}

// NewLevelCurve validates thresholds (must start at 0, strictly ascending).
// A step <= 0 caps the level at len(thresholds).
func NewLevelCurve(thresholds []int64, step int64) (LevelCurve, error) {
	if len(thresholds) == 0 || thresholds[0] != 0 {
		return LevelCurve{}, shared.ErrInvalidCurve
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return LevelCurve{}, shared.ErrInvalidCurve
		}
	}
	t := make([]int64, len(thresholds))
	copy(t, thresholds)
	return LevelCurve{thresholds: t, step: step}, nil
}

// DefaultLevelCurve returns the curve built from the package defaults.
func DefaultLevelCurve() LevelCurve {
	c, _ := NewLevelCurve(DefaultLevelThresholds, DefaultLevelStep)
	return c
}

// IsZero reports whether the curve is the unconfigured zero value.
func (c LevelCurve) IsZero() bool {
	return len(c.thresholds) == 0
}

// LevelFor returns the 1-based level for the given cumulative XP.
// Negative XP (possible after penalties) stays at level 1.
func (c LevelCurve) LevelFor(xp int64) int {
	if len(c.thresholds) == 0 {
		return 1
	}
	if xp <= 0 {
		return 1
	}

	// number of thresholds <= xp
	n := sort.Search(len(c.thresholds), func(i int) bool { return c.thresholds[i] > xp })
	if n < len(c.thresholds) || c.step <= 0 {
		return n
	}

	last := c.thresholds[len(c.thresholds)-1]
	return n + int((xp-last)/c.step)
}

// XPForLevel returns the XP required to reach level (inverse of LevelFor).
func (c LevelCurve) XPForLevel(level int) int64 {
	if level <= 1 || len(c.thresholds) == 0 {
		return 0
	}
	if level <= len(c.thresholds) {
		return c.thresholds[level-1]
	}
	if c.step <= 0 {
		return c.thresholds[len(c.thresholds)-1]
	}
	return c.thresholds[len(c.thresholds)-1] + int64(level-len(c.thresholds))*c.step
}
