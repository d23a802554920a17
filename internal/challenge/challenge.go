// Package challenge splits a monthly savings contribution into daily targets.
//
// The split is pseudo-random but reproducible: the same (year, month) always
// yields the same targets, with no state persisted between runs.
package challenge

import (
	"math"
	"time"
)

const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
	lcgModMask    = 0x7fffffff
)

// LCG is the linear congruential generator behind the daily targets:
//
//	s = ToInt32(s*1103515245 + 12345) & 0x7fffffff
//	next = s / 0x7fffffff
//
// The product is computed in float64 and loses precision once it passes
// 2^53, exactly as the mobile app's JavaScript does, so both sides derive
// the same targets. It must not be replaced by math/rand; targets have to
// stay stable across releases.
type LCG struct {
	state int64
}

// NewLCG seeds a generator
func NewLCG(seed int64) *LCG {
	return &LCG{state: seed}
}

// Seed returns the seed used for a calendar month
func Seed(year, month int) int64 {
	return int64(year*100 + month)
}

// Next advances the generator and returns a value in [0, 1]
func (g *LCG) Next() float64 {
	// The inner conversion keeps the multiply and add from being fused
	v := float64(float64(g.state)*lcgMultiplier) + lcgIncrement
	v = math.Mod(math.Trunc(v), 1<<32)
	g.state = int64(uint32(v)) & lcgModMask
	return float64(g.state) / lcgModMask
}

// DaysIn returns the number of days in the month
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Targets returns one savings target per day of the month. Every day but the
// last gets a random share of what remains; the last day gets the remainder.
func Targets(monthlyGoal float64, year, month int) []float64 {
	days := DaysIn(year, month)
	rng := NewLCG(Seed(year, month))

	targets := make([]float64, 0, days)
	remaining := monthlyGoal
	for d := 0; d < days-1; d++ {
		left := float64(days - d - 1)
		hi := remaining - left
		lo := math.Max(0, remaining-left*monthlyGoal)
		span := math.Max(0, hi-lo)
		target := roundCents(lo + rng.Next()*span)
		targets = append(targets, target)
		remaining -= target
	}
	targets = append(targets, roundCents(remaining))
	return targets
}

// Today returns the target for the day of now
func Today(monthlyGoal float64, now time.Time) float64 {
	targets := Targets(monthlyGoal, now.Year(), int(now.Month()))
	idx := now.Day() - 1
	if idx < 0 || idx >= len(targets) {
		return monthlyGoal / float64(DaysIn(now.Year(), int(now.Month())))
	}
	return targets[idx]
}

func roundCents(v float64) float64 {
	// half up
	return math.Floor(v*100+0.5) / 100
}
