package rules

import (
	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

// Stress bounds and the mood thresholds layered on top of them.
const (
	StressMin         = 0
	StressMax         = 10
	DistressedAtLeast = 8
	CalmAtMost        = 2
)

// ApplyDamage subtracts amount from hp, flooring the result at zero.
// Negative amounts are treated as zero.
func ApplyDamage(hp, amount int) int {
	return max(0, hp-max(0, amount))
}

// ApplyHeal adds amount to hp. Healing is uncapped.
func ApplyHeal(hp, amount int) int {
	return hp + max(0, amount)
}

// AdjustQuantity returns the new holding after adding delta. Results at or
// below zero mean the holding is gone and are reported as zero.
func AdjustQuantity(current, delta int) int {
	return max(0, current+delta)
}

// ClampStress bounds a stress accumulator to [StressMin, StressMax].
func ClampStress(v int) int {
	return min(StressMax, max(StressMin, v))
}

// NextMood derives the mood label from stress, keeping prev inside the
// neutral band.
func NextMood(prev domain.Mood, stress int) domain.Mood {
	switch {
	case stress >= DistressedAtLeast:
		return domain.MoodDistressed
	case stress <= CalmAtMost:
		return domain.MoodCalm
	case prev == "":
		return domain.MoodNeutral
	default:
		return prev
	}
}

// AdvanceTime applies a set or add update to world time, never going
// below zero. Unknown modes leave the clock unchanged.
func AdvanceTime(current int, mode event.TimeMode, minutes int) int {
	switch mode {
	case event.TimeSet:
		return max(0, minutes)
	case event.TimeAdd:
		return max(0, current+minutes)
	default:
		return current
	}
}

// PushWorldEvent appends e and evicts the oldest entries beyond limit.
// A non-positive limit keeps nothing.
func PushWorldEvent(buf []domain.WorldEventEntry, e domain.WorldEventEntry, limit int) []domain.WorldEventEntry {
	out := append(append([]domain.WorldEventEntry{}, buf...), e)
	if limit <= 0 {
		return []domain.WorldEventEntry{}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// AddRelationship adds delta to a nullable score, treating nil as zero.
func AddRelationship(score *int, delta int) *int {
	v := delta
	if score != nil {
		v += *score
	}
	return &v
}

// AdjustCredits adds a signed delta, flooring at zero.
func AdjustCredits(credits, delta int) int {
	return max(0, credits+delta)
}
