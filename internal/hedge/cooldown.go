package hedge

import "time"

// EvaluateCooldown gates order churn right after a fill. A zero
// lastFill means no fill is known and nothing is suppressed. Inside the
// window, exposure dropping below the minimum threshold still cancels,
// and exposure worsening past the zone that produced the standing order
// lifts the suppression entirely. Everything else holds.
func EvaluateCooldown(lastFill, now time.Time, window time.Duration, previous Zone, hasPrevious bool, current Zone) CooldownStatus {
	if lastFill.IsZero() || now.Sub(lastFill) >= window {
		return CooldownNormal
	}
	if current == ZoneBelow {
		return CooldownCancelOnly
	}
	if hasPrevious && current > previous {
		return CooldownNormal
	}
	return CooldownSkip
}
