package hedge

import (
	"time"

	"lp-hedge-bot/internal/config"
)

// PreviousZone reconstructs the zone that produced the currently
// resting order. Nothing about the originating decision is persisted,
// so the order's size is run backwards through the sizing formula to
// recover the offset it was cut from, and that implied exposure is
// classified again. The oldest order wins when several rest at once.
//
// The inversion only holds while close_ratio_pct matches the value in
// effect when the order was placed; operators changing it mid-flight
// should expect one reconciliation cycle of zone misreads.
func PreviousZone(orders []OpenOrder, price float64, thresholds config.ThresholdConfig, closeRatioPct float64) (Zone, bool) {
	if len(orders) == 0 || closeRatioPct <= 0 {
		return 0, false
	}
	oldest := oldestOrder(orders)
	impliedOffset := oldest.Size / (closeRatioPct / 100)
	return Classify(impliedOffset*price, thresholds), true
}

// OldestOrderAge reports how long the oldest resting order has been
// open. Zero when nothing rests.
func OldestOrderAge(orders []OpenOrder, now time.Time) time.Duration {
	if len(orders) == 0 {
		return 0
	}
	return now.Sub(oldestOrder(orders).CreatedAt)
}
