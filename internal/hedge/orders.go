package hedge

import "math"

// CloseSize is the quantity a limit order targets: a configured
// fraction of the current offset, never the whole thing, so a partial
// fill walks the exposure back instead of overshooting.
func CloseSize(offset, closeRatioPct float64) float64 {
	return math.Abs(offset) * closeRatioPct / 100
}

// CloseSide closes long exposure by selling and short exposure by
// buying.
func CloseSide(offset float64) Side {
	if offset > 0 {
		return SideSell
	}
	return SideBuy
}

// LimitPrice anchors the order to the tracked cost basis, offset in the
// favorable direction: above basis when selling down a long offset,
// below basis when buying back a short one.
func LimitPrice(offset, costBasis, priceOffsetPct float64) float64 {
	if offset > 0 {
		return costBasis * (1 + priceOffsetPct/100)
	}
	return costBasis * (1 - priceOffsetPct/100)
}
