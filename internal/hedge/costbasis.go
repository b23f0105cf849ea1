package hedge

import (
	"errors"
	"fmt"
	"math"
)

// eps bounds float comparisons against zero throughout the package.
const eps = 1e-8

var ErrInvalidInput = errors.New("invalid input")

// Track reconciles the tracked offset against fresh pool and exchange
// data and returns the new offset with its weighted-average cost basis.
// A single formula covers expansion, partial contraction and sign
// reversal; the edge cases carve out the transitions where averaging is
// meaningless.
func Track(ideal, actual, price, oldOffset, oldCost float64) (float64, float64, error) {
	if !finite(ideal) || !finite(actual) || !finite(price) || !finite(oldOffset) || !finite(oldCost) {
		return 0, 0, fmt.Errorf("non-finite input ideal=%v actual=%v price=%v offset=%v cost=%v: %w",
			ideal, actual, price, oldOffset, oldCost, ErrInvalidInput)
	}
	if price <= 0 {
		return 0, 0, fmt.Errorf("price %v must be positive: %w", price, ErrInvalidInput)
	}
	if oldCost < 0 {
		return 0, 0, fmt.Errorf("cost basis %v must be non-negative: %w", oldCost, ErrInvalidInput)
	}

	newOffset := actual - ideal
	delta := newOffset - oldOffset

	switch {
	case math.Abs(delta) < eps:
		// No economic event, carry the basis forward.
		return newOffset, oldCost, nil
	case math.Abs(newOffset) < eps:
		// Full closure, basis resets with the position.
		return 0, 0, nil
	case math.Abs(oldOffset) < eps:
		// Fresh position, basis is the entry price.
		return newOffset, price, nil
	}

	newCost := (oldOffset*oldCost + delta*price) / newOffset
	if newCost < 0 {
		return 0, 0, fmt.Errorf("cost basis went negative (%v) closing %v -> %v at price %v: %w",
			newCost, oldOffset, newOffset, price, ErrInvalidInput)
	}
	return newOffset, newCost, nil
}

// UnrealizedPNL values the open offset against the current price.
func UnrealizedPNL(offset, costBasis, price float64) float64 {
	if math.Abs(offset) < eps {
		return 0
	}
	if offset > 0 {
		return offset * (price - costBasis)
	}
	return math.Abs(offset) * (costBasis - price)
}

// RealizedPNL is the profit booked when the prior offset closes at the
// given price. Sign handling falls out of the formula for both long and
// short exposure.
func RealizedPNL(oldOffset, oldCost, price float64) float64 {
	return oldOffset * (price - oldCost)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
