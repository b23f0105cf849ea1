package hedge

import (
	"strconv"
	"time"
)

// Zone buckets absolute USD exposure. Ordering is meaningful: ZoneBelow
// sorts under every numbered zone and ZoneAlert sorts above, so a plain
// > comparison answers "did exposure worsen".
type Zone int

const (
	ZoneBelow Zone = -1
	ZoneAlert Zone = 1<<31 - 1
)

func (z Zone) String() string {
	switch z {
	case ZoneBelow:
		return "below-threshold"
	case ZoneAlert:
		return "alert"
	default:
		return "zone " + strconv.Itoa(int(z))
	}
}

// InBand reports whether z is a numbered zone between the min and max
// thresholds, the range in which limit orders are managed.
func (z Zone) InBand() bool {
	return z >= 0 && z != ZoneAlert
}

type CooldownStatus string

const (
	CooldownNormal     CooldownStatus = "normal"
	CooldownSkip       CooldownStatus = "skip"
	CooldownCancelOnly CooldownStatus = "cancel_only"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type ActionKind string

const (
	ActionPlaceLimit  ActionKind = "place_limit_order"
	ActionPlaceMarket ActionKind = "place_market_order"
	ActionCancel      ActionKind = "cancel_order"
	ActionNone        ActionKind = "no_action"
	ActionAlert       ActionKind = "alert"
)

// OpenOrder is the engine's view of a resting exchange order. It is
// rebuilt from the exchange every cycle and never cached.
type OpenOrder struct {
	ID        string
	Side      Side
	Size      float64
	Price     float64
	CreatedAt time.Time
}

// Action is one command for the executor. Zone, Offset and CostBasis
// describe the state that produced the action and travel with it into
// logs and audit records.
type Action struct {
	Kind      ActionKind
	Symbol    string
	Side      Side
	Size      float64
	Price     float64
	OrderID   string
	Reason    string
	Zone      Zone
	Offset    float64
	CostBasis float64
}

func oldestOrder(orders []OpenOrder) OpenOrder {
	oldest := orders[0]
	for _, o := range orders[1:] {
		if o.CreatedAt.Before(oldest.CreatedAt) {
			oldest = o
		}
	}
	return oldest
}
