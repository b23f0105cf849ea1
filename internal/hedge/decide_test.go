package hedge

import (
	"math"
	"strings"
	"testing"
	"time"

	"lp-hedge-bot/internal/config"
)

var testOrderCfg = config.OrderConfig{
	PriceOffsetPct: 0.2,
	CloseRatioPct:  40,
	Timeout:        20 * time.Minute,
}

func baseInput(now time.Time) DecisionInput {
	return DecisionInput{
		Symbol:    "SOL",
		Offset:    0.05,
		CostBasis: 200,
		Price:     210,
		Zone:      Zone(1),
		Cooldown:  CooldownNormal,
		Now:       now,
	}
}

func TestDecideAlertCancelsAndAlerts(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Zone = ZoneAlert
	// Cooldown and timeout state must not matter once the max threshold
	// is breached.
	in.Cooldown = CooldownSkip
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-time.Hour)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 2 {
		t.Fatalf("expected exactly 2 actions, got %d", len(actions))
	}
	if actions[0].Kind != ActionCancel || actions[0].OrderID != "o1" {
		t.Fatalf("expected cancel of o1 first, got %+v", actions[0])
	}
	if actions[1].Kind != ActionAlert {
		t.Fatalf("expected alert second, got %+v", actions[1])
	}
}

func TestDecideAlertWithoutOrder(t *testing.T) {
	in := baseInput(time.Now())
	in.Zone = ZoneAlert

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionAlert {
		t.Fatalf("expected a single alert, got %+v", actions)
	}
}

func TestDecideTimeoutForcesFullClose(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Offset = 0.5
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-21 * time.Minute)}}
	in.PreviousZone = Zone(1)
	in.HasPreviousZone = true

	actions := Decide(in, testOrderCfg)
	if len(actions) != 2 {
		t.Fatalf("expected cancel plus market order, got %+v", actions)
	}
	if actions[0].Kind != ActionCancel {
		t.Fatalf("expected cancel first, got %+v", actions[0])
	}
	market := actions[1]
	if market.Kind != ActionPlaceMarket {
		t.Fatalf("expected market order, got %+v", market)
	}
	if market.Size != 0.5 {
		t.Fatalf("expected full offset size 0.5, got %f", market.Size)
	}
	if market.Side != SideSell {
		t.Fatalf("expected sell side, got %v", market.Side)
	}
}

func TestDecideTimeoutWithFlatOffsetOnlyCancels(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Offset = 0
	in.Zone = Zone(0)
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-30 * time.Minute)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionCancel {
		t.Fatalf("expected lone cancel for flat offset, got %+v", actions)
	}
}

func TestDecideWorsenedZoneReplacesOrder(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Offset = 0.1
	in.Zone = Zone(3)
	in.PreviousZone = Zone(1)
	in.HasPreviousZone = true
	in.Cooldown = CooldownSkip
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-time.Minute)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 2 {
		t.Fatalf("expected cancel plus replacement, got %+v", actions)
	}
	if actions[0].Kind != ActionCancel {
		t.Fatalf("expected cancel first, got %+v", actions[0])
	}
	replacement := actions[1]
	if replacement.Kind != ActionPlaceLimit {
		t.Fatalf("expected limit order, got %+v", replacement)
	}
	if want := CloseSize(0.1, 40); replacement.Size != want {
		t.Fatalf("expected size %f, got %f", want, replacement.Size)
	}
}

func TestDecideBelowThresholdCancels(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Zone = ZoneBelow
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-time.Minute)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionCancel {
		t.Fatalf("expected lone cancel, got %+v", actions)
	}
}

func TestDecideBelowThresholdWithoutOrderDoesNothing(t *testing.T) {
	in := baseInput(time.Now())
	in.Zone = ZoneBelow

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionNone {
		t.Fatalf("expected no action, got %+v", actions)
	}
}

func TestDecideCancelOnlyCancelsWithoutReplacement(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Cooldown = CooldownCancelOnly
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-time.Minute)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionCancel {
		t.Fatalf("expected lone cancel, got %+v", actions)
	}
}

func TestDecideCooldownHolds(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Cooldown = CooldownSkip
	in.PreviousZone = Zone(1)
	in.HasPreviousZone = true
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-time.Minute)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionNone {
		t.Fatalf("expected hold, got %+v", actions)
	}
}

func TestDecidePlacesOrderEnteringZone(t *testing.T) {
	in := baseInput(time.Now())
	in.Offset = -2
	in.CostBasis = 100
	in.Zone = Zone(2)

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 {
		t.Fatalf("expected single placement, got %+v", actions)
	}
	order := actions[0]
	if order.Kind != ActionPlaceLimit {
		t.Fatalf("expected limit order, got %+v", order)
	}
	if order.Side != SideBuy {
		t.Fatalf("expected buy to cover short offset, got %v", order.Side)
	}
	if order.Size != 0.8 {
		t.Fatalf("expected size 0.8, got %f", order.Size)
	}
	if math.Abs(order.Price-99.8) > 1e-9 {
		t.Fatalf("expected price 99.8, got %f", order.Price)
	}
	if order.Zone != Zone(2) {
		t.Fatalf("expected zone metadata, got %v", order.Zone)
	}
}

func TestDecideMaintainsUnchangedZone(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.PreviousZone = Zone(1)
	in.HasPreviousZone = true
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-time.Minute)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionNone {
		t.Fatalf("expected maintain, got %+v", actions)
	}
}

func TestDecideFallbackOnImprovedZone(t *testing.T) {
	now := time.Now()
	in := baseInput(now)
	in.Zone = Zone(1)
	in.PreviousZone = Zone(3)
	in.HasPreviousZone = true
	in.OpenOrders = []OpenOrder{{ID: "o1", CreatedAt: now.Add(-time.Minute)}}

	actions := Decide(in, testOrderCfg)
	if len(actions) != 1 || actions[0].Kind != ActionNone {
		t.Fatalf("expected fallback no-action, got %+v", actions)
	}
	if !strings.Contains(actions[0].Reason, "no rule matched") {
		t.Fatalf("expected diagnostic reason, got %q", actions[0].Reason)
	}
}
