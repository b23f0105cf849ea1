package hedge

import (
	"fmt"
	"math"
	"time"

	"lp-hedge-bot/internal/config"
)

// DecisionInput is everything one symbol's decision depends on,
// assembled by the cycle loop from the tracker, classifier, resolver
// and cooldown gate plus the live exchange view.
type DecisionInput struct {
	Symbol          string
	Offset          float64
	CostBasis       float64
	Price           float64
	Zone            Zone
	PreviousZone    Zone
	HasPreviousZone bool
	Cooldown        CooldownStatus
	OpenOrders      []OpenOrder
	Now             time.Time
}

func (in DecisionInput) offsetUSD() float64 {
	return math.Abs(in.Offset) * in.Price
}

// A rule inspects the input and either claims the decision by returning
// the full action list or passes with nil.
type rule func(DecisionInput, config.OrderConfig) []Action

// Rules are evaluated strictly in order, first match wins. The order
// encodes priority: breaching the max threshold trumps a stuck order,
// which trumps zone management, which defers to the cooldown gate.
var rules = []rule{
	ruleAlert,
	ruleTimeout,
	ruleZoneWorsened,
	ruleBelowThreshold,
	ruleCancelOnly,
	ruleCooldownHold,
	rulePlaceOrder,
	ruleMaintain,
}

// Decide turns one symbol's reconciled state into executor actions.
func Decide(in DecisionInput, cfg config.OrderConfig) []Action {
	for _, r := range rules {
		if actions := r(in, cfg); actions != nil {
			return actions
		}
	}
	return []Action{noAction(in, fmt.Sprintf("no rule matched (%s, cooldown %s, %d orders open)",
		in.Zone, in.Cooldown, len(in.OpenOrders)))}
}

func ruleAlert(in DecisionInput, _ config.OrderConfig) []Action {
	if in.Zone != ZoneAlert {
		return nil
	}
	actions := cancelAll(in, "exceeded max threshold")
	actions = append(actions, Action{
		Kind:      ActionAlert,
		Symbol:    in.Symbol,
		Reason:    fmt.Sprintf("threshold exceeded: $%.2f", in.offsetUSD()),
		Zone:      in.Zone,
		Offset:    in.Offset,
		CostBasis: in.CostBasis,
	})
	return actions
}

func ruleTimeout(in DecisionInput, cfg config.OrderConfig) []Action {
	if len(in.OpenOrders) == 0 || cfg.Timeout <= 0 {
		return nil
	}
	age := OldestOrderAge(in.OpenOrders, in.Now)
	if age < cfg.Timeout {
		return nil
	}
	actions := cancelAll(in, fmt.Sprintf("order open %s, past %s timeout", age.Round(time.Second), cfg.Timeout))
	// Force close covers the whole offset, not the configured ratio. A
	// stuck order already proved the passive price wrong once.
	if size := math.Abs(in.Offset); size >= eps {
		actions = append(actions, Action{
			Kind:      ActionPlaceMarket,
			Symbol:    in.Symbol,
			Side:      CloseSide(in.Offset),
			Size:      size,
			Reason:    "force close after order timeout",
			Zone:      in.Zone,
			Offset:    in.Offset,
			CostBasis: in.CostBasis,
		})
	}
	return actions
}

func ruleZoneWorsened(in DecisionInput, cfg config.OrderConfig) []Action {
	if len(in.OpenOrders) == 0 || !in.HasPreviousZone || in.Zone <= in.PreviousZone {
		return nil
	}
	actions := cancelAll(in, fmt.Sprintf("zone worsened: %s -> %s", in.PreviousZone, in.Zone))
	actions = append(actions, limitOrder(in, cfg, "re-placing order after zone worsened"))
	return actions
}

func ruleBelowThreshold(in DecisionInput, _ config.OrderConfig) []Action {
	if in.Zone != ZoneBelow {
		return nil
	}
	if len(in.OpenOrders) == 0 {
		return []Action{noAction(in, "within threshold")}
	}
	return cancelAll(in, "back within threshold")
}

func ruleCancelOnly(in DecisionInput, _ config.OrderConfig) []Action {
	if !in.Zone.InBand() || in.Cooldown != CooldownCancelOnly {
		return nil
	}
	if len(in.OpenOrders) == 0 {
		return []Action{noAction(in, "recovered during cooldown")}
	}
	return cancelAll(in, "recovered during cooldown")
}

func ruleCooldownHold(in DecisionInput, _ config.OrderConfig) []Action {
	if in.Cooldown != CooldownSkip {
		return nil
	}
	return []Action{noAction(in, "holding through cooldown")}
}

func rulePlaceOrder(in DecisionInput, cfg config.OrderConfig) []Action {
	if in.Cooldown != CooldownNormal || len(in.OpenOrders) > 0 {
		return nil
	}
	return []Action{limitOrder(in, cfg, fmt.Sprintf("entering %s", in.Zone))}
}

func ruleMaintain(in DecisionInput, _ config.OrderConfig) []Action {
	if in.Cooldown != CooldownNormal || len(in.OpenOrders) == 0 {
		return nil
	}
	if in.HasPreviousZone && in.Zone != in.PreviousZone {
		return nil
	}
	return []Action{noAction(in, fmt.Sprintf("maintaining order in %s", in.Zone))}
}

func cancelAll(in DecisionInput, reason string) []Action {
	actions := make([]Action, 0, len(in.OpenOrders)+1)
	for _, o := range in.OpenOrders {
		actions = append(actions, Action{
			Kind:      ActionCancel,
			Symbol:    in.Symbol,
			OrderID:   o.ID,
			Reason:    reason,
			Zone:      in.Zone,
			Offset:    in.Offset,
			CostBasis: in.CostBasis,
		})
	}
	return actions
}

func limitOrder(in DecisionInput, cfg config.OrderConfig, reason string) Action {
	return Action{
		Kind:      ActionPlaceLimit,
		Symbol:    in.Symbol,
		Side:      CloseSide(in.Offset),
		Size:      CloseSize(in.Offset, cfg.CloseRatioPct),
		Price:     LimitPrice(in.Offset, in.CostBasis, cfg.PriceOffsetPct),
		Reason:    reason,
		Zone:      in.Zone,
		Offset:    in.Offset,
		CostBasis: in.CostBasis,
	}
}

func noAction(in DecisionInput, reason string) Action {
	return Action{
		Kind:      ActionNone,
		Symbol:    in.Symbol,
		Reason:    reason,
		Zone:      in.Zone,
		Offset:    in.Offset,
		CostBasis: in.CostBasis,
	}
}
