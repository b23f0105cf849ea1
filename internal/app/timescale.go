package app

import (
	"time"

	"lp-hedge-bot/internal/timescale"
)

func (a *App) recordHistory(now time.Time, rep symbolReport) {
	if a.history == nil {
		return
	}
	a.history.EnqueueCycle(timescale.CycleRow{
		Time:       now,
		Symbol:     rep.Symbol,
		Ideal:      rep.Ideal,
		Actual:     rep.Actual,
		Offset:     rep.Offset,
		CostBasis:  rep.CostBasis,
		Price:      rep.Price,
		OffsetUSD:  rep.OffsetUSD,
		Zone:       rep.Zone.String(),
		Cooldown:   string(rep.Cooldown),
		OpenOrders: rep.OpenOrders,
	})
	for _, res := range rep.Results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		a.history.EnqueueAction(timescale.ActionRow{
			Time:     now,
			ActionID: res.ID,
			Symbol:   res.Action.Symbol,
			Kind:     string(res.Action.Kind),
			Side:     string(res.Action.Side),
			Size:     res.Action.Size,
			Price:    res.Action.Price,
			OrderID:  res.OrderID,
			Reason:   res.Action.Reason,
			DryRun:   res.DryRun,
			Success:  res.Success(),
			Error:    errText,
		})
	}
}
