package hl

import (
	"strings"
	"time"

	"lp-hedge-bot/internal/exchange"
)

// Positions, orders and fills come back from /info with numbers as
// strings and a few field-name variations between endpoint revisions,
// so parsing stays deliberately tolerant.

func parsePositions(payload map[string]any) map[string]float64 {
	positions := make(map[string]float64)
	if payload == nil {
		return positions
	}
	raw, ok := payload["assetPositions"].([]any)
	if !ok {
		return positions
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pos := entry
		if nested, ok := entry["position"].(map[string]any); ok {
			pos = nested
		}
		coin := stringFromAny(pos["coin"])
		if coin == "" {
			coin = stringFromAny(pos["symbol"])
		}
		if coin == "" {
			continue
		}
		size := 0.0
		if val, ok := floatFromAny(pos["szi"]); ok {
			size = val
		} else if val, ok := floatFromAny(pos["size"]); ok {
			size = val
		}
		positions[coin] = size
	}
	return positions
}

func parseOpenOrders(payload any) []map[string]any {
	switch v := payload.(type) {
	case []any:
		orders := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				orders = append(orders, m)
			}
		}
		return orders
	case []map[string]any:
		return v
	case map[string]any:
		if list, ok := v["orders"].([]any); ok {
			return parseOpenOrders(list)
		}
		if list, ok := v["data"].([]any); ok {
			return parseOpenOrders(list)
		}
	}
	return nil
}

func orderFromMap(entry map[string]any) exchange.Order {
	id := stringFromAny(entry["oid"])
	if id == "" {
		id = stringFromAny(entry["orderId"])
	}
	price := floatOrZero(entry["limitPx"])
	if price == 0 {
		price = floatOrZero(entry["px"])
	}
	size := floatOrZero(entry["sz"])
	if size == 0 {
		size = floatOrZero(entry["origSz"])
	}
	return exchange.Order{
		ID:        id,
		Symbol:    stringFromAny(entry["coin"]),
		Side:      sideFromWire(stringFromAny(entry["side"])),
		Size:      size,
		Price:     price,
		CreatedAt: time.UnixMilli(int64FromAny(entry["timestamp"])),
	}
}

func parseFills(payload any) []exchange.Fill {
	raw, ok := payload.([]any)
	if !ok {
		if m, isMap := payload.(map[string]any); isMap {
			if list, ok := m["fills"].([]any); ok {
				raw = list
			}
		}
	}
	if raw == nil {
		return nil
	}
	fills := make([]exchange.Fill, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fills = append(fills, exchange.Fill{
			OrderID: stringFromAny(entry["oid"]),
			Symbol:  stringFromAny(entry["coin"]),
			Side:    sideFromWire(stringFromAny(entry["side"])),
			Size:    floatOrZero(entry["sz"]),
			Price:   floatOrZero(entry["px"]),
			Time:    time.UnixMilli(int64FromAny(entry["time"])),
		})
	}
	return fills
}

// sideFromWire maps the exchange's bid/ask letters onto buy/sell.
func sideFromWire(side string) string {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "B", "BID", "BUY":
		return exchange.SideBuy
	case "A", "ASK", "SELL", "S":
		return exchange.SideSell
	default:
		return strings.ToLower(side)
	}
}

func statusFromWire(status string) exchange.Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "open", "live", "pending", "resting":
		return exchange.StatusOpen
	case "filled":
		return exchange.StatusFilled
	case "canceled", "cancelled", "margincanceled":
		return exchange.StatusCanceled
	case "rejected":
		return exchange.StatusRejected
	default:
		return exchange.StatusUnknown
	}
}
