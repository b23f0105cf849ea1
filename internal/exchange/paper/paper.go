// Package paper is an in-memory exchange backend. It exists for tests
// and for running the engine without touching a real venue: limit
// orders rest until filled or canceled through the test hooks, market
// orders fill instantly at the current mark.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"lp-hedge-bot/internal/exchange"
)

type paperOrder struct {
	exchange.Order
	status exchange.Status
}

type Gateway struct {
	log *zap.Logger

	mu        sync.Mutex
	prices    map[string]float64
	positions map[string]float64
	orders    map[string]*paperOrder
	fills     []exchange.Fill
	seq       int
}

// defaultMark prices a symbol nobody has set. Keeps dry runs alive for
// symbols outside the seeded set.
const defaultMark = 100.0

func New(log *zap.Logger) *Gateway {
	return &Gateway{
		log: log,
		prices: map[string]float64{
			"SOL":  200.0,
			"ETH":  3500.0,
			"BTC":  95000.0,
			"BONK": 0.00002,
		},
		positions: make(map[string]float64),
		orders:    make(map[string]*paperOrder),
	}
}

func (g *Gateway) Price(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if price, ok := g.prices[symbol]; ok {
		return price, nil
	}
	return defaultMark, nil
}

func (g *Gateway) Position(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positions[symbol], nil
}

func (g *Gateway) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var open []exchange.Order
	for _, order := range g.orders {
		if order.status == exchange.StatusOpen && order.Symbol == symbol {
			open = append(open, order.Order)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].CreatedAt.Before(open[j].CreatedAt) })
	return open, nil
}

func (g *Gateway) RecentFills(ctx context.Context, symbol string, lookback time.Duration) ([]exchange.Fill, error) {
	cutoff := time.Now().Add(-lookback)
	g.mu.Lock()
	defer g.mu.Unlock()
	var recent []exchange.Fill
	for _, fill := range g.fills {
		if fill.Symbol == symbol && !fill.Time.Before(cutoff) {
			recent = append(recent, fill)
		}
	}
	return recent, nil
}

func (g *Gateway) PlaceLimit(ctx context.Context, symbol, side string, size, price float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID(symbol, side)
	g.orders[id] = &paperOrder{
		Order: exchange.Order{
			ID:        id,
			Symbol:    symbol,
			Side:      side,
			Size:      size,
			Price:     price,
			CreatedAt: time.Now(),
		},
		status: exchange.StatusOpen,
	}
	g.log.Debug("paper limit order placed",
		zap.String("order_id", id),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("size", size),
		zap.Float64("price", price),
	)
	return id, nil
}

func (g *Gateway) PlaceMarket(ctx context.Context, symbol, side string, size float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	price, ok := g.prices[symbol]
	if !ok {
		price = defaultMark
	}
	id := g.nextID(symbol, side)
	g.orders[id] = &paperOrder{
		Order: exchange.Order{
			ID:        id,
			Symbol:    symbol,
			Side:      side,
			Size:      size,
			Price:     price,
			CreatedAt: time.Now(),
		},
		status: exchange.StatusFilled,
	}
	g.applyFill(id, symbol, side, size, price)
	g.log.Debug("paper market order filled",
		zap.String("order_id", id),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("size", size),
		zap.Float64("price", price),
	)
	return id, nil
}

func (g *Gateway) Cancel(ctx context.Context, symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		// Matches live venue semantics: cancelling a gone order is fine.
		return nil
	}
	if order.status == exchange.StatusOpen {
		order.status = exchange.StatusCanceled
		g.log.Debug("paper order canceled", zap.String("order_id", orderID))
	}
	return nil
}

func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (exchange.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return exchange.StatusUnknown, exchange.ErrOrderNotFound
	}
	return order.status, nil
}

func (g *Gateway) Close() error {
	return nil
}

// SetPrice overrides the mark for a symbol. Test hook.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

// SetPosition seeds a position without trading through it. Test hook.
func (g *Gateway) SetPosition(symbol string, size float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[symbol] = size
}

// FillOrder fills a resting limit order at its limit price, moving the
// position and recording the fill. Test hook.
func (g *Gateway) FillOrder(orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[orderID]
	if !ok {
		return exchange.ErrOrderNotFound
	}
	if order.status != exchange.StatusOpen {
		return fmt.Errorf("order %s is %s, not open", orderID, order.status)
	}
	order.status = exchange.StatusFilled
	g.applyFill(order.ID, order.Symbol, order.Side, order.Size, order.Price)
	return nil
}

func (g *Gateway) applyFill(orderID, symbol, side string, size, price float64) {
	signed := size
	if side == exchange.SideSell {
		signed = -size
	}
	g.positions[symbol] += signed
	g.fills = append(g.fills, exchange.Fill{
		OrderID: orderID,
		Symbol:  symbol,
		Side:    side,
		Size:    size,
		Price:   price,
		Time:    time.Now(),
	})
}

func (g *Gateway) nextID(symbol, side string) string {
	g.seq++
	return fmt.Sprintf("paper-%s-%s-%d", symbol, side, g.seq)
}
