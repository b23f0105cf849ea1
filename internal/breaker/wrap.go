package breaker

import (
	"context"
	"time"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/exchange"
	"lp-hedge-bot/internal/pool"
)

// Gateway routes every venue call of an exchange.Gateway through one
// shared breaker.
type Gateway struct {
	inner exchange.Gateway
	cb    *Breaker
}

func WrapGateway(inner exchange.Gateway, cb *Breaker) *Gateway {
	return &Gateway{inner: inner, cb: cb}
}

func (g *Gateway) Price(ctx context.Context, symbol string) (float64, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.Price(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (g *Gateway) Position(ctx context.Context, symbol string) (float64, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.Position(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (g *Gateway) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.OpenOrders(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return res.([]exchange.Order), nil
}

func (g *Gateway) RecentFills(ctx context.Context, symbol string, lookback time.Duration) ([]exchange.Fill, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.RecentFills(ctx, symbol, lookback)
	})
	if err != nil {
		return nil, err
	}
	return res.([]exchange.Fill), nil
}

func (g *Gateway) PlaceLimit(ctx context.Context, symbol, side string, size, price float64) (string, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.PlaceLimit(ctx, symbol, side, size, price)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (g *Gateway) PlaceMarket(ctx context.Context, symbol, side string, size float64) (string, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.inner.PlaceMarket(ctx, symbol, side, size)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (g *Gateway) Cancel(ctx context.Context, symbol, orderID string) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.inner.Cancel(ctx, symbol, orderID)
	})
	return err
}

func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (exchange.Status, error) {
	res, err := g.cb.Execute(func() (any, error) {
		status, err := g.inner.OrderStatus(ctx, orderID)
		return status, err
	})
	if res == nil {
		return exchange.StatusUnknown, err
	}
	return res.(exchange.Status), err
}

// Close releases local resources only, no breaker involved.
func (g *Gateway) Close() error {
	return g.inner.Close()
}

// ChainReader guards Solana account and supply reads.
type ChainReader struct {
	inner pool.ChainReader
	cb    *Breaker
}

func WrapChainReader(inner pool.ChainReader, cb *Breaker) *ChainReader {
	return &ChainReader{inner: inner, cb: cb}
}

func (c *ChainReader) AccountInfo(ctx context.Context, address string) ([]byte, error) {
	res, err := c.cb.Execute(func() (any, error) {
		return c.inner.AccountInfo(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	return res.([]byte), nil
}

func (c *ChainReader) TokenSupply(ctx context.Context, mint string) (float64, error) {
	res, err := c.cb.Execute(func() (any, error) {
		return c.inner.TokenSupply(ctx, mint)
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

// Notifier guards alert delivery so a dead push service cannot stall
// every cycle on timeouts.
type Notifier struct {
	inner alerts.Notifier
	cb    *Breaker
}

func WrapNotifier(inner alerts.Notifier, cb *Breaker) *Notifier {
	return &Notifier{inner: inner, cb: cb}
}

func (n *Notifier) Send(ctx context.Context, msg alerts.Message) error {
	_, err := n.cb.Execute(func() (any, error) {
		return nil, n.inner.Send(ctx, msg)
	})
	return err
}
