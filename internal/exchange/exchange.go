package exchange

import (
	"context"
	"errors"
	"time"
)

// Status is the canonical order state adapters map exchange-specific
// statuses onto.
type Status string

const (
	StatusOpen            Status = "open"
	StatusFilled          Status = "filled"
	StatusPartiallyFilled Status = "partially_filled"
	StatusCanceled        Status = "canceled"
	StatusRejected        Status = "rejected"
	StatusUnknown         Status = "unknown"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

var ErrOrderNotFound = errors.New("order not found")

// Order is a resting order as reported by the exchange.
type Order struct {
	ID        string
	Symbol    string
	Side      string
	Size      float64
	Price     float64
	CreatedAt time.Time
}

// Fill is an executed trade from the account's fill history.
type Fill struct {
	OrderID string
	Symbol  string
	Side    string
	Size    float64
	Price   float64
	Time    time.Time
}

// Gateway is the full exchange surface the engine depends on. Backends
// implement it against their own wire protocol; everything above this
// interface is exchange-agnostic.
type Gateway interface {
	Price(ctx context.Context, symbol string) (float64, error)
	Position(ctx context.Context, symbol string) (float64, error)
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	RecentFills(ctx context.Context, symbol string, lookback time.Duration) ([]Fill, error)
	PlaceLimit(ctx context.Context, symbol, side string, size, price float64) (string, error)
	PlaceMarket(ctx context.Context, symbol, side string, size float64) (string, error)
	// Cancel is idempotent: cancelling an order that already filled or
	// never existed is not an error.
	Cancel(ctx context.Context, symbol, orderID string) error
	OrderStatus(ctx context.Context, orderID string) (Status, error)
	Close() error
}
