// Package exec turns decision actions into exchange commands. Orders
// are confirmed after placement, cancels are retried, alerts are fire
// and forget.
package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/exchange"
	"lp-hedge-bot/internal/hedge"
	"lp-hedge-bot/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultConfirmDelay   = 100 * time.Millisecond
	defaultConfirmRetries = 3
	defaultRetryBackoff   = 200 * time.Millisecond
	cancelAttempts        = 5
)

var (
	// ErrOrderNotConfirmed means the status poll never produced a
	// definitive answer for a submitted order.
	ErrOrderNotConfirmed = errors.New("order not confirmed")
	// ErrOrderRejected means the venue reported the order canceled or
	// rejected right after placement.
	ErrOrderRejected = errors.New("order rejected by exchange")
)

// Result is the audit record of one executed action.
type Result struct {
	ID      string
	Action  hedge.Action
	OrderID string
	DryRun  bool
	Err     error
}

func (r Result) Success() bool { return r.Err == nil }

type Executor struct {
	gateway  exchange.Gateway
	notifier alerts.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger

	dryRun         bool
	confirmDelay   time.Duration
	confirmRetries int
	retryBackoff   time.Duration
}

type Option func(*Executor)

func WithDryRun(enabled bool) Option {
	return func(e *Executor) { e.dryRun = enabled }
}

func WithConfirmDelay(d time.Duration) Option {
	return func(e *Executor) { e.confirmDelay = d }
}

func WithConfirmRetries(n int) Option {
	return func(e *Executor) { e.confirmRetries = n }
}

func WithRetryBackoff(d time.Duration) Option {
	return func(e *Executor) { e.retryBackoff = d }
}

func New(gateway exchange.Gateway, notifier alerts.Notifier, m *metrics.Metrics, log *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		gateway:        gateway,
		notifier:       notifier,
		metrics:        m,
		log:            log,
		confirmDelay:   defaultConfirmDelay,
		confirmRetries: defaultConfirmRetries,
		retryBackoff:   defaultRetryBackoff,
	}
	if e.metrics == nil {
		e.metrics = metrics.NewNoop()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteAll runs one symbol's actions in order. A failed cancel or
// placement stops the remainder: placing a replacement after a cancel
// that may not have landed would stack orders.
func (e *Executor) ExecuteAll(ctx context.Context, actions []hedge.Action) []Result {
	results := make([]Result, 0, len(actions))
	for _, action := range actions {
		res := e.Execute(ctx, action)
		results = append(results, res)
		if res.Err != nil && touchesGateway(action.Kind) {
			break
		}
	}
	return results
}

func (e *Executor) Execute(ctx context.Context, action hedge.Action) Result {
	res := Result{ID: uuid.NewString(), Action: action}
	switch action.Kind {
	case hedge.ActionPlaceLimit:
		res.OrderID, res.DryRun, res.Err = e.placeLimit(ctx, action)
	case hedge.ActionPlaceMarket:
		res.OrderID, res.DryRun, res.Err = e.placeMarket(ctx, action)
	case hedge.ActionCancel:
		res.DryRun, res.Err = e.cancel(ctx, action)
	case hedge.ActionAlert:
		e.notify(ctx, alerts.ThresholdExceeded(action.Symbol, action.Offset, action.Reason))
	case hedge.ActionNone:
		e.log.Debug("no action",
			zap.String("symbol", action.Symbol),
			zap.String("reason", action.Reason),
		)
	default:
		res.Err = fmt.Errorf("unknown action kind: %s", action.Kind)
	}
	return res
}

func touchesGateway(kind hedge.ActionKind) bool {
	switch kind {
	case hedge.ActionPlaceLimit, hedge.ActionPlaceMarket, hedge.ActionCancel:
		return true
	}
	return false
}

func (e *Executor) placeLimit(ctx context.Context, action hedge.Action) (string, bool, error) {
	if e.dryRun {
		e.log.Info("dry run: would place limit order",
			zap.String("symbol", action.Symbol),
			zap.String("side", string(action.Side)),
			zap.Float64("size", action.Size),
			zap.Float64("price", action.Price),
			zap.String("reason", action.Reason),
		)
		return "", true, nil
	}
	orderID, err := e.gateway.PlaceLimit(ctx, action.Symbol, string(action.Side), action.Size, action.Price)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return "", false, fmt.Errorf("place limit %s: %w", action.Symbol, err)
	}
	if err := e.confirm(ctx, orderID); err != nil {
		e.metrics.OrdersFailed.Inc()
		return orderID, false, err
	}
	e.metrics.OrdersPlaced.Inc()
	e.log.Info("limit order placed",
		zap.String("symbol", action.Symbol),
		zap.String("side", string(action.Side)),
		zap.Float64("size", action.Size),
		zap.Float64("price", action.Price),
		zap.String("order_id", orderID),
		zap.String("reason", action.Reason),
	)
	e.notify(ctx, alerts.OrderPlaced(action.Symbol, string(action.Side), action.Size, action.Price))
	return orderID, false, nil
}

// placeMarket force-closes the remaining offset. Market actions only
// come out of the timeout rule, so each one is announced as a force
// close.
func (e *Executor) placeMarket(ctx context.Context, action hedge.Action) (string, bool, error) {
	if e.dryRun {
		e.log.Info("dry run: would place market order",
			zap.String("symbol", action.Symbol),
			zap.String("side", string(action.Side)),
			zap.Float64("size", action.Size),
			zap.String("reason", action.Reason),
		)
		return "", true, nil
	}
	orderID, err := e.gateway.PlaceMarket(ctx, action.Symbol, string(action.Side), action.Size)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return "", false, fmt.Errorf("place market %s: %w", action.Symbol, err)
	}
	if err := e.confirm(ctx, orderID); err != nil {
		e.metrics.OrdersFailed.Inc()
		return orderID, false, err
	}
	e.metrics.OrdersPlaced.Inc()
	e.metrics.ForceCloses.Inc()
	e.log.Info("market order placed",
		zap.String("symbol", action.Symbol),
		zap.String("side", string(action.Side)),
		zap.Float64("size", action.Size),
		zap.String("order_id", orderID),
		zap.String("reason", action.Reason),
	)
	e.notify(ctx, alerts.ForceClose(action.Symbol, string(action.Side), action.Size))
	return orderID, false, nil
}

func (e *Executor) cancel(ctx context.Context, action hedge.Action) (bool, error) {
	if e.dryRun {
		e.log.Info("dry run: would cancel order",
			zap.String("symbol", action.Symbol),
			zap.String("order_id", action.OrderID),
			zap.String("reason", action.Reason),
		)
		return true, nil
	}
	err := e.retry(ctx, func() error {
		return e.gateway.Cancel(ctx, action.Symbol, action.OrderID)
	})
	if err != nil {
		return false, fmt.Errorf("cancel %s: %w", action.OrderID, err)
	}
	e.metrics.OrdersCanceled.Inc()
	e.log.Info("order canceled",
		zap.String("symbol", action.Symbol),
		zap.String("order_id", action.OrderID),
		zap.String("reason", action.Reason),
	)
	return false, nil
}

// confirm waits the settle delay then polls until the venue reports the
// order live or filled. A canceled or rejected report fails right away;
// transient poll errors burn a retry.
func (e *Executor) confirm(ctx context.Context, orderID string) error {
	var lastErr error
	for attempt := 0; attempt < e.confirmRetries; attempt++ {
		if err := sleepCtx(ctx, e.confirmDelay); err != nil {
			return err
		}
		status, err := e.gateway.OrderStatus(ctx, orderID)
		if err != nil {
			lastErr = err
			continue
		}
		switch status {
		case exchange.StatusOpen, exchange.StatusFilled, exchange.StatusPartiallyFilled:
			return nil
		case exchange.StatusCanceled, exchange.StatusRejected:
			return fmt.Errorf("%w: order %s reported %s", ErrOrderRejected, orderID, status)
		default:
			lastErr = fmt.Errorf("order %s reported %s", orderID, status)
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrOrderNotConfirmed, lastErr)
	}
	return fmt.Errorf("%w: order %s", ErrOrderNotConfirmed, orderID)
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := e.retryBackoff
	var lastErr error
	for attempt := 0; attempt < cancelAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if attempt == cancelAttempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("retry failed: %w", lastErr)
}

// notify never fails the action that raised it.
func (e *Executor) notify(ctx context.Context, msg alerts.Message) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.log.Warn("alert dispatch failed", zap.String("title", msg.Title), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
