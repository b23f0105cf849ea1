package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/exchange"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type stubGateway struct {
	price    float64
	position float64
	orders   []exchange.Order
	status   exchange.Status
	err      error
	canceled []string
}

func (s *stubGateway) Price(context.Context, string) (float64, error) {
	return s.price, s.err
}

func (s *stubGateway) Position(context.Context, string) (float64, error) {
	return s.position, s.err
}

func (s *stubGateway) OpenOrders(context.Context, string) ([]exchange.Order, error) {
	return s.orders, s.err
}

func (s *stubGateway) RecentFills(context.Context, string, time.Duration) ([]exchange.Fill, error) {
	return nil, s.err
}

func (s *stubGateway) PlaceLimit(context.Context, string, string, float64, float64) (string, error) {
	return "oid-1", s.err
}

func (s *stubGateway) PlaceMarket(context.Context, string, string, float64) (string, error) {
	return "oid-2", s.err
}

func (s *stubGateway) Cancel(_ context.Context, _ string, orderID string) error {
	s.canceled = append(s.canceled, orderID)
	return s.err
}

func (s *stubGateway) OrderStatus(context.Context, string) (exchange.Status, error) {
	return s.status, s.err
}

func (s *stubGateway) Close() error { return nil }

func TestWrapGatewayPassesValuesThrough(t *testing.T) {
	stub := &stubGateway{
		price:    207.83,
		position: -3.25,
		orders:   []exchange.Order{{ID: "1", Symbol: "SOL"}},
		status:   exchange.StatusFilled,
	}
	gw := WrapGateway(stub, New("exchange", 5, time.Minute, zap.NewNop()))
	ctx := context.Background()

	price, err := gw.Price(ctx, "SOL")
	if err != nil || price != 207.83 {
		t.Fatalf("price: %v %v", price, err)
	}
	position, err := gw.Position(ctx, "SOL")
	if err != nil || position != -3.25 {
		t.Fatalf("position: %v %v", position, err)
	}
	orders, err := gw.OpenOrders(ctx, "SOL")
	if err != nil || len(orders) != 1 || orders[0].ID != "1" {
		t.Fatalf("orders: %v %v", orders, err)
	}
	id, err := gw.PlaceLimit(ctx, "SOL", exchange.SideSell, 1, 200)
	if err != nil || id != "oid-1" {
		t.Fatalf("place limit: %v %v", id, err)
	}
	status, err := gw.OrderStatus(ctx, "oid-1")
	if err != nil || status != exchange.StatusFilled {
		t.Fatalf("status: %v %v", status, err)
	}
	if err := gw.Cancel(ctx, "SOL", "oid-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(stub.canceled) != 1 || stub.canceled[0] != "oid-1" {
		t.Fatalf("cancel not forwarded: %v", stub.canceled)
	}
}

func TestWrapGatewaySharedBreakerTrips(t *testing.T) {
	stub := &stubGateway{err: errors.New("venue down")}
	gw := WrapGateway(stub, New("exchange", 3, time.Minute, zap.NewNop()))
	ctx := context.Background()

	_, _ = gw.Price(ctx, "SOL")
	_, _ = gw.Position(ctx, "SOL")
	_, _ = gw.OpenOrders(ctx, "SOL")

	_, err := gw.Price(ctx, "SOL")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker after mixed-method failures, got %v", err)
	}
}

func TestWrapGatewayOrderStatusNotFound(t *testing.T) {
	stub := &stubGateway{status: exchange.StatusUnknown, err: exchange.ErrOrderNotFound}
	gw := WrapGateway(stub, New("exchange", 2, time.Minute, zap.NewNop()))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		status, err := gw.OrderStatus(ctx, "gone")
		if !errors.Is(err, exchange.ErrOrderNotFound) {
			t.Fatalf("expected not-found error, got %v", err)
		}
		if status != exchange.StatusUnknown {
			t.Fatalf("expected unknown status, got %s", status)
		}
	}
	stub.err = nil
	stub.status = exchange.StatusOpen
	status, err := gw.OrderStatus(ctx, "oid")
	if err != nil || status != exchange.StatusOpen {
		t.Fatalf("not-found responses tripped the breaker: %v %v", status, err)
	}
}

type stubChain struct {
	data []byte
	err  error
}

func (s *stubChain) AccountInfo(context.Context, string) ([]byte, error) {
	return s.data, s.err
}

func (s *stubChain) TokenSupply(context.Context, string) (float64, error) {
	return 1000, s.err
}

func TestWrapChainReader(t *testing.T) {
	stub := &stubChain{data: []byte{1, 2, 3}}
	reader := WrapChainReader(stub, New("solana_rpc", 3, time.Minute, zap.NewNop()))
	ctx := context.Background()

	data, err := reader.AccountInfo(ctx, "addr")
	if err != nil || len(data) != 3 {
		t.Fatalf("account info: %v %v", data, err)
	}
	supply, err := reader.TokenSupply(ctx, "mint")
	if err != nil || supply != 1000 {
		t.Fatalf("supply: %v %v", supply, err)
	}
}

type stubNotifier struct {
	sent int
	err  error
}

func (s *stubNotifier) Send(context.Context, alerts.Message) error {
	s.sent++
	return s.err
}

func TestWrapNotifierShedsWhenOpen(t *testing.T) {
	stub := &stubNotifier{err: errors.New("push service down")}
	notifier := WrapNotifier(stub, New("notification", 2, time.Minute, zap.NewNop()))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = notifier.Send(ctx, alerts.Message{Body: "hello"})
	}
	if stub.sent != 2 {
		t.Fatalf("expected breaker to shed after 2 failures, inner saw %d", stub.sent)
	}
}
