package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"lp-hedge-bot/internal/exchange"
	"lp-hedge-bot/internal/solana"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", 3, time.Minute, zap.NewNop())
	boom := errors.New("venue down")

	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() (any, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected inner error, got %v", i, err)
		}
	}
	_, err := cb.Execute(func() (any, error) { return nil, nil })
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	cb := New("test", 3, time.Minute, zap.NewNop())
	boom := errors.New("venue down")

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, boom })
	}
	if _, err := cb.Execute(func() (any, error) { return "ok", nil }); err != nil {
		t.Fatalf("success call failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, boom })
	}
	_, err := cb.Execute(func() (any, error) { return "ok", nil })
	if errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("breaker tripped despite interleaved success")
	}
}

func TestBreakerIgnoresBenignErrors(t *testing.T) {
	cases := []error{
		context.Canceled,
		exchange.ErrOrderNotFound,
		fmt.Errorf("status lookup: %w", exchange.ErrOrderNotFound),
		solana.ErrAccountNotFound,
	}
	cb := New("test", 2, time.Minute, zap.NewNop())
	for _, benign := range cases {
		for i := 0; i < 5; i++ {
			_, _ = cb.Execute(func() (any, error) { return nil, benign })
		}
	}
	_, err := cb.Execute(func() (any, error) { return "ok", nil })
	if errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("benign errors tripped the breaker")
	}
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	cb := New("test", 1, 10*time.Millisecond, zap.NewNop())
	boom := errors.New("venue down")

	_, _ = cb.Execute(func() (any, error) { return nil, boom })
	if _, err := cb.Execute(func() (any, error) { return "ok", nil }); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	res, err := cb.Execute(func() (any, error) { return "ok", nil })
	if err != nil {
		t.Fatalf("half-open probe failed: %v", err)
	}
	if res.(string) != "ok" {
		t.Fatalf("unexpected probe result: %v", res)
	}
}

func TestNewSetNames(t *testing.T) {
	set := NewSet(zap.NewNop())
	if set.Exchange.Name() != "exchange" {
		t.Fatalf("unexpected exchange breaker name: %s", set.Exchange.Name())
	}
	if set.SolanaRPC.Name() != "solana_rpc" {
		t.Fatalf("unexpected rpc breaker name: %s", set.SolanaRPC.Name())
	}
	if set.Notification.Name() != "notification" {
		t.Fatalf("unexpected notification breaker name: %s", set.Notification.Name())
	}
}
