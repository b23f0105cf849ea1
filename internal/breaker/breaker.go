// Package breaker guards each external dependency with a named circuit
// breaker. A tripped breaker fails calls fast for its cooldown window
// instead of hammering a dependency that is already down.
package breaker

import (
	"context"
	"errors"
	"time"

	"lp-hedge-bot/internal/exchange"
	"lp-hedge-bot/internal/solana"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breaker is the shared shape of all breakers in the set. The any
// payload keeps one breaker usable across methods with different
// return types; the wrappers in this package recover the static type.
type Breaker = gobreaker.CircuitBreaker[any]

// Set holds one breaker per outbound dependency.
type Set struct {
	Exchange     *Breaker
	SolanaRPC    *Breaker
	Notification *Breaker
}

func NewSet(log *zap.Logger) *Set {
	return &Set{
		Exchange:     New("exchange", 5, time.Minute, log),
		SolanaRPC:    New("solana_rpc", 3, 30*time.Second, log),
		Notification: New("notification", 10, 2*time.Minute, log),
	}
}

func New(name string, maxFailures uint32, cooldown time.Duration, log *zap.Logger) *Breaker {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: isDependencyHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			}
		},
	})
}

// isDependencyHealthy decides which errors count against the trip
// threshold. Caller-side cancellation and not-found sentinels are
// completed round trips, not outages.
func isDependencyHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, exchange.ErrOrderNotFound) || errors.Is(err, solana.ErrAccountNotFound) {
		return true
	}
	return false
}
