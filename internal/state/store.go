// Package state persists the small facts the engine needs across
// restarts: per-symbol offset snapshots, exchange nonces and operator
// bookkeeping, all through one key/value port.
package state

import "context"

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
