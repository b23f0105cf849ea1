// Package pool turns LP token holdings into per-symbol ideal hedge
// quantities. Each source reads one pool's on-chain state; Fetch runs
// the configured sources concurrently and merges their outputs into
// hedge direction.
package pool

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source computes the per-symbol exposure a holder of lpAmount LP
// tokens carries, in whole tokens, positive for long exposure.
type Source interface {
	Name() string
	Hedges(ctx context.Context, lpAmount float64) (map[string]float64, error)
}

// ChainReader is the slice of the Solana RPC surface the sources need.
type ChainReader interface {
	AccountInfo(ctx context.Context, address string) ([]byte, error)
	TokenSupply(ctx context.Context, mint string) (float64, error)
}

// symbolAliases maps custody symbols onto the symbols the exchange
// actually lists.
var symbolAliases = map[string]string{
	"WBTC": "BTC",
}

// U64 reads a little-endian u64 from an account data blob. Callers
// bounds-check the blob first.
func U64(data []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

// Fetch gathers hedges from every source with a non-zero LP amount and
// merges them: exposures are negated (hedging a long means going short),
// summed per symbol, and custody symbols are mapped to exchange ones.
// Any source failing fails the fetch; a cycle must not trade on a
// partial view of the pools.
func Fetch(ctx context.Context, sources []Source, amounts map[string]float64, log *zap.Logger) (map[string]float64, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([]map[string]float64, len(sources))
	for i, src := range sources {
		amount := amounts[src.Name()]
		if amount == 0 {
			log.Debug("skipping pool", zap.String("pool", src.Name()))
			continue
		}
		g.Go(func() error {
			hedges, err := src.Hedges(ctx, amount)
			if err != nil {
				return fmt.Errorf("%s hedges: %w", src.Name(), err)
			}
			results[i] = hedges
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]float64)
	for _, hedges := range results {
		for symbol, exposure := range hedges {
			if alias, ok := symbolAliases[symbol]; ok {
				symbol = alias
			}
			merged[symbol] -= exposure
		}
	}
	return merged, nil
}
