// Package alp reads ALP custody accounts and derives the token exposure
// one ALP token carries. Prices come from the pool's own oracle account;
// JITOSOL exposure is converted into SOL terms since the exchange lists
// no JITOSOL perp.
package alp

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"lp-hedge-bot/internal/pool"
)

const (
	// Mint is the ALP token mint.
	Mint = "4yCLi5yWGzpTWMQ1iWHG5CrGYAdBkhyEdsuSugjDUqwj"

	// oracleAddress holds per-symbol prices: a u64 at each symbol's
	// offset minus 32, scaled by 1e10.
	oracleAddress = "GEm9TZP7BL8rTz1JDy6X74PL595zr1putA9BXC8ehDmU"

	assetsOffset        = 368
	shortPositionOffset = 600

	// Short position value is recorded in USD with 6 decimals.
	shortUSDScale = 1e6

	oraclePriceScale = 1e10
)

type custody struct {
	address  string
	decimals int
}

var custodies = map[string]custody{
	"BONK":    {address: "8aJuzsgjxBnvRhDcfQBD7z4CUj7QoPEpaNwVd7KqsSk5", decimals: 5},
	"JITOSOL": {address: "GZ9XfWwgTRhkma2Y91Q9r1XKotNXYjBnKKabj19rhT71", decimals: 9},
	"WBTC":    {address: "GFu3qS22mo6bAjg4Lr5R7L8pPgHq6GvbjJPKEHkbbs2c", decimals: 8},
}

// Oracle symbol offsets; SOL is read even though it has no custody here
// because the JITOSOL conversion needs it.
var oracleOffsets = map[string]int{
	"SOL":     56,
	"BONK":    312,
	"JITOSOL": 120,
	"WBTC":    248,
}

type Source struct {
	chain pool.ChainReader
	log   *zap.Logger
}

func New(chain pool.ChainReader, log *zap.Logger) *Source {
	return &Source{chain: chain, log: log}
}

func (s *Source) Name() string { return "alp" }

func (s *Source) Hedges(ctx context.Context, lpAmount float64) (map[string]float64, error) {
	prices, err := s.oraclePrices(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := s.chain.TokenSupply(ctx, Mint)
	if err != nil {
		return nil, fmt.Errorf("alp supply: %w", err)
	}
	if supply <= 0 {
		return nil, fmt.Errorf("invalid alp supply %v", supply)
	}

	jitosolToSOL := prices["JITOSOL"] / prices["SOL"]

	hedges := make(map[string]float64)
	for symbol, c := range custodies {
		price, ok := prices[symbol]
		if !ok {
			return nil, fmt.Errorf("no oracle price for %s", symbol)
		}
		data, err := s.chain.AccountInfo(ctx, c.address)
		if err != nil {
			return nil, fmt.Errorf("custody %s: %w", symbol, err)
		}
		exposure, err := custodyExposure(data, c.decimals, price)
		if err != nil {
			return nil, fmt.Errorf("custody %s: %w", symbol, err)
		}
		perToken := exposure / supply
		amount := perToken * lpAmount
		if symbol == "JITOSOL" {
			hedges["SOL"] += amount * jitosolToSOL
		} else {
			hedges[symbol] += amount
		}
		s.log.Debug("alp custody",
			zap.String("symbol", symbol),
			zap.Float64("exposure", exposure),
			zap.Float64("per_token", perToken),
		)
	}
	return hedges, nil
}

func (s *Source) oraclePrices(ctx context.Context) (map[string]float64, error) {
	data, err := s.chain.AccountInfo(ctx, oracleAddress)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	maxOffset := 0
	for _, offset := range oracleOffsets {
		if offset > maxOffset {
			maxOffset = offset
		}
	}
	if len(data) < maxOffset+8 {
		return nil, fmt.Errorf("oracle data too short: %d bytes", len(data))
	}
	prices := make(map[string]float64, len(oracleOffsets))
	for symbol, offset := range oracleOffsets {
		price := float64(pool.U64(data, offset-32)) / oraclePriceScale
		if price <= 0 {
			return nil, fmt.Errorf("invalid oracle price for %s: %v", symbol, price)
		}
		prices[symbol] = price
	}
	return prices, nil
}

// custodyExposure computes a custody's net token exposure: owned minus
// locked plus the short open interest implied by the custody's short
// position USD value at the oracle price.
func custodyExposure(data []byte, decimals int, price float64) (float64, error) {
	need := assetsOffset + 24
	if shortPositionOffset+8 > need {
		need = shortPositionOffset + 8
	}
	if len(data) < need {
		return 0, fmt.Errorf("custody data too short: %d bytes", len(data))
	}
	rawOwned := pool.U64(data, assetsOffset+8)
	rawLocked := pool.U64(data, assetsOffset+16)
	if rawLocked > rawOwned {
		return 0, fmt.Errorf("invalid custody data: locked %d > owned %d", rawLocked, rawOwned)
	}
	rawShortUSD := pool.U64(data, shortPositionOffset)

	scale := math.Pow10(decimals)
	owned := float64(rawOwned) / scale
	locked := float64(rawLocked) / scale
	shortOI := 0.0
	if price > 0 {
		shortOI = float64(rawShortUSD) / shortUSDScale / price
	}
	return owned - locked + shortOI, nil
}
