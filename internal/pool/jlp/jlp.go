// Package jlp reads Jupiter LP custody accounts and derives the token
// exposure one JLP token carries.
package jlp

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"lp-hedge-bot/internal/pool"
)

const (
	// Mint is the JLP token mint.
	Mint = "27G8MtK7VtTcCHkpASjSDdkWWYfoqT6ggEuKidVJidD4"

	// assetsOffset is where the custody account's assets block starts:
	// six consecutive little-endian u64 fields.
	assetsOffset = 214

	// feesUserShare is the fraction of accumulated fees attributable to
	// LP holders.
	feesUserShare = 0.75
)

type custody struct {
	address  string
	decimals int
	stable   bool
}

// Stablecoin custodies carry no price exposure worth hedging.
var custodies = map[string]custody{
	"SOL":  {address: "7xS2gz2bTp3fwCC7knJvUWTEU9Tycczu6VhJYKgi1wdz", decimals: 9},
	"ETH":  {address: "AQCGyheWPLeo6Qp9WpYS9m3Qj479t7R636N9ey1rEjEn", decimals: 8},
	"WBTC": {address: "5Pv3gM9JrFFH883SWAhvJC9RPYmo8UNxuFtv5bMMALkm", decimals: 8},
	"USDC": {address: "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa", decimals: 6, stable: true},
	"USDT": {address: "4vkNeXiYEUizLdrpdPS1eC2mccyM4NUPRtERrk6ZETkk", decimals: 6, stable: true},
}

type Source struct {
	chain pool.ChainReader
	log   *zap.Logger
}

func New(chain pool.ChainReader, log *zap.Logger) *Source {
	return &Source{chain: chain, log: log}
}

func (s *Source) Name() string { return "jlp" }

func (s *Source) Hedges(ctx context.Context, lpAmount float64) (map[string]float64, error) {
	supply, err := s.chain.TokenSupply(ctx, Mint)
	if err != nil {
		return nil, fmt.Errorf("jlp supply: %w", err)
	}
	if supply <= 0 {
		return nil, fmt.Errorf("invalid jlp supply %v", supply)
	}

	hedges := make(map[string]float64)
	for symbol, c := range custodies {
		if c.stable {
			continue
		}
		data, err := s.chain.AccountInfo(ctx, c.address)
		if err != nil {
			return nil, fmt.Errorf("custody %s: %w", symbol, err)
		}
		exposure, err := custodyExposure(data, c.decimals)
		if err != nil {
			return nil, fmt.Errorf("custody %s: %w", symbol, err)
		}
		perToken := exposure / supply
		hedges[symbol] = perToken * lpAmount
		s.log.Debug("jlp custody",
			zap.String("symbol", symbol),
			zap.Float64("exposure", exposure),
			zap.Float64("per_token", perToken),
		)
	}
	return hedges, nil
}

// custodyExposure computes a custody's net token exposure from its raw
// account bytes: owned minus locked plus the global short open interest
// plus the LP share of accumulated fees.
func custodyExposure(data []byte, decimals int) (float64, error) {
	if len(data) < assetsOffset+48 {
		return 0, fmt.Errorf("custody data too short: %d bytes", len(data))
	}
	rawFees := pool.U64(data, assetsOffset)
	rawOwned := pool.U64(data, assetsOffset+8)
	rawLocked := pool.U64(data, assetsOffset+16)
	rawShortSizes := pool.U64(data, assetsOffset+32)
	rawShortPrices := pool.U64(data, assetsOffset+40)

	if rawLocked > rawOwned {
		return 0, fmt.Errorf("invalid custody data: locked %d > owned %d", rawLocked, rawOwned)
	}

	scale := math.Pow10(decimals)
	owned := float64(rawOwned) / scale
	locked := float64(rawLocked) / scale
	fees := float64(rawFees) / scale * feesUserShare
	shortOI := 0.0
	if rawShortPrices > 0 {
		shortOI = float64(rawShortSizes) / float64(rawShortPrices)
	}
	return owned - locked + shortOI + fees, nil
}
