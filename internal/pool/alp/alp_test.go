package alp

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"
)

type stubChain struct {
	supply   float64
	accounts map[string][]byte
}

func (s *stubChain) AccountInfo(ctx context.Context, address string) ([]byte, error) {
	data, ok := s.accounts[address]
	if !ok {
		return nil, fmt.Errorf("no account %s", address)
	}
	return data, nil
}

func (s *stubChain) TokenSupply(ctx context.Context, mint string) (float64, error) {
	if mint != Mint {
		return 0, fmt.Errorf("unexpected mint %s", mint)
	}
	return s.supply, nil
}

func oracleData(prices map[string]float64) []byte {
	maxOffset := 0
	for _, offset := range oracleOffsets {
		if offset > maxOffset {
			maxOffset = offset
		}
	}
	data := make([]byte, maxOffset+8)
	for symbol, offset := range oracleOffsets {
		raw := uint64(prices[symbol] * oraclePriceScale)
		binary.LittleEndian.PutUint64(data[offset-32:], raw)
	}
	return data
}

func custodyData(owned, locked, shortUSD uint64) []byte {
	size := assetsOffset + 24
	if shortPositionOffset+8 > size {
		size = shortPositionOffset + 8
	}
	data := make([]byte, size)
	binary.LittleEndian.PutUint64(data[assetsOffset+8:], owned)
	binary.LittleEndian.PutUint64(data[assetsOffset+16:], locked)
	binary.LittleEndian.PutUint64(data[shortPositionOffset:], shortUSD)
	return data
}

func TestOraclePrices(t *testing.T) {
	chain := &stubChain{accounts: map[string][]byte{
		oracleAddress: oracleData(map[string]float64{
			"SOL": 200, "BONK": 0.00002, "JITOSOL": 220, "WBTC": 95000,
		}),
	}}
	src := New(chain, zap.NewNop())
	prices, err := src.oraclePrices(context.Background())
	if err != nil {
		t.Fatalf("oracle prices: %v", err)
	}
	if math.Abs(prices["SOL"]-200) > 1e-9 {
		t.Fatalf("expected SOL 200, got %f", prices["SOL"])
	}
	if math.Abs(prices["BONK"]-0.00002) > 1e-12 {
		t.Fatalf("expected BONK 0.00002, got %f", prices["BONK"])
	}
}

func TestOracleRejectsZeroPrice(t *testing.T) {
	chain := &stubChain{accounts: map[string][]byte{
		oracleAddress: oracleData(map[string]float64{
			"SOL": 200, "BONK": 0, "JITOSOL": 220, "WBTC": 95000,
		}),
	}}
	if _, err := New(chain, zap.NewNop()).oraclePrices(context.Background()); err == nil {
		t.Fatalf("expected zero-price rejection")
	}
}

func TestCustodyExposureWithShortPosition(t *testing.T) {
	// decimals 8: owned 3, locked 0, short $190000 at price 95000 = 2.
	data := custodyData(3e8, 0, 190000e6)
	exposure, err := custodyExposure(data, 8, 95000)
	if err != nil {
		t.Fatalf("exposure: %v", err)
	}
	if math.Abs(exposure-5) > 1e-9 {
		t.Fatalf("expected 5, got %f", exposure)
	}
}

func TestCustodyExposureLockedExceedsOwned(t *testing.T) {
	data := custodyData(10, 11, 0)
	if _, err := custodyExposure(data, 8, 100); err == nil {
		t.Fatalf("expected locked > owned rejection")
	}
}

func TestHedgesConvertsJitosolToSOL(t *testing.T) {
	chain := &stubChain{
		supply: 1000,
		accounts: map[string][]byte{
			oracleAddress: oracleData(map[string]float64{
				"SOL": 200, "BONK": 0.00002, "JITOSOL": 220, "WBTC": 95000,
			}),
			custodies["BONK"].address:    custodyData(1e10, 0, 0),
			custodies["JITOSOL"].address: custodyData(50e9, 0, 0),
			custodies["WBTC"].address:    custodyData(3e8, 0, 190000e6),
		},
	}
	src := New(chain, zap.NewNop())
	if src.Name() != "alp" {
		t.Fatalf("unexpected name %s", src.Name())
	}

	hedges, err := src.Hedges(context.Background(), 100)
	if err != nil {
		t.Fatalf("hedges: %v", err)
	}
	// JITOSOL exposure 50, per-token 0.05, amount 5, SOL terms x1.1.
	if got := hedges["SOL"]; math.Abs(got-5.5) > 1e-9 {
		t.Fatalf("expected SOL 5.5, got %f", got)
	}
	if _, ok := hedges["JITOSOL"]; ok {
		t.Fatalf("JITOSOL must be converted away, got %v", hedges)
	}
	// BONK exposure 1e5, per-token 100, amount 10000.
	if got := hedges["BONK"]; math.Abs(got-10000) > 1e-6 {
		t.Fatalf("expected BONK 10000, got %f", got)
	}
	// WBTC exposure 3 + 2 short OI, per-token 0.005, amount 0.5.
	if got := hedges["WBTC"]; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected WBTC 0.5, got %f", got)
	}
}

func TestHedgesRejectsZeroSupply(t *testing.T) {
	chain := &stubChain{
		supply: 0,
		accounts: map[string][]byte{
			oracleAddress: oracleData(map[string]float64{
				"SOL": 200, "BONK": 0.00002, "JITOSOL": 220, "WBTC": 95000,
			}),
		},
	}
	if _, err := New(chain, zap.NewNop()).Hedges(context.Background(), 100); err == nil {
		t.Fatalf("expected zero-supply rejection")
	}
}
