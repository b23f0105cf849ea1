package pool

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
)

type stubSource struct {
	name   string
	hedges map[string]float64
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Hedges(ctx context.Context, lpAmount float64) (map[string]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.hedges, nil
}

func TestFetchMergesAndNegates(t *testing.T) {
	jlp := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 30, "WBTC": 1}}
	alp := &stubSource{name: "alp", hedges: map[string]float64{"SOL": 5.5, "WBTC": 0.5, "BONK": 10}}

	merged, err := Fetch(context.Background(), []Source{jlp, alp},
		map[string]float64{"jlp": 500, "alp": 100}, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := merged["SOL"]; math.Abs(got-(-35.5)) > 1e-9 {
		t.Fatalf("expected SOL -35.5, got %f", got)
	}
	if got := merged["BTC"]; math.Abs(got-(-1.5)) > 1e-9 {
		t.Fatalf("expected WBTC exposure merged into BTC -1.5, got %f", got)
	}
	if got := merged["BONK"]; got != -10 {
		t.Fatalf("expected BONK -10, got %f", got)
	}
	if _, ok := merged["WBTC"]; ok {
		t.Fatalf("WBTC must be aliased away, got %v", merged)
	}
}

func TestFetchSkipsZeroAmounts(t *testing.T) {
	jlp := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1}}
	alp := &stubSource{name: "alp", hedges: map[string]float64{"SOL": 2}}

	merged, err := Fetch(context.Background(), []Source{jlp, alp},
		map[string]float64{"jlp": 100}, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if alp.calls != 0 {
		t.Fatalf("zero-amount pool must not be queried")
	}
	if got := merged["SOL"]; got != -1 {
		t.Fatalf("expected SOL -1, got %f", got)
	}
}

func TestFetchPropagatesFailure(t *testing.T) {
	boom := errors.New("rpc down")
	jlp := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1}}
	alp := &stubSource{name: "alp", err: boom}

	if _, err := Fetch(context.Background(), []Source{jlp, alp},
		map[string]float64{"jlp": 1, "alp": 1}, zap.NewNop()); !errors.Is(err, boom) {
		t.Fatalf("expected the source failure, got %v", err)
	}
}

func TestFetchNoSources(t *testing.T) {
	merged, err := Fetch(context.Background(), nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(merged) != 0 {
		t.Fatalf("expected empty merge, got %v", merged)
	}
}

func TestU64ReadsLittleEndian(t *testing.T) {
	data := []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	if got := U64(data, 0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := U64(data, 8); got != 511 {
		t.Fatalf("expected 511, got %d", got)
	}
}
