package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/exchange"
	"lp-hedge-bot/internal/exchange/paper"
	"lp-hedge-bot/internal/exec"
	"lp-hedge-bot/internal/metrics"
	"lp-hedge-bot/internal/pool"
	"lp-hedge-bot/internal/state"

	"go.uber.org/zap"
)

type stubSource struct {
	mu     sync.Mutex
	name   string
	hedges map[string]float64
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Hedges(ctx context.Context, lpAmount float64) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]float64, len(s.hedges))
	for symbol, exposure := range s.hedges {
		out[symbol] = exposure
	}
	return out, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// flakyGateway fails price reads for one symbol and passes everything
// else through.
type flakyGateway struct {
	exchange.Gateway
	failSymbol string
}

func (f *flakyGateway) Price(ctx context.Context, symbol string) (float64, error) {
	if symbol == f.failSymbol {
		return 0, errors.New("feed down")
	}
	return f.Gateway.Price(ctx, symbol)
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []alerts.Message
}

func (r *recordingNotifier) Send(ctx context.Context, msg alerts.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, msg := range r.msgs {
		out[i] = msg.Title
	}
	return out
}

func testConfig(symbols ...string) *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Symbols:                symbols,
			CheckInterval:          time.Minute,
			MaxConsecutiveFailures: 5,
		},
		Thresholds: config.ThresholdConfig{MinUSD: 50, MaxUSD: 500, StepUSD: 50},
		Orders: config.OrderConfig{
			PriceOffsetPct: 0.2,
			CloseRatioPct:  40,
			Timeout:        time.Hour,
		},
		Cooldown: config.CooldownConfig{AfterFill: time.Minute, FillLookback: time.Hour},
		Pools:    config.PoolsConfig{JLP: config.PoolConfig{Amount: 100}},
	}
}

func newTestApp(cfg *config.Config, gw exchange.Gateway, src pool.Source) (*App, *memoryStore, *recordingNotifier) {
	store := &memoryStore{data: make(map[string]string)}
	notifier := &recordingNotifier{}
	return &App{
		cfg:      cfg,
		log:      zap.NewNop(),
		store:    store,
		gateway:  gw,
		sources:  []pool.Source{src},
		executor: exec.New(gw, nil, metrics.NewNoop(), zap.NewNop(), exec.WithConfirmDelay(time.Millisecond)),
		notifier: notifier,
		metrics:  metrics.NewNoop(),
		failures: make(map[string]int),
		tracked:  make(state.Snapshot),
		reports:  make(map[string]symbolStatus),
	}, store, notifier
}

func TestRunCyclePlacesHedgeOrder(t *testing.T) {
	gw := paper.New(zap.NewNop())
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0}}
	app, _, _ := newTestApp(testConfig("SOL"), gw, src)

	if err := app.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	st := app.trackedState("SOL")
	if math.Abs(st.Offset-1.0) > 1e-9 {
		t.Fatalf("expected offset 1.0, got %f", st.Offset)
	}
	if math.Abs(st.CostBasis-200.0) > 1e-9 {
		t.Fatalf("expected cost basis 200, got %f", st.CostBasis)
	}

	open, err := gw.OpenOrders(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 resting order, got %d", len(open))
	}
	order := open[0]
	if order.Side != exchange.SideSell {
		t.Fatalf("expected sell order, got %s", order.Side)
	}
	if math.Abs(order.Size-0.4) > 1e-9 {
		t.Fatalf("expected size 0.4, got %f", order.Size)
	}
	if math.Abs(order.Price-200.4) > 1e-9 {
		t.Fatalf("expected price 200.4, got %f", order.Price)
	}
}

func TestRunCycleHoldsAfterFill(t *testing.T) {
	gw := paper.New(zap.NewNop())
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0}}
	app, _, _ := newTestApp(testConfig("SOL"), gw, src)

	ctx := context.Background()
	if err := app.runCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	open, err := gw.OpenOrders(ctx, "SOL")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 order after first cycle, got %d", len(open))
	}
	if err := gw.FillOrder(open[0].ID); err != nil {
		t.Fatalf("fill order: %v", err)
	}

	if err := app.runCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	st := app.trackedState("SOL")
	if math.Abs(st.Offset-0.6) > 1e-9 {
		t.Fatalf("expected offset 0.6 after partial close, got %f", st.Offset)
	}
	open, err = gw.OpenOrders(ctx, "SOL")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected cooldown to hold off new orders, got %d", len(open))
	}
}

func TestRunCyclePausedSkipsWork(t *testing.T) {
	gw := paper.New(zap.NewNop())
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0}}
	app, _, _ := newTestApp(testConfig("SOL"), gw, src)
	app.setPaused(true)

	if err := app.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if got := src.callCount(); got != 0 {
		t.Fatalf("expected no pool fetches while paused, got %d", got)
	}
	open, err := gw.OpenOrders(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no orders while paused, got %d", len(open))
	}
}

func TestRunCycleIsolatesFailingSymbol(t *testing.T) {
	paperGW := paper.New(zap.NewNop())
	gw := &flakyGateway{Gateway: paperGW, failSymbol: "SOL"}
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0, "ETH": 0.05}}
	app, _, _ := newTestApp(testConfig("SOL", "ETH"), gw, src)

	if err := app.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if app.failures["SOL"] != 1 {
		t.Fatalf("expected 1 consecutive failure for SOL, got %d", app.failures["SOL"])
	}
	if app.failures["ETH"] != 0 {
		t.Fatalf("expected no failures for ETH, got %d", app.failures["ETH"])
	}
	open, err := paperGW.OpenOrders(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected ETH hedge order despite SOL failure, got %d", len(open))
	}
}

func TestRunCycleEscalatesRepeatedFailures(t *testing.T) {
	paperGW := paper.New(zap.NewNop())
	gw := &flakyGateway{Gateway: paperGW, failSymbol: "SOL"}
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0}}
	cfg := testConfig("SOL")
	cfg.Engine.MaxConsecutiveFailures = 2
	app, _, notifier := newTestApp(cfg, gw, src)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := app.runCycle(ctx); err != nil {
			t.Fatalf("runCycle %d: %v", i, err)
		}
	}
	var escalations int
	for _, title := range notifier.titles() {
		if title == "Symbol pipeline failing" {
			escalations++
		}
	}
	if escalations != 2 {
		t.Fatalf("expected 2 escalation alerts after 4 failed cycles, got %d", escalations)
	}
}

func TestRunCycleSavesSnapshot(t *testing.T) {
	gw := paper.New(zap.NewNop())
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0}}
	app, store, _ := newTestApp(testConfig("SOL"), gw, src)

	if err := app.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	raw, ok, err := store.Get(context.Background(), state.SnapshotKey)
	if err != nil {
		t.Fatalf("snapshot get: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot saved")
	}
	var snap state.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if math.Abs(snap["SOL"].Offset-1.0) > 1e-9 {
		t.Fatalf("expected snapshot offset 1.0, got %f", snap["SOL"].Offset)
	}
}

func TestRunCycleInitialOffsetCorrectsPosition(t *testing.T) {
	gw := paper.New(zap.NewNop())
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0}}
	cfg := testConfig("SOL")
	cfg.Engine.InitialOffsets = map[string]float64{"SOL": -1.0}
	app, _, _ := newTestApp(cfg, gw, src)

	if err := app.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	st := app.trackedState("SOL")
	if math.Abs(st.Offset) > 1e-9 {
		t.Fatalf("expected offset 0 with initial offset applied, got %f", st.Offset)
	}
	open, err := gw.OpenOrders(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("open orders: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no orders for a covered position, got %d", len(open))
	}
}

func TestRunCyclePoolFailureAbandonsCycle(t *testing.T) {
	gw := paper.New(zap.NewNop())
	src := &stubSource{name: "jlp", err: errors.New("rpc down")}
	app, _, _ := newTestApp(testConfig("SOL"), gw, src)

	if err := app.runCycle(context.Background()); err == nil {
		t.Fatalf("expected pool failure to fail the cycle")
	}
	if app.failures["SOL"] != 0 {
		t.Fatalf("expected no per-symbol failures on pool fetch error, got %d", app.failures["SOL"])
	}
}

func TestRestoreSnapshotResumesOffsets(t *testing.T) {
	gw := paper.New(zap.NewNop())
	src := &stubSource{name: "jlp", hedges: map[string]float64{"SOL": 1.0}}
	app, store, _ := newTestApp(testConfig("SOL"), gw, src)

	ctx := context.Background()
	saved := state.Snapshot{"SOL": {Offset: 0.75, CostBasis: 198.5, UpdatedAtMS: 1}}
	if err := state.SaveSnapshot(ctx, store, saved); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	app.restoreSnapshot(ctx)
	st := app.trackedState("SOL")
	if math.Abs(st.Offset-0.75) > 1e-9 || math.Abs(st.CostBasis-198.5) > 1e-9 {
		t.Fatalf("expected restored state, got %+v", st)
	}
}

func TestLatestFillTime(t *testing.T) {
	now := time.Now()
	fills := []exchange.Fill{
		{Time: now.Add(-3 * time.Minute)},
		{Time: now.Add(-time.Minute)},
		{Time: now.Add(-2 * time.Minute)},
	}
	got := latestFillTime(fills)
	if !got.Equal(now.Add(-time.Minute)) {
		t.Fatalf("expected latest fill time, got %s", got)
	}
	if !latestFillTime(nil).IsZero() {
		t.Fatalf("expected zero time for no fills")
	}
}
