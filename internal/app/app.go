// Package app wires the hedge engine together and drives the
// reconciliation loop: pool exposure in, decision actions out, once per
// configured interval.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lp-hedge-bot/internal/alerts"
	"lp-hedge-bot/internal/breaker"
	"lp-hedge-bot/internal/config"
	"lp-hedge-bot/internal/exchange"
	"lp-hedge-bot/internal/exchange/hl"
	"lp-hedge-bot/internal/exchange/paper"
	"lp-hedge-bot/internal/exec"
	"lp-hedge-bot/internal/hedge"
	"lp-hedge-bot/internal/metrics"
	"lp-hedge-bot/internal/pool"
	"lp-hedge-bot/internal/pool/alp"
	"lp-hedge-bot/internal/pool/jlp"
	"lp-hedge-bot/internal/solana"
	"lp-hedge-bot/internal/state"
	"lp-hedge-bot/internal/state/sqlite"
	"lp-hedge-bot/internal/timescale"
)

const flatEps = 1e-8

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    state.Store
	gateway  exchange.Gateway
	sources  []pool.Source
	executor *exec.Executor
	notifier alerts.Notifier
	console  *alerts.Telegram
	metrics  *metrics.Metrics
	prom     *metrics.Prometheus
	history  *timescale.Writer

	// gatewayStart warms backend caches before the first cycle. Set for
	// backends that stream market data; nil otherwise.
	gatewayStart func(context.Context) error

	// failures is only touched from the cycle loop goroutine.
	failures map[string]int

	opsMu          sync.RWMutex
	tracked        state.Snapshot
	reports        map[string]symbolStatus
	paused         bool
	bandsOverride  *bandSettings
	operatorWarned bool
}

// symbolStatus is the last reconciled view of one symbol, kept for the
// operator console so /status never has to touch the exchange.
type symbolStatus struct {
	Offset     float64
	CostBasis  float64
	Price      float64
	OffsetUSD  float64
	Zone       hedge.Zone
	Cooldown   hedge.CooldownStatus
	OpenOrders int
	UpdatedAt  time.Time
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	var breakers *breaker.Set
	if cfg.Breakers.EnabledValue() {
		breakers = breaker.NewSet(log)
	}

	var chain pool.ChainReader = solana.NewClient(cfg.Solana.RPCURL, solana.WithTimeout(cfg.Solana.Timeout))
	if breakers != nil {
		chain = breaker.WrapChainReader(chain, breakers.SolanaRPC)
	}
	sources := []pool.Source{jlp.New(chain, log), alp.New(chain, log)}

	var gateway exchange.Gateway
	var gatewayStart func(context.Context) error
	switch cfg.Exchange.Backend {
	case "paper":
		gateway = paper.New(log)
	default:
		hlGateway, err := hl.New(cfg.Exchange, store, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		gateway = hlGateway
		gatewayStart = hlGateway.Start
	}
	if breakers != nil {
		gateway = breaker.WrapGateway(gateway, breakers.Exchange)
	}

	var channels []alerts.Notifier
	if cfg.Alerts.Pushover.Enabled {
		channels = append(channels, alerts.NewPushover(cfg.Alerts.Pushover, log))
	}
	var console *alerts.Telegram
	if cfg.Alerts.Telegram.Enabled {
		console = alerts.NewTelegram(cfg.Alerts.Telegram, log)
		channels = append(channels, console)
	}
	var notifier alerts.Notifier = alerts.NewSender(log, channels...)
	if breakers != nil {
		notifier = breaker.WrapNotifier(notifier, breakers.Notification)
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	history, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = gateway.Close()
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}

	executor := exec.New(gateway, notifier, m, log,
		exec.WithDryRun(cfg.Engine.DryRun),
		exec.WithConfirmDelay(cfg.Orders.ConfirmDelay),
		exec.WithConfirmRetries(cfg.Orders.ConfirmRetries),
	)

	return &App{
		cfg:          cfg,
		log:          log,
		store:        store,
		gateway:      gateway,
		gatewayStart: gatewayStart,
		sources:      sources,
		executor:     executor,
		notifier:     notifier,
		console:      console,
		metrics:      m,
		prom:         prom,
		history:      history,
		failures:     make(map[string]int),
		tracked:      make(state.Snapshot),
		reports:      make(map[string]symbolStatus),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.gateway.Close()
	if a.history != nil {
		a.history.Start(ctx)
		defer a.history.Close()
	}

	if a.gatewayStart != nil {
		if err := a.gatewayStart(ctx); err != nil {
			return fmt.Errorf("exchange start: %w", err)
		}
	}
	if a.cfg.State.Resume {
		a.restoreSnapshot(ctx)
	}
	a.startMetricsServer(ctx)
	a.startOperator(ctx)

	a.log.Info("engine started",
		zap.Strings("symbols", a.cfg.Engine.Symbols),
		zap.Duration("interval", a.cfg.Engine.CheckInterval),
		zap.Bool("dry_run", a.cfg.Engine.DryRun),
	)

	// First reconciliation immediately, then on the ticker.
	if err := a.runCycle(ctx); err != nil {
		a.log.Warn("cycle failed", zap.Error(err))
	}
	ticker := time.NewTicker(a.cfg.Engine.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.runCycle(ctx); err != nil {
				a.log.Warn("cycle failed", zap.Error(err))
			}
		}
	}
}

// runCycle reconciles every configured symbol once. Symbols fail
// independently: one broken feed must not stall the hedges of the
// others. Only a failed pool fetch abandons the whole cycle, because
// trading on a partial view of the pools would unwind live hedges.
func (a *App) runCycle(ctx context.Context) error {
	if a.isPaused() {
		a.log.Info("trading paused, skipping cycle")
		return nil
	}
	start := time.Now()
	ideals, err := pool.Fetch(ctx, a.sources, a.poolAmounts(), a.log)
	if err != nil {
		return fmt.Errorf("pool fetch: %w", err)
	}

	now := time.Now().UTC()
	var failed, executed int
	for _, symbol := range a.cfg.Engine.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		report, err := a.processSymbol(ctx, symbol, ideals[symbol], now)
		if err != nil {
			failed++
			a.symbolFailed(ctx, symbol, err)
			continue
		}
		executed += len(report.Results)
		a.recordHistory(now, report)
		if execErr := firstError(report.Results); execErr != nil {
			failed++
			a.symbolFailed(ctx, symbol, execErr)
		} else {
			a.failures[symbol] = 0
		}
	}

	a.saveSnapshot(ctx)
	a.metrics.CyclesCompleted.Inc()
	a.log.Info("cycle complete",
		zap.Int("symbols", len(a.cfg.Engine.Symbols)),
		zap.Int("failed", failed),
		zap.Int("actions", executed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// symbolReport carries one symbol's reconciled state and the actions it
// produced through to logging and history.
type symbolReport struct {
	Symbol     string
	Ideal      float64
	Actual     float64
	Offset     float64
	CostBasis  float64
	Price      float64
	OffsetUSD  float64
	Zone       hedge.Zone
	Cooldown   hedge.CooldownStatus
	OpenOrders int
	Results    []exec.Result
}

func (a *App) processSymbol(ctx context.Context, symbol string, ideal float64, now time.Time) (symbolReport, error) {
	var (
		price    float64
		position float64
		orders   []exchange.Order
		fills    []exchange.Fill
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if price, err = a.gateway.Price(gctx, symbol); err != nil {
			return fmt.Errorf("price: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if position, err = a.gateway.Position(gctx, symbol); err != nil {
			return fmt.Errorf("position: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if orders, err = a.gateway.OpenOrders(gctx, symbol); err != nil {
			return fmt.Errorf("open orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if fills, err = a.gateway.RecentFills(gctx, symbol, a.cfg.Cooldown.FillLookback); err != nil {
			return fmt.Errorf("recent fills: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return symbolReport{}, fmt.Errorf("%s: %w", symbol, err)
	}

	// Positions held outside the engine's view are folded in before
	// reconciling, so a manual hedge does not read as an offset.
	actual := position + a.cfg.Engine.InitialOffsets[symbol]

	prev := a.trackedState(symbol)
	offset, costBasis, err := hedge.Track(ideal, actual, price, prev.Offset, prev.CostBasis)
	if err != nil {
		return symbolReport{}, fmt.Errorf("%s: track: %w", symbol, err)
	}
	a.setTracked(symbol, state.AssetState{Offset: offset, CostBasis: costBasis, UpdatedAtMS: now.UnixMilli()})

	if math.Abs(prev.Offset) >= flatEps && math.Abs(offset) < flatEps {
		a.log.Info("offset fully closed",
			zap.String("symbol", symbol),
			zap.Float64("realized_pnl", hedge.RealizedPNL(prev.Offset, prev.CostBasis, price)),
		)
	}

	thresholds, orderCfg := a.bandsConfig()
	offsetUSD := math.Abs(offset) * price
	zone := hedge.Classify(offsetUSD, thresholds)
	open := toOpenOrders(orders)
	prevZone, hasPrev := hedge.PreviousZone(open, price, thresholds, orderCfg.CloseRatioPct)
	cooldown := hedge.EvaluateCooldown(latestFillTime(fills), now, a.cfg.Cooldown.AfterFill, prevZone, hasPrev, zone)

	actions := hedge.Decide(hedge.DecisionInput{
		Symbol:          symbol,
		Offset:          offset,
		CostBasis:       costBasis,
		Price:           price,
		Zone:            zone,
		PreviousZone:    prevZone,
		HasPreviousZone: hasPrev,
		Cooldown:        cooldown,
		OpenOrders:      open,
		Now:             now,
	}, orderCfg)
	results := a.executor.ExecuteAll(ctx, actions)

	report := symbolReport{
		Symbol:     symbol,
		Ideal:      ideal,
		Actual:     actual,
		Offset:     offset,
		CostBasis:  costBasis,
		Price:      price,
		OffsetUSD:  offsetUSD,
		Zone:       zone,
		Cooldown:   cooldown,
		OpenOrders: len(open),
		Results:    results,
	}
	a.setReport(symbol, symbolStatus{
		Offset:     offset,
		CostBasis:  costBasis,
		Price:      price,
		OffsetUSD:  offsetUSD,
		Zone:       zone,
		Cooldown:   cooldown,
		OpenOrders: len(open),
		UpdatedAt:  now,
	})
	a.log.Info("symbol reconciled",
		zap.String("symbol", symbol),
		zap.Float64("ideal", ideal),
		zap.Float64("actual", actual),
		zap.Float64("offset", offset),
		zap.Float64("offset_usd", offsetUSD),
		zap.Float64("cost_basis", costBasis),
		zap.String("zone", zone.String()),
		zap.String("cooldown", string(cooldown)),
		zap.Int("open_orders", len(open)),
		zap.Int("actions", len(results)),
	)
	return report, nil
}

func (a *App) symbolFailed(ctx context.Context, symbol string, err error) {
	a.metrics.SymbolFailures.Inc()
	a.failures[symbol]++
	count := a.failures[symbol]
	a.log.Warn("symbol cycle failed",
		zap.String("symbol", symbol),
		zap.Int("consecutive", count),
		zap.Error(err),
	)
	bound := a.cfg.Engine.MaxConsecutiveFailures
	if bound > 0 && count%bound == 0 {
		if sendErr := a.notifier.Send(ctx, alerts.SymbolFailing(symbol, count, err)); sendErr != nil {
			a.log.Warn("alert send failed", zap.Error(sendErr))
		}
	}
}

func (a *App) poolAmounts() map[string]float64 {
	return map[string]float64{
		"jlp": a.cfg.Pools.JLP.Amount,
		"alp": a.cfg.Pools.ALP.Amount,
	}
}

func (a *App) trackedState(symbol string) state.AssetState {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.tracked[symbol]
}

func (a *App) setTracked(symbol string, st state.AssetState) {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.tracked[symbol] = st
}

func (a *App) setReport(symbol string, st symbolStatus) {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.reports[symbol] = st
}

func (a *App) saveSnapshot(ctx context.Context) {
	a.opsMu.RLock()
	snap := make(state.Snapshot, len(a.tracked))
	for symbol, st := range a.tracked {
		snap[symbol] = st
	}
	a.opsMu.RUnlock()
	if err := state.SaveSnapshot(ctx, a.store, snap); err != nil {
		a.log.Warn("snapshot save failed", zap.Error(err))
	}
}

func (a *App) restoreSnapshot(ctx context.Context) {
	snap, ok, err := state.LoadSnapshot(ctx, a.store)
	if err != nil {
		a.log.Warn("snapshot load failed, starting fresh", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	a.opsMu.Lock()
	a.tracked = snap
	a.opsMu.Unlock()
	a.log.Info("resumed tracked offsets", zap.Int("symbols", len(snap)))
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil || !a.cfg.Metrics.EnabledValue() {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics server listening",
		zap.String("address", a.cfg.Metrics.Address),
		zap.String("path", a.cfg.Metrics.Path),
	)
}

func toOpenOrders(orders []exchange.Order) []hedge.OpenOrder {
	if len(orders) == 0 {
		return nil
	}
	open := make([]hedge.OpenOrder, 0, len(orders))
	for _, o := range orders {
		open = append(open, hedge.OpenOrder{
			ID:        o.ID,
			Side:      hedge.Side(o.Side),
			Size:      o.Size,
			Price:     o.Price,
			CreatedAt: o.CreatedAt,
		})
	}
	return open
}

func latestFillTime(fills []exchange.Fill) time.Time {
	var last time.Time
	for _, f := range fills {
		if f.Time.After(last) {
			last = f.Time
		}
	}
	return last
}

func firstError(results []exec.Result) error {
	for _, res := range results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

func sortedSymbols(m map[string]symbolStatus) []string {
	symbols := make([]string, 0, len(m))
	for symbol := range m {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}
