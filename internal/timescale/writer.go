// Package timescale streams cycle snapshots and executed actions into
// TimescaleDB hypertables for offline analysis. Writes are buffered and
// best-effort: a full queue or a failed insert never blocks the engine.
package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"lp-hedge-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// CycleRow is one symbol's reconciled state at the end of a cycle.
type CycleRow struct {
	Time       time.Time
	Symbol     string
	Ideal      float64
	Actual     float64
	Offset     float64
	CostBasis  float64
	Price      float64
	OffsetUSD  float64
	Zone       string
	Cooldown   string
	OpenOrders int
}

// ActionRow is one executed decision action.
type ActionRow struct {
	Time     time.Time
	ActionID string
	Symbol   string
	Kind     string
	Side     string
	Size     float64
	Price    float64
	OrderID  string
	Reason   string
	DryRun   bool
	Success  bool
	Error    string
}

type Writer struct {
	db          *sql.DB
	log         *zap.Logger
	schema      string
	cycles      chan CycleRow
	actions     chan ActionRow
	started     atomic.Bool
	dropCycles  atomic.Uint64
	dropActions atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		cycles:  make(chan CycleRow, queueSize),
		actions: make(chan ActionRow, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueCycle(row CycleRow) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- row:
		return
	default:
		if w.dropCycles.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale cycle queue full")
		}
	}
}

func (w *Writer) EnqueueAction(row ActionRow) {
	if w == nil {
		return
	}
	select {
	case w.actions <- row:
		return
	default:
		if w.dropActions.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale action queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.cycles:
			w.writeCycle(ctx, row)
		case row := <-w.actions:
			w.writeAction(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		ideal DOUBLE PRECISION NOT NULL,
		actual DOUBLE PRECISION NOT NULL,
		offset_qty DOUBLE PRECISION NOT NULL,
		cost_basis DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		offset_usd DOUBLE PRECISION NOT NULL,
		zone TEXT NOT NULL,
		cooldown TEXT NOT NULL,
		open_orders INTEGER NOT NULL
	)`, w.table("hedge_cycles"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		action_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		order_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		dry_run BOOLEAN NOT NULL,
		success BOOLEAN NOT NULL,
		error TEXT NOT NULL
	)`, w.table("hedge_actions"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("hedge_cycles"))); err != nil && w.log != nil {
		w.log.Warn("timescale hedge_cycles hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("hedge_actions"))); err != nil && w.log != nil {
		w.log.Warn("timescale hedge_actions hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeCycle(ctx context.Context, row CycleRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, ideal, actual, offset_qty, cost_basis, price, offset_usd, zone, cooldown, open_orders
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
	)`, w.table("hedge_cycles"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Symbol,
		row.Ideal,
		row.Actual,
		row.Offset,
		row.CostBasis,
		row.Price,
		row.OffsetUSD,
		row.Zone,
		row.Cooldown,
		row.OpenOrders,
	); err != nil && w.log != nil {
		w.log.Warn("timescale cycle insert failed", zap.Error(err))
	}
}

func (w *Writer) writeAction(ctx context.Context, row ActionRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, action_id, symbol, kind, side, size, price, order_id, reason, dry_run, success, error
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
	)`, w.table("hedge_actions"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.ActionID,
		row.Symbol,
		row.Kind,
		row.Side,
		row.Size,
		row.Price,
		row.OrderID,
		row.Reason,
		row.DryRun,
		row.Success,
		row.Error,
	); err != nil && w.log != nil {
		w.log.Warn("timescale action insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
