// Package pgsink keeps a Postgres copy of the trade log.
package pgsink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"big-trades/internal/trade"
)

// Schema creates the trades table if needed.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	symbol         TEXT        NOT NULL,
	agg_trade_id   BIGINT      NOT NULL,
	trade_time     TIMESTAMPTZ NOT NULL,
	event_time     TIMESTAMPTZ NOT NULL,
	price          NUMERIC     NOT NULL,
	quantity       NUMERIC     NOT NULL,
	usd_size       NUMERIC     NOT NULL,
	is_buyer_maker BOOLEAN     NOT NULL,
	PRIMARY KEY (symbol, agg_trade_id)
)`

const insertTrade = `
INSERT INTO trades (symbol, agg_trade_id, trade_time, event_time, price, quantity, usd_size, is_buyer_maker)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (symbol, agg_trade_id) DO NOTHING`

// Config contains configuration for the batch writer.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// Stats are the writer's counters.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// tradeRow is one row of the trades table.
type tradeRow struct {
	Symbol       string
	AggTradeID   int64
	TradeTime    time.Time
	EventTime    time.Time
	Price        string
	Quantity     string
	USDSize      string
	IsBuyerMaker bool
}

// TradeWriter batches trades into the trades table. Record only appends
// to the in-memory batch; a failed flush drops that batch.
type TradeWriter struct {
	cfg    Config
	db     *pgxpool.Pool
	logger *slog.Logger

	batch   []tradeRow
	batchMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Connect opens a pool and makes sure the schema exists.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return pool, nil
}

func NewTradeWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *TradeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &TradeWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]tradeRow, 0, cfg.BatchSize),
	}
}

// Start runs the periodic flush until Stop.
func (w *TradeWriter) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.flushLoop()
	w.logger.Info("trade writer started",
		slog.Int("batch_size", w.cfg.BatchSize),
		slog.Duration("flush_interval", w.cfg.FlushInterval),
	)
}

// Stop halts the flush loop and writes what is left.
func (w *TradeWriter) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.flush(ctx)
	w.logger.Info("trade writer stopped")
}

func (w *TradeWriter) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *TradeWriter) Record(ctx context.Context, ev trade.Event) error {
	w.batchMu.Lock()
	w.batch = append(w.batch, transform(ev))
	full := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if full {
		w.flush(ctx)
	}
	return nil
}

func transform(ev trade.Event) tradeRow {
	return tradeRow{
		Symbol:       ev.Symbol,
		AggTradeID:   ev.SequenceID,
		TradeTime:    ev.TradeTime.UTC(),
		EventTime:    ev.EventTime.UTC(),
		Price:        ev.Price.String(),
		Quantity:     ev.Quantity.String(),
		USDSize:      ev.Notional().String(),
		IsBuyerMaker: ev.IsBuyerMaker,
	}
}

func (w *TradeWriter) flushLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *TradeWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]tradeRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if ctx.Err() != nil {
		// shutting down; the final flush still deserves a chance
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, batch)
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if err != nil {
		w.stats.Errors++
		w.logger.Error("batch insert failed", slog.String("err", err.Error()), slog.Int("count", len(batch)))
		return
	}
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.logger.Debug("flushed trades",
		slog.Int("count", len(batch)),
		slog.Int("conflicts", conflicts),
		slog.Duration("duration", time.Since(start)),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TradeWriter) batchInsert(ctx context.Context, rows []tradeRow) (conflicts int, err error) {
	if w.db == nil {
		return 0, fmt.Errorf("no database pool")
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertTrade, r.Symbol, r.AggTradeID, r.TradeTime, r.EventTime, r.Price, r.Quantity, r.USDSize, r.IsBuyerMaker)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
