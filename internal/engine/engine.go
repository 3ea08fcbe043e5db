// Package engine wires the feed connections, the ingest callback and the
// drain scheduler into one process-lifetime unit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"big-trades/internal/aggregate"
	"big-trades/internal/classify"
	"big-trades/internal/feed"
	"big-trades/internal/ingest"
	"big-trades/internal/metrics"
	"big-trades/internal/scheduler"
	"big-trades/internal/sink"
	"big-trades/internal/state"
	"big-trades/internal/trade"
)

type Config struct {
	Symbols  []string
	Dialer   feed.Dialer
	Feed     feed.Options // Logger, Status and Metrics are taken from below
	Shards   int
	Bucketer trade.Bucketer
	Tiers    []classify.Tier
	Interval time.Duration

	Recorder sink.TradeRecorder
	Emitter  sink.AlertEmitter

	Logger  *slog.Logger
	Status  *state.Registry
	Metrics *metrics.Metrics
}

type Engine struct {
	conns     []*feed.Connection
	table     *aggregate.Table
	ingestor  *ingest.Ingestor
	scheduler *scheduler.Scheduler
	status    *state.Registry
	log       *slog.Logger
}

func New(cfg Config) (*Engine, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("no symbols configured")
	}
	if cfg.Dialer == nil {
		return nil, errors.New("nil dialer")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Status == nil {
		cfg.Status = state.NewRegistry()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Bucketer.Location == nil {
		cfg.Bucketer = trade.NewBucketer(cfg.Bucketer.Granularity, nil, cfg.Bucketer.BuyerMakerSide, cfg.Bucketer.QuoteSuffix)
	}
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = classify.DefaultTiers()
	}
	cls, err := classify.New(cfg.Tiers)
	if err != nil {
		return nil, fmt.Errorf("tiers: %w", err)
	}

	e := &Engine{
		table:  aggregate.NewTable(cfg.Shards),
		status: cfg.Status,
		log:    cfg.Logger,
	}
	e.ingestor = ingest.New(e.table, cfg.Bucketer, cfg.Recorder, cfg.Status, cfg.Metrics, cfg.Logger)
	e.scheduler = scheduler.New(e.table, cls, cfg.Bucketer, cfg.Emitter, cfg.Interval,
		scheduler.WithLogger(cfg.Logger),
		scheduler.WithMetrics(cfg.Metrics),
		scheduler.WithStatus(cfg.Status),
	)

	seen := map[string]bool{}
	for _, raw := range cfg.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			return nil, errors.New("empty symbol")
		}
		if seen[sym] {
			return nil, fmt.Errorf("duplicate symbol %s", sym)
		}
		seen[sym] = true

		opts := cfg.Feed
		opts.Logger = cfg.Logger.With(slog.String("symbol", sym))
		opts.Status = cfg.Status
		opts.Metrics = cfg.Metrics
		e.conns = append(e.conns, feed.NewConnection(sym, cfg.Dialer, opts))
		cfg.Status.Track(sym)
	}
	return e, nil
}

func (e *Engine) Status() *state.Registry { return e.status }

// Run blocks until ctx is cancelled. Connections stop first; the scheduler
// keeps ticking until they have returned and then performs a final drain,
// so no increment made before shutdown is lost.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", slog.Int("symbols", len(e.conns)))

	feeds, feedCtx := errgroup.WithContext(ctx)
	onEvent := e.ingestor.OnEvent(ctx)
	for _, c := range e.conns {
		c := c
		feeds.Go(func() error {
			return quiet(c.Run(feedCtx, onEvent))
		})
	}

	schedCtx, stopSched := context.WithCancel(context.WithoutCancel(ctx))
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = e.scheduler.Run(schedCtx)
	}()

	err := feeds.Wait()
	stopSched()
	<-schedDone
	e.log.Info("engine stopped", slog.Int64("alerts", e.status.Alerts()))
	return err
}

func quiet(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
