package ingest

import (
	"context"
	"log/slog"

	"big-trades/internal/aggregate"
	"big-trades/internal/metrics"
	"big-trades/internal/sink"
	"big-trades/internal/state"
	"big-trades/internal/trade"
)

// Ingestor is the per-event callback shared by every feed connection: it
// adds the trade to its bucket and hands it to the trade log.
type Ingestor struct {
	table    *aggregate.Table
	bucketer trade.Bucketer
	recorder sink.TradeRecorder
	status   *state.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func New(table *aggregate.Table, bk trade.Bucketer, rec sink.TradeRecorder, status *state.Registry, m *metrics.Metrics, logger *slog.Logger) *Ingestor {
	if rec == nil {
		rec = sink.Discard{}
	}
	if status == nil {
		status = state.NewRegistry()
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{table: table, bucketer: bk, recorder: rec, status: status, metrics: m, log: logger}
}

// Handle processes one event. It never blocks beyond the table's shard lock
// and the recorder call; recorder failures are logged, not retried.
func (in *Ingestor) Handle(ctx context.Context, ev trade.Event) {
	in.table.Increment(in.bucketer.Key(ev), ev.Notional())

	if err := in.recorder.Record(ctx, ev); err != nil {
		in.metrics.RecordErrorsTotal.WithLabelValues(ev.Symbol).Inc()
		in.log.Error("trade log write failed",
			slog.String("symbol", ev.Symbol),
			slog.Int64("agg_trade_id", ev.SequenceID),
			slog.String("err", err.Error()),
		)
	}

	in.status.Observe(ev.Symbol, ev.TradeTime)
	in.metrics.EventsTotal.WithLabelValues(ev.Symbol).Inc()
	in.metrics.LastEventSeconds.WithLabelValues(ev.Symbol).Set(float64(ev.TradeTime.UnixMilli()) / 1000)
}

// OnEvent adapts Handle to a feed connection's callback.
func (in *Ingestor) OnEvent(ctx context.Context) func(trade.Event) {
	return func(ev trade.Event) { in.Handle(ctx, ev) }
}
