// Package scheduler drains the bucket table on a fixed tick, classifies
// each bucket and forwards the non-suppressed ones as alerts.
package scheduler

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"big-trades/internal/alert"
	"big-trades/internal/classify"
	"big-trades/internal/metrics"
	"big-trades/internal/sink"
	"big-trades/internal/state"
	"big-trades/internal/trade"
)

const DefaultInterval = time.Second

// Drainer is the table side the scheduler needs.
type Drainer interface {
	DrainAll() []trade.Bucket
	Len() int
}

type Scheduler struct {
	table      Drainer
	classifier *classify.Classifier
	bucketer   trade.Bucketer
	emitter    sink.AlertEmitter
	interval   time.Duration

	log     *slog.Logger
	metrics *metrics.Metrics
	status  *state.Registry
	now     func() time.Time
}

// Option configures Scheduler construction parameters.
type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithStatus(r *state.Registry) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.status = r
		}
	}
}

// WithClock overrides the alert timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(table Drainer, c *classify.Classifier, bk trade.Bucketer, em sink.AlertEmitter, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if em == nil {
		em = sink.Discard{}
	}
	s := &Scheduler{
		table:      table,
		classifier: c,
		bucketer:   bk,
		emitter:    em,
		interval:   interval,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.status == nil {
		s.status = state.NewRegistry()
	}
	return s
}

// Run flushes every interval until ctx is done, then flushes once more so
// the last partial bucket is not lost.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush runs one drain-classify-emit cycle and returns the alerts it
// emitted. The table's iteration order is unspecified; the snapshot is
// sorted by (bucket, symbol, side) so output is deterministic.
func (s *Scheduler) Flush(ctx context.Context) []alert.Alert {
	s.metrics.OpenBuckets.Set(float64(s.table.Len()))
	buckets := s.table.DrainAll()
	if len(buckets) == 0 {
		return nil
	}
	s.metrics.BucketsDrainedTotal.Add(float64(len(buckets)))
	slices.SortFunc(buckets, func(a, b trade.Bucket) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})

	now := s.now()
	var out []alert.Alert
	for _, b := range buckets {
		r := s.classifier.Classify(b.Total, b.Key.Side)
		if r.Suppressed() {
			s.metrics.BucketsSuppressedTotal.Inc()
			continue
		}
		a := alert.New(b, r, s.bucketer, now)
		if err := s.emitter.Emit(ctx, a); err != nil {
			s.metrics.EmitErrorsTotal.Inc()
			s.log.Error("alert emit failed",
				slog.String("symbol", a.Symbol),
				slog.String("tier", r.Label),
				slog.String("err", err.Error()),
			)
		}
		s.metrics.AlertsTotal.WithLabelValues(r.Label, string(a.Side)).Inc()
		out = append(out, a)
	}
	s.status.AddAlerts(len(out))
	return out
}
