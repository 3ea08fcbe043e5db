package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"big-trades/internal/aggregate"
	"big-trades/internal/alert"
	"big-trades/internal/classify"
	"big-trades/internal/metrics"
	"big-trades/internal/trade"
)

type collector struct {
	mu  sync.Mutex
	got []alert.Alert
	err error
}

func (c *collector) Emit(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, a)
	return c.err
}

func (c *collector) alerts() []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Alert(nil), c.got...)
}

func tiers(t *testing.T) *classify.Classifier {
	t.Helper()
	c, err := classify.New([]classify.Tier{
		{MinNotional: decimal.NewFromInt(15000), Label: "normal", Weight: 1},
		{MinNotional: decimal.NewFromInt(100000), Label: "elevated", Weight: 2},
		{MinNotional: decimal.NewFromInt(500000), Label: "top", Weight: 3},
	})
	require.NoError(t, err)
	return c
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func at(sec int) time.Time { return time.Date(2024, 1, 1, 12, 0, sec, 0, time.UTC) }

func TestFlushClassifiesAndSorts(t *testing.T) {
	tbl := aggregate.NewTable(8)
	em := &collector{}
	m := metrics.New()
	bk := trade.NewBucketer(time.Second, time.UTC, trade.Sell, "USDT")
	s := New(tbl, tiers(t), bk, em, time.Second, WithLogger(quiet), WithMetrics(m),
		WithClock(func() time.Time { return at(59) }))

	tbl.Increment(trade.BucketKey{Symbol: "ETHUSDT", Bucket: at(2), Side: trade.Sell}, decimal.NewFromInt(120000))
	tbl.Increment(trade.BucketKey{Symbol: "BTCUSDT", Bucket: at(1), Side: trade.Buy}, decimal.NewFromInt(600000))
	k := trade.BucketKey{Symbol: "BTCUSDT", Bucket: at(2), Side: trade.Buy}
	tbl.Increment(k, decimal.NewFromInt(8000))
	tbl.Increment(k, decimal.NewFromInt(9000))
	tbl.Increment(trade.BucketKey{Symbol: "SOLUSDT", Bucket: at(1), Side: trade.Sell}, decimal.NewFromInt(14999))

	out := s.Flush(context.Background())
	require.Len(t, out, 3)

	assert.Equal(t, "BTC", out[0].DisplaySymbol)
	assert.Equal(t, "top", out[0].Tier.Label)
	assert.Equal(t, "12:00:01", out[0].BucketLabel)

	assert.Equal(t, "BTCUSDT", out[1].Symbol)
	assert.Equal(t, "normal", out[1].Tier.Label)
	assert.True(t, out[1].Total.Equal(decimal.NewFromInt(17000)))

	assert.Equal(t, "ETHUSDT", out[2].Symbol)
	assert.Equal(t, "elevated", out[2].Tier.Label)
	assert.Equal(t, at(59), out[2].CreatedAt)

	assert.Equal(t, out, em.alerts())
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BucketsDrainedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BucketsSuppressedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTotal.WithLabelValues("top", "buy")))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.OpenBuckets))

	assert.Empty(t, s.Flush(context.Background()), "second flush must see an empty table")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenBuckets))
}

func TestEmitErrorsDoNotStopTheCycle(t *testing.T) {
	tbl := aggregate.NewTable(1)
	em := &collector{err: errors.New("sink down")}
	m := metrics.New()
	s := New(tbl, tiers(t), trade.NewBucketer(0, nil, trade.Sell, ""), em, 0, WithLogger(quiet), WithMetrics(m))

	tbl.Increment(trade.BucketKey{Symbol: "A", Bucket: at(1), Side: trade.Buy}, decimal.NewFromInt(20000))
	tbl.Increment(trade.BucketKey{Symbol: "B", Bucket: at(1), Side: trade.Buy}, decimal.NewFromInt(20000))

	assert.Len(t, s.Flush(context.Background()), 2)
	assert.Len(t, em.alerts(), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmitErrorsTotal))
}

func TestRunTicksAndFlushesOnShutdown(t *testing.T) {
	tbl := aggregate.NewTable(4)
	em := &collector{}
	s := New(tbl, tiers(t), trade.NewBucketer(0, nil, trade.Sell, ""), em, 10*time.Millisecond, WithLogger(quiet))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	tbl.Increment(trade.BucketKey{Symbol: "BTCUSDT", Bucket: at(1), Side: trade.Buy}, decimal.NewFromInt(600000))
	require.Eventually(t, func() bool { return len(em.alerts()) == 1 }, time.Second, 5*time.Millisecond)

	// increments landing after the last tick are still flushed on shutdown
	tbl.Increment(trade.BucketKey{Symbol: "BTCUSDT", Bucket: at(2), Side: trade.Sell}, decimal.NewFromInt(20000))
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Len(t, em.alerts(), 2)
}
