package aggregate

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"big-trades/internal/trade"
)

func key(sym string, sec int, side trade.Side) trade.BucketKey {
	return trade.BucketKey{
		Symbol: sym,
		Bucket: time.Date(2024, 1, 1, 12, 0, sec, 0, time.UTC),
		Side:   side,
	}
}

func sumFor(buckets []trade.Bucket, k trade.BucketKey) (decimal.Decimal, int) {
	total := decimal.Zero
	hits := 0
	for _, b := range buckets {
		if b.Key == k {
			total = total.Add(b.Total)
			hits++
		}
	}
	return total, hits
}

func TestIncrementAccumulates(t *testing.T) {
	tbl := NewTable(4)
	k := key("BTCUSDT", 1, trade.Buy)
	tbl.Increment(k, decimal.NewFromInt(8000))
	tbl.Increment(k, decimal.NewFromInt(9000))

	out := tbl.DrainAll()
	require.Len(t, out, 1)
	assert.Equal(t, k, out[0].Key)
	assert.True(t, out[0].Total.Equal(decimal.NewFromInt(17000)), "got %s", out[0].Total)
}

func TestBucketIsolation(t *testing.T) {
	tbl := NewTable(8)
	k1 := key("BTCUSDT", 1, trade.Buy)
	k2 := key("BTCUSDT", 1, trade.Sell)
	k3 := key("ETHUSDT", 1, trade.Buy)
	k4 := key("BTCUSDT", 2, trade.Buy)

	tbl.Increment(k2, decimal.NewFromInt(5))
	for i := 0; i < 100; i++ {
		tbl.Increment(k1, decimal.NewFromInt(1))
	}
	tbl.Increment(k3, decimal.NewFromInt(7))
	tbl.Increment(k4, decimal.NewFromInt(11))

	out := tbl.DrainAll()
	require.Len(t, out, 4)
	for k, want := range map[trade.BucketKey]int64{k1: 100, k2: 5, k3: 7, k4: 11} {
		got, hits := sumFor(out, k)
		assert.Equal(t, 1, hits, "key %s", k)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), "key %s got %s want %d", k, got, want)
	}
}

func TestDrainIsExhaustiveReset(t *testing.T) {
	tbl := NewTable(0)
	tbl.Increment(key("SOLUSDT", 3, trade.Sell), decimal.NewFromInt(1))
	require.Len(t, tbl.DrainAll(), 1)
	assert.Empty(t, tbl.DrainAll())
	assert.Equal(t, 0, tbl.Len())
}

func TestNoLostIncrementsUnderConcurrentDrain(t *testing.T) {
	tbl := NewTable(DefaultShards)
	k := key("BTCUSDT", 1, trade.Buy)
	other := key("ETHUSDT", 1, trade.Sell)

	const producers = 16
	const perProducer = 2000

	var (
		mu      sync.Mutex
		drained = decimal.Zero
		otherD  = decimal.Zero
	)
	collect := func(buckets []trade.Bucket) {
		s, _ := sumFor(buckets, k)
		o, _ := sumFor(buckets, other)
		mu.Lock()
		drained = drained.Add(s)
		otherD = otherD.Add(o)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for {
			select {
			case <-stop:
				return
			default:
				collect(tbl.DrainAll())
			}
		}
	}()

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				tbl.Increment(k, decimal.RequireFromString("1.5"))
				if i%4 == 0 {
					tbl.Increment(other, decimal.NewFromInt(1))
				}
			}
		}(p)
	}
	wg.Wait()
	close(stop)
	<-drainDone
	collect(tbl.DrainAll())

	want := decimal.RequireFromString("1.5").Mul(decimal.NewFromInt(producers * perProducer))
	assert.True(t, drained.Equal(want), "drained %s want %s", drained, want)
	assert.True(t, otherD.Equal(decimal.NewFromInt(producers*perProducer/4)), "other %s", otherD)
	assert.Empty(t, tbl.DrainAll())
}

func TestNewTableRoundsShardsToPowerOfTwo(t *testing.T) {
	assert.Len(t, NewTable(5).shards, 8)
	assert.Len(t, NewTable(1).shards, 1)
	assert.Len(t, NewTable(-3).shards, DefaultShards)
}
