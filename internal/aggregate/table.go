// Package aggregate holds the shared bucket table fed by every symbol's
// connection and drained by the scheduler.
package aggregate

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"big-trades/internal/trade"
)

const DefaultShards = 16

type shard struct {
	mu      sync.Mutex
	buckets map[trade.BucketKey]decimal.Decimal
}

// Table accumulates notional per bucket key. Increments for unrelated keys
// mostly land on different shards and do not contend.
type Table struct {
	shards []*shard
	mask   uint64
}

// NewTable creates a table with n shards, rounded up to a power of two.
func NewTable(n int) *Table {
	if n <= 0 {
		n = DefaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	t := &Table{
		shards: make([]*shard, size),
		mask:   uint64(size - 1),
	}
	for i := range t.shards {
		t.shards[i] = &shard{buckets: make(map[trade.BucketKey]decimal.Decimal)}
	}
	return t
}

func (t *Table) shardFor(k trade.BucketKey) *shard {
	d := xxhash.New()
	_, _ = d.WriteString(k.Symbol)
	_, _ = d.WriteString(string(k.Side))
	var ts [8]byte
	n := uint64(k.Bucket.UnixNano())
	for i := range ts {
		ts[i] = byte(n >> (8 * i))
	}
	_, _ = d.Write(ts[:])
	return t.shards[d.Sum64()&t.mask]
}

// Increment adds amount to the bucket for k, creating it if absent.
func (t *Table) Increment(k trade.BucketKey, amount decimal.Decimal) {
	s := t.shardFor(k)
	s.mu.Lock()
	s.buckets[k] = s.buckets[k].Add(amount)
	s.mu.Unlock()
}

// DrainAll captures every bucket and leaves the table empty. All shard
// locks are held together while the maps are swapped, so the drain is a
// single cut: each Increment lands wholly in this snapshot or wholly in the
// next one. The returned order is unspecified.
func (t *Table) DrainAll() []trade.Bucket {
	captured := make([]map[trade.BucketKey]decimal.Decimal, len(t.shards))
	for _, s := range t.shards {
		s.mu.Lock()
	}
	n := 0
	for i, s := range t.shards {
		captured[i] = s.buckets
		n += len(s.buckets)
		s.buckets = make(map[trade.BucketKey]decimal.Decimal)
	}
	for _, s := range t.shards {
		s.mu.Unlock()
	}

	out := make([]trade.Bucket, 0, n)
	for _, m := range captured {
		for k, v := range m {
			out = append(out, trade.Bucket{Key: k, Total: v})
		}
	}
	return out
}

// Len is the number of open buckets.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.Lock()
		n += len(s.buckets)
		s.mu.Unlock()
	}
	return n
}
