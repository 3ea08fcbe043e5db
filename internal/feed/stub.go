package feed

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// StubDialer emits synthetic aggTrade messages so the pipeline can run
// offline. Every dial gets its own generator; the symbol is taken from the
// last path segment of the URL.
type StubDialer struct {
	Interval time.Duration
	Seed     int64
}

func (d *StubDialer) Dial(ctx context.Context, url string) (Stream, error) {
	interval := d.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	sym := url
	if i := strings.LastIndex(sym, "/"); i >= 0 {
		sym = sym[i+1:]
	}
	sym = strings.ToUpper(strings.SplitN(sym, "@", 2)[0])

	seed := d.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &stubStream{
		symbol: sym,
		ticker: time.NewTicker(interval),
		rng:    rand.New(rand.NewSource(seed ^ int64(xxhash.Sum64String(sym)))),
		price:  100,
		done:   make(chan struct{}),
	}, nil
}

type stubStream struct {
	symbol string
	ticker *time.Ticker
	rng    *rand.Rand
	price  float64
	seq    int64

	once sync.Once
	done chan struct{}
}

func (s *stubStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case ts := <-s.ticker.C:
		s.seq++
		s.price *= 1 + (s.rng.Float64()-0.5)/500
		// heavy tail so that every tier shows up now and then
		qty := s.rng.ExpFloat64() * 50
		if s.rng.Intn(50) == 0 {
			qty *= 100
		}
		ms := ts.UnixMilli()
		return json.Marshal(map[string]any{
			"e": "aggTrade",
			"E": ms,
			"s": s.symbol,
			"a": s.seq,
			"p": strconv.FormatFloat(s.price, 'f', 4, 64),
			"q": strconv.FormatFloat(qty, 'f', 3, 64),
			"f": s.seq,
			"l": s.seq,
			"T": ms,
			"m": s.rng.Intn(2) == 0,
		})
	}
}

func (s *stubStream) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}
