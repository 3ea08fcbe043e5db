package redissink

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"big-trades/internal/alert"
	"big-trades/internal/classify"
	"big-trades/internal/trade"
)

func TestDefaults(t *testing.T) {
	p := NewPublisher(Config{Addr: "localhost:6379"})
	defer p.Close()
	if p.channel != "big-trades:alerts" || p.recent != 100 {
		t.Fatalf("defaults not applied: %s %d", p.channel, p.recent)
	}
	if RecentKey("BTCUSDT") != "alerts:BTCUSDT" {
		t.Fatalf("key got %s", RecentKey("BTCUSDT"))
	}
}

// Needs a live Redis; set REDIS_ADDR to run it.
func TestEmitAndRecent(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	p := NewPublisher(Config{Addr: addr, Recent: 2, Channel: "big-trades:test"})
	defer p.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	sym := "TEST" + uuid.NewString()[:8]
	defer p.client.Del(context.Background(), RecentKey(sym))
	for i := 1; i <= 3; i++ {
		a := alert.Alert{
			ID:     uuid.New(),
			Symbol: sym,
			Side:   trade.Buy,
			Total:  decimal.NewFromInt(int64(i * 100000)),
			Tier:   classify.Result{Level: 2, Label: "large"},
		}
		if err := p.Emit(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	got, err := p.Recent(ctx, sym, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("list not capped: %d", len(got))
	}
	if !got[0].Total.Equal(decimal.NewFromInt(300000)) {
		t.Fatalf("newest first expected, got %s", got[0].Total)
	}
}
