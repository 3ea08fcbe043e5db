package trade

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNotionalIsDerived(t *testing.T) {
	ev := Event{Price: decimal.RequireFromString("65000.5"), Quantity: decimal.RequireFromString("0.2")}
	if !ev.Notional().Equal(decimal.RequireFromString("13000.1")) {
		t.Fatalf("notional got %s want 13000.1", ev.Notional())
	}
	ev.Quantity = decimal.NewFromInt(2)
	if !ev.Notional().Equal(decimal.RequireFromString("130001")) {
		t.Fatalf("notional not recomputed, got %s", ev.Notional())
	}
}

func TestBucketerKey(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	b := NewBucketer(time.Second, tokyo, Sell, "USDT")
	tt := time.Date(2024, 3, 1, 12, 0, 1, 900_000_000, tokyo)

	k := b.Key(Event{Symbol: "BTCUSDT", TradeTime: tt, IsBuyerMaker: true})
	if k.Side != Sell {
		t.Fatalf("buyer maker should map to sell, got %s", k.Side)
	}
	if !k.Bucket.Equal(time.Date(2024, 3, 1, 3, 0, 1, 0, time.UTC)) {
		t.Fatalf("bucket got %v", k.Bucket)
	}
	if k.Bucket.Location() != time.UTC {
		t.Fatalf("bucket must be UTC for structural equality")
	}
	if got := b.Label(k.Bucket); got != "12:00:01" {
		t.Fatalf("label got %s want 12:00:01", got)
	}

	// same second, different wall zone -> same key
	k2 := b.Key(Event{Symbol: "BTCUSDT", TradeTime: tt.UTC().Add(-500 * time.Millisecond), IsBuyerMaker: true})
	if k != k2 {
		t.Fatalf("keys differ: %v vs %v", k, k2)
	}
}

func TestBucketerPolarityIsConfigurable(t *testing.T) {
	b := NewBucketer(time.Second, time.UTC, Buy, "")
	if b.SideOf(Event{IsBuyerMaker: true}) != Buy {
		t.Fatal("inverted polarity not applied")
	}
	if b.SideOf(Event{IsBuyerMaker: false}) != Sell {
		t.Fatal("inverted polarity not applied to taker")
	}
}

func TestDisplaySymbol(t *testing.T) {
	b := NewBucketer(0, nil, "", "usdt")
	cases := map[string]string{
		"btcusdt": "BTC",
		"WIFUSDT": "WIF",
		"USDT":    "USDT",
		"ETHBTC":  "ETHBTC",
	}
	for in, want := range cases {
		if got := b.DisplaySymbol(in); got != want {
			t.Fatalf("DisplaySymbol(%s) got %s want %s", in, got, want)
		}
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide(" SELL "); err != nil || s != Sell {
		t.Fatalf("got %v %v", s, err)
	}
	if _, err := ParseSide("ask"); err == nil {
		t.Fatal("expected error")
	}
}

func TestZeroBucketer(t *testing.T) {
	var bk Bucketer
	ev := Event{
		Symbol:       "BTCUSDT",
		TradeTime:    time.Date(2024, 1, 1, 12, 0, 1, 700_000_000, time.UTC),
		IsBuyerMaker: true,
	}
	k := bk.Key(ev)
	if k.Side != Sell {
		t.Fatalf("side got %q want sell", k.Side)
	}
	if !k.Bucket.Equal(time.Date(2024, 1, 1, 12, 0, 1, 0, time.UTC)) {
		t.Fatalf("bucket got %v", k.Bucket)
	}
	if got := bk.Label(k.Bucket); got != "12:00:01" {
		t.Fatalf("label got %s", got)
	}
}
