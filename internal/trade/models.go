package trade

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the aggressor side of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Upper is the display form ("BUY"/"SELL").
func (s Side) Upper() string { return strings.ToUpper(string(s)) }

// Event is one decoded trade from a symbol's feed. It is passed by value;
// nothing downstream holds a pointer into another stage's copy.
type Event struct {
	Symbol       string          `json:"symbol"` // canonical UPPER symbol, e.g. BTCUSDT
	EventTime    time.Time       `json:"eventTime"`
	TradeTime    time.Time       `json:"tradeTime"`
	SequenceID   int64           `json:"sequenceId"` // aggregate trade id, logging only
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	IsBuyerMaker bool            `json:"isBuyerMaker"`
}

// Notional is price × quantity. Always derived, never stored.
func (e Event) Notional() decimal.Decimal {
	return e.Price.Mul(e.Quantity)
}

// BucketKey identifies one aggregation bucket. Bucket is always UTC so that
// struct equality is structural over the three fields.
type BucketKey struct {
	Symbol string
	Bucket time.Time
	Side   Side
}

func (k BucketKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Symbol, k.Bucket.Format(time.RFC3339Nano), k.Side)
}

// Bucket is a drained (key, total) pair.
type Bucket struct {
	Key   BucketKey
	Total decimal.Decimal
}

// Less orders buckets by time, then symbol, then side.
func (b Bucket) Less(o Bucket) bool {
	if !b.Key.Bucket.Equal(o.Key.Bucket) {
		return b.Key.Bucket.Before(o.Key.Bucket)
	}
	if b.Key.Symbol != o.Key.Symbol {
		return b.Key.Symbol < o.Key.Symbol
	}
	return b.Key.Side < o.Key.Side
}
