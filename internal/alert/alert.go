package alert

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"big-trades/internal/classify"
	"big-trades/internal/trade"
)

// Alert is one non-suppressed classified bucket, ready for the sinks.
type Alert struct {
	ID            uuid.UUID       `json:"id"`
	Symbol        string          `json:"symbol"`
	DisplaySymbol string          `json:"displaySymbol"`
	Side          trade.Side      `json:"side"`
	Bucket        time.Time       `json:"bucket"`
	BucketLabel   string          `json:"bucketLabel"`
	Total         decimal.Decimal `json:"total"`
	Tier          classify.Result `json:"tier"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// New builds an alert for a drained bucket.
func New(b trade.Bucket, r classify.Result, bk trade.Bucketer, now time.Time) Alert {
	return Alert{
		ID:            uuid.New(),
		Symbol:        b.Key.Symbol,
		DisplaySymbol: bk.DisplaySymbol(b.Key.Symbol),
		Side:          b.Key.Side,
		Bucket:        b.Key.Bucket,
		BucketLabel:   bk.Label(b.Key.Bucket),
		Total:         b.Total,
		Tier:          r,
		CreatedAt:     now,
	}
}

// Emphasis forwards the tier's rendering hint.
func (a Alert) Emphasis() classify.Emphasis { return a.Tier.Emphasis() }
