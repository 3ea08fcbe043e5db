package trade

import (
	"strings"
	"time"
)

// Bucketer maps events to bucket keys. The maker/taker polarity is a feed
// schema detail, so it is configured rather than hardcoded.
type Bucketer struct {
	Granularity    time.Duration
	Location       *time.Location // display zone for labels
	BuyerMakerSide Side           // side reported when IsBuyerMaker is true
	QuoteSuffix    string         // stripped from display symbols
}

// NewBucketer returns a Bucketer with the Binance defaults filled in.
func NewBucketer(granularity time.Duration, loc *time.Location, buyerMakerSide Side, quoteSuffix string) Bucketer {
	if granularity <= 0 {
		granularity = time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	if buyerMakerSide != Buy {
		buyerMakerSide = Sell
	}
	return Bucketer{
		Granularity:    granularity,
		Location:       loc,
		BuyerMakerSide: buyerMakerSide,
		QuoteSuffix:    strings.ToUpper(quoteSuffix),
	}
}

// SideOf derives the aggressor side of ev.
func (b Bucketer) SideOf(ev Event) Side {
	makerSide := b.BuyerMakerSide
	if makerSide != Buy {
		makerSide = Sell
	}
	if ev.IsBuyerMaker {
		return makerSide
	}
	return makerSide.Opposite()
}

// Key derives ev's bucket: trade time truncated to the granularity.
func (b Bucketer) Key(ev Event) BucketKey {
	return BucketKey{
		Symbol: ev.Symbol,
		Bucket: ev.TradeTime.UTC().Truncate(b.granularity()),
		Side:   b.SideOf(ev),
	}
}

// Label renders a bucket time in the display zone. Sub-second granularities
// keep milliseconds.
func (b Bucketer) Label(t time.Time) string {
	layout := "15:04:05"
	if b.granularity() < time.Second {
		layout = "15:04:05.000"
	}
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(layout)
}

// granularity falls back to one second for a zero Bucketer.
func (b Bucketer) granularity() time.Duration {
	if b.Granularity <= 0 {
		return time.Second
	}
	return b.Granularity
}

// DisplaySymbol strips the quote suffix ("BTCUSDT" -> "BTC").
func (b Bucketer) DisplaySymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	if b.QuoteSuffix != "" && s != b.QuoteSuffix {
		s = strings.TrimSuffix(s, b.QuoteSuffix)
	}
	return s
}
