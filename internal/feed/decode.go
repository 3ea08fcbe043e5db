package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"big-trades/internal/trade"
)

// Decoder turns one raw feed message into a trade for symbol.
type Decoder func(symbol string, data []byte) (trade.Event, error)

// aggTrade is the Binance aggregate trade payload. Pointers mark the
// required fields so absence can be told apart from zero.
type aggTrade struct {
	EventType    string  `json:"e"`
	EventTime    *int64  `json:"E"`
	Symbol       string  `json:"s"`
	AggTradeID   *int64  `json:"a"`
	Price        *string `json:"p"`
	Quantity     *string `json:"q"`
	FirstTradeID int64   `json:"f"`
	LastTradeID  int64   `json:"l"`
	TradeTime    *int64  `json:"T"`
	IsBuyerMaker *bool   `json:"m"`
}

// DecodeAggTrade decodes a Binance "<symbol>@aggTrade" message.
func DecodeAggTrade(symbol string, data []byte) (trade.Event, error) {
	var m aggTrade
	if err := json.Unmarshal(data, &m); err != nil {
		return trade.Event{}, err
	}
	if m.EventType != "" && m.EventType != "aggTrade" {
		return trade.Event{}, fmt.Errorf("%w: %q", ErrUnexpectedEvent, m.EventType)
	}
	switch {
	case m.EventTime == nil:
		return trade.Event{}, fmt.Errorf("%w: E", ErrMissingField)
	case m.AggTradeID == nil:
		return trade.Event{}, fmt.Errorf("%w: a", ErrMissingField)
	case m.Price == nil:
		return trade.Event{}, fmt.Errorf("%w: p", ErrMissingField)
	case m.Quantity == nil:
		return trade.Event{}, fmt.Errorf("%w: q", ErrMissingField)
	case m.TradeTime == nil:
		return trade.Event{}, fmt.Errorf("%w: T", ErrMissingField)
	case m.IsBuyerMaker == nil:
		return trade.Event{}, fmt.Errorf("%w: m", ErrMissingField)
	}
	px, err := decimal.NewFromString(*m.Price)
	if err != nil {
		return trade.Event{}, fmt.Errorf("price: %w", err)
	}
	qty, err := decimal.NewFromString(*m.Quantity)
	if err != nil {
		return trade.Event{}, fmt.Errorf("quantity: %w", err)
	}
	if px.IsNegative() || qty.IsNegative() {
		return trade.Event{}, fmt.Errorf("negative price or quantity: %s x %s", px, qty)
	}

	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		sym = strings.ToUpper(m.Symbol)
	}
	return trade.Event{
		Symbol:       sym,
		EventTime:    time.UnixMilli(*m.EventTime).UTC(),
		TradeTime:    time.UnixMilli(*m.TradeTime).UTC(),
		SequenceID:   *m.AggTradeID,
		Price:        px,
		Quantity:     qty,
		IsBuyerMaker: *m.IsBuyerMaker,
	}, nil
}
