// Package kafkasink publishes trades and alerts to Kafka topics.
package kafkasink

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"big-trades/internal/alert"
	"big-trades/internal/trade"
)

// Config holds Kafka connection configuration
type Config struct {
	Brokers      []string
	TradesTopic  string // empty disables trade publishing
	AlertsTopic  string // empty disables alert publishing
	BatchSize    int
	BatchTimeout time.Duration
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements sink.TradeRecorder and sink.AlertEmitter.
type Publisher struct {
	trades messageWriter
	alerts messageWriter
}

func newWriter(cfg Config, topic string) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // same symbol, same partition: keeps per-symbol order
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	if cfg.BatchSize > 0 {
		w.BatchSize = cfg.BatchSize
	}
	if cfg.BatchTimeout > 0 {
		w.BatchTimeout = cfg.BatchTimeout
	}
	return w
}

func NewPublisher(cfg Config) *Publisher {
	p := &Publisher{}
	if cfg.TradesTopic != "" {
		p.trades = newWriter(cfg, cfg.TradesTopic)
	}
	if cfg.AlertsTopic != "" {
		p.alerts = newWriter(cfg, cfg.AlertsTopic)
	}
	return p
}

type tradeMessage struct {
	Symbol       string `json:"symbol"`
	AggTradeID   int64  `json:"aggTradeId"`
	TradeTime    int64  `json:"tradeTime"` // unix ms
	EventTime    int64  `json:"eventTime"` // unix ms
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	USDSize      string `json:"usdSize"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// TradeMessage builds the Kafka record for ev, keyed by symbol.
func TradeMessage(ev trade.Event) (kafka.Message, error) {
	data, err := json.Marshal(tradeMessage{
		Symbol:       ev.Symbol,
		AggTradeID:   ev.SequenceID,
		TradeTime:    ev.TradeTime.UnixMilli(),
		EventTime:    ev.EventTime.UnixMilli(),
		Price:        ev.Price.String(),
		Quantity:     ev.Quantity.String(),
		USDSize:      ev.Notional().String(),
		IsBuyerMaker: ev.IsBuyerMaker,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: data,
		Time:  ev.TradeTime,
		Headers: []kafka.Header{
			{Key: "agg_trade_id", Value: []byte(strconv.FormatInt(ev.SequenceID, 10))},
		},
	}, nil
}

// AlertMessage builds the Kafka record for a, keyed by symbol.
func AlertMessage(a alert.Alert) (kafka.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(a.Symbol),
		Value: data,
		Time:  a.CreatedAt,
		Headers: []kafka.Header{
			{Key: "tier", Value: []byte(a.Tier.Label)},
		},
	}, nil
}

func (p *Publisher) Record(ctx context.Context, ev trade.Event) error {
	if p.trades == nil {
		return nil
	}
	msg, err := TradeMessage(ev)
	if err != nil {
		return err
	}
	return p.trades.WriteMessages(ctx, msg)
}

func (p *Publisher) Emit(ctx context.Context, a alert.Alert) error {
	if p.alerts == nil {
		return nil
	}
	msg, err := AlertMessage(a)
	if err != nil {
		return err
	}
	return p.alerts.WriteMessages(ctx, msg)
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	var first error
	for _, w := range []messageWriter{p.trades, p.alerts} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
