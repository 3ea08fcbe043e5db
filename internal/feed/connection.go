// Package feed keeps one streaming connection per symbol alive and turns
// its raw messages into trades.
package feed

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"big-trades/internal/metrics"
	"big-trades/internal/state"
	"big-trades/internal/trade"
)

// DecodePolicy decides what a malformed message does to the connection.
type DecodePolicy string

const (
	// DecodeSkip drops the message and keeps reading.
	DecodeSkip DecodePolicy = "skip"
	// DecodeReconnect abandons the connection, like a transport error.
	DecodeReconnect DecodePolicy = "reconnect"
)

const (
	DefaultURLTemplate = "wss://fstream.binance.com/ws/{symbol}@aggTrade"
	DefaultBackoff     = 5 * time.Second
)

type Options struct {
	URLTemplate  string
	Backoff      time.Duration
	DecodePolicy DecodePolicy
	Decoder      Decoder

	Logger  *slog.Logger
	Status  *state.Registry
	Metrics *metrics.Metrics
}

// Connection streams one symbol's trades. It cycles
// connecting -> streaming -> backoff -> connecting until its context ends.
type Connection struct {
	symbol  string
	url     string
	dialer  Dialer
	decode  Decoder
	backoff time.Duration
	policy  DecodePolicy

	log     *slog.Logger
	status  *state.Registry
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewConnection(symbol string, dialer Dialer, opts Options) *Connection {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if opts.URLTemplate == "" {
		opts.URLTemplate = DefaultURLTemplate
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.DecodePolicy != DecodeReconnect {
		opts.DecodePolicy = DecodeSkip
	}
	if opts.Decoder == nil {
		opts.Decoder = DecodeAggTrade
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Status == nil {
		opts.Status = state.NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	opts.Status.Track(sym)
	return &Connection{
		symbol:  sym,
		url:     StreamURL(opts.URLTemplate, sym),
		dialer:  dialer,
		decode:  opts.Decoder,
		backoff: opts.Backoff,
		policy:  opts.DecodePolicy,
		log:     opts.Logger.With(slog.String("symbol", sym)),
		status:  opts.Status,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

func (c *Connection) Symbol() string { return c.symbol }
func (c *Connection) URL() string    { return c.url }

// Run streams until ctx is cancelled and then returns ctx.Err(). onEvent is
// called synchronously, once per decoded message, in feed order. Every
// failure is retried after the fixed backoff with no retry cap.
func (c *Connection) Run(ctx context.Context, onEvent func(trade.Event)) error {
	defer c.setState(state.Stopped)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.setState(state.Connecting)
		err := c.stream(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.report(err)

		c.setState(state.Backoff)
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.metrics.ReconnectsTotal.WithLabelValues(c.symbol).Inc()
	}
}

// stream runs one connection attempt and returns why it ended.
func (c *Connection) stream(ctx context.Context, onEvent func(trade.Event)) error {
	s, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		return &Error{Kind: KindTransport, Symbol: c.symbol, Op: "dial", Err: err}
	}
	defer s.Close()

	c.setState(state.Streaming)
	c.log.Info("feed connected", slog.String("url", c.url))

	for {
		data, err := s.Next(ctx)
		if err != nil {
			return &Error{Kind: KindTransport, Symbol: c.symbol, Op: "read", Err: err}
		}
		ev, err := c.decode(c.symbol, data)
		if err != nil {
			derr := &Error{Kind: KindDecode, Symbol: c.symbol, Op: "decode", Err: err}
			if c.policy == DecodeReconnect {
				return derr
			}
			c.report(derr)
			continue
		}
		onEvent(ev)
	}
}

func (c *Connection) report(err error) {
	if err == nil {
		return
	}
	kind := KindOf(err)
	switch kind {
	case KindDecode:
		c.metrics.DecodeErrorsTotal.WithLabelValues(c.symbol).Inc()
	case KindTransport:
		c.metrics.TransportErrorsTotal.WithLabelValues(c.symbol).Inc()
	}
	c.status.RecordError(c.symbol, err, kind == KindDecode)

	if kind == KindDecode && c.policy == DecodeSkip {
		c.log.Warn("dropping malformed message", slog.String("err", err.Error()))
		return
	}
	c.log.Warn("feed disconnected, retrying",
		slog.String("kind", kind.String()),
		slog.Duration("backoff", c.backoff),
		slog.String("err", err.Error()),
	)
}

func (c *Connection) setState(st state.ConnState) {
	c.status.SetState(c.symbol, st, c.now())
	up := 0.0
	if st == state.Streaming {
		up = 1
	}
	c.metrics.ConnectionUp.WithLabelValues(c.symbol).Set(up)
}
