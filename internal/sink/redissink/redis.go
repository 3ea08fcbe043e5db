// Package redissink fans alerts out over Redis: a pub/sub channel for live
// consumers and a capped list of recent alerts per symbol.
package redissink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"big-trades/internal/alert"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Recent   int // alerts kept per symbol
}

// Publisher implements sink.AlertEmitter.
type Publisher struct {
	client  *redis.Client
	channel string
	recent  int64
}

func NewPublisher(cfg Config) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newPublisher(client, cfg)
}

func newPublisher(client *redis.Client, cfg Config) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = "big-trades:alerts"
	}
	if cfg.Recent <= 0 {
		cfg.Recent = 100
	}
	return &Publisher{client: client, channel: cfg.Channel, recent: int64(cfg.Recent)}
}

// RecentKey is the list holding a symbol's latest alerts, newest first.
func RecentKey(symbol string) string {
	return fmt.Sprintf("alerts:%s", symbol)
}

func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Publisher) Emit(ctx context.Context, a alert.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	key := RecentKey(a.Symbol)
	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, p.recent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis emit: %w", err)
	}
	return nil
}

// Recent returns up to n of a symbol's latest alerts.
func (p *Publisher) Recent(ctx context.Context, symbol string, n int64) ([]alert.Alert, error) {
	raw, err := p.client.LRange(ctx, RecentKey(symbol), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]alert.Alert, 0, len(raw))
	for _, s := range raw {
		var a alert.Alert
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (p *Publisher) Close() error { return p.client.Close() }
