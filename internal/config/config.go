package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"big-trades/internal/classify"
	"big-trades/internal/feed"
	"big-trades/internal/trade"
)

type TierConfig struct {
	MinNotional float64 `yaml:"min_notional"`
	Label       string  `yaml:"label"`
	Weight      int     `yaml:"weight"`
}

type PostgresConfig struct {
	DSN           string `yaml:"dsn"` // empty disables the Postgres trade log
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"` // empty disables Kafka
	TradesTopic  string   `yaml:"trades_topic"`
	AlertsTopic  string   `yaml:"alerts_topic"`
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout string   `yaml:"batch_timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"` // empty disables Redis
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Recent   int    `yaml:"recent"`
}

type Config struct {
	Port              int          `yaml:"port"`
	LogLevel          string       `yaml:"log_level"`
	Provider          string       `yaml:"provider"`
	Symbols           []string     `yaml:"symbols"`
	FeedURL           string       `yaml:"feed_url"`
	QuoteSuffix       string       `yaml:"quote_suffix"`
	Timezone          string       `yaml:"timezone"`
	BucketGranularity string       `yaml:"bucket_granularity"`
	DrainInterval     string       `yaml:"drain_interval"`
	ReconnectBackoff  string       `yaml:"reconnect_backoff"`
	DecodeErrorPolicy string       `yaml:"decode_error_policy"`
	BuyerMakerSide    string       `yaml:"buyer_maker_side"`
	Shards            int          `yaml:"shards"`
	Tiers             []TierConfig `yaml:"tiers"`
	TradeLogPath      string       `yaml:"trade_log_path"`
	RenderAlerts      bool         `yaml:"render_alerts"`

	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`

	// parsed by validate
	granularity time.Duration
	interval    time.Duration
	backoff     time.Duration
	location    *time.Location
}

func defaults() Config {
	return Config{
		Port:              8086,
		LogLevel:          "info",
		Provider:          "binance",
		Symbols:           []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		FeedURL:           feed.DefaultURLTemplate,
		QuoteSuffix:       "USDT",
		Timezone:          "UTC",
		BucketGranularity: "1s",
		DrainInterval:     "1s",
		ReconnectBackoff:  "5s",
		DecodeErrorPolicy: string(feed.DecodeSkip),
		BuyerMakerSide:    string(trade.Sell),
		Shards:            16,
		Tiers: []TierConfig{
			{MinNotional: 15000, Label: "normal", Weight: 1},
			{MinNotional: 100000, Label: "large", Weight: 2},
			{MinNotional: 500000, Label: "huge", Weight: 3},
		},
		TradeLogPath: "./data/binance_trades.csv",
		RenderAlerts: true,
		Postgres:     PostgresConfig{BatchSize: 500, FlushInterval: "2s"},
		Kafka:        KafkaConfig{TradesTopic: "trades", AlertsTopic: "big-trades", BatchTimeout: "50ms"},
		Redis:        RedisConfig{Channel: "big-trades:alerts", Recent: 100},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse is Load without the file system, for tests and embedded configs.
func Parse(b []byte) (Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BIG_TRADES_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("BIG_TRADES_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("BIG_TRADES_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("invalid port")
	}
	switch strings.ToLower(c.Provider) {
	case "binance", "stub":
		c.Provider = strings.ToLower(c.Provider)
	default:
		return errors.New(`provider must be "binance" or "stub"`)
	}

	seen := map[string]bool{}
	syms := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		syms = append(syms, s)
	}
	if len(syms) == 0 {
		return errors.New("at least one symbol required")
	}
	c.Symbols = syms

	if !strings.Contains(c.FeedURL, "{symbol}") {
		return errors.New("feed_url must contain {symbol}")
	}

	var err error
	if c.granularity, err = positiveDuration("bucket_granularity", c.BucketGranularity); err != nil {
		return err
	}
	if c.interval, err = positiveDuration("drain_interval", c.DrainInterval); err != nil {
		return err
	}
	if c.backoff, err = positiveDuration("reconnect_backoff", c.ReconnectBackoff); err != nil {
		return err
	}
	if c.location, err = time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	switch feed.DecodePolicy(strings.ToLower(c.DecodeErrorPolicy)) {
	case feed.DecodeSkip, feed.DecodeReconnect:
		c.DecodeErrorPolicy = strings.ToLower(c.DecodeErrorPolicy)
	default:
		return errors.New(`decode_error_policy must be "skip" or "reconnect"`)
	}
	if _, err := trade.ParseSide(c.BuyerMakerSide); err != nil {
		return fmt.Errorf("buyer_maker_side: %w", err)
	}
	if c.Shards < 1 {
		return errors.New("shards must be >=1")
	}
	if _, err := classify.New(c.ClassifierTiers()); err != nil {
		return fmt.Errorf("tiers: %w", err)
	}

	if c.Postgres.DSN != "" {
		if _, err := positiveDuration("postgres.flush_interval", c.Postgres.FlushInterval); err != nil {
			return err
		}
	}
	if len(c.Kafka.Brokers) > 0 {
		if _, err := positiveDuration("kafka.batch_timeout", c.Kafka.BatchTimeout); err != nil {
			return err
		}
	}
	return nil
}

func positiveDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return d, nil
}

func (c Config) Granularity() time.Duration { return c.granularity }
func (c Config) DrainEvery() time.Duration  { return c.interval }
func (c Config) Backoff() time.Duration     { return c.backoff }
func (c Config) Location() *time.Location   { return c.location }
func (c Config) Policy() feed.DecodePolicy  { return feed.DecodePolicy(c.DecodeErrorPolicy) }

// PostgresFlush and KafkaBatchTimeout are only meaningful once validate has
// accepted the enclosing section.
func (c Config) PostgresFlush() time.Duration {
	d, _ := time.ParseDuration(c.Postgres.FlushInterval)
	return d
}

func (c Config) KafkaBatchTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Kafka.BatchTimeout)
	return d
}

// Bucketer builds the event-to-bucket mapping for the configured feed.
func (c Config) Bucketer() trade.Bucketer {
	side, _ := trade.ParseSide(c.BuyerMakerSide)
	return trade.NewBucketer(c.granularity, c.location, side, c.QuoteSuffix)
}

func (c Config) ClassifierTiers() []classify.Tier {
	out := make([]classify.Tier, 0, len(c.Tiers))
	for _, t := range c.Tiers {
		out = append(out, classify.Tier{
			MinNotional: decimal.NewFromFloat(t.MinNotional),
			Label:       t.Label,
			Weight:      t.Weight,
		})
	}
	return out
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
