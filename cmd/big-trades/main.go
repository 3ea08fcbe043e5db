package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"big-trades/internal/config"
	"big-trades/internal/engine"
	"big-trades/internal/feed"
	"big-trades/internal/metrics"
	"big-trades/internal/server"
	"big-trades/internal/sink"
	"big-trades/internal/sink/kafkasink"
	"big-trades/internal/sink/pgsink"
	"big-trades/internal/sink/redissink"
	"big-trades/internal/state"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	// --config <path>, defaults to ./config.yaml
	path := "config.yaml"
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			path = args[i+1]
			i++
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("big-trades starting",
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.Provider),
		slog.Any("symbols", cfg.Symbols),
		slog.Duration("drain_interval", cfg.DrainEvery()),
		slog.String("decode_error_policy", string(cfg.Policy())),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status := state.NewRegistry()
	m := metrics.New()
	srv := server.NewHTTPServer(cfg, status, m, logger)

	// Sinks
	var out sink.Fanout
	var closers []func()

	if cfg.TradeLogPath != "" {
		csvLog, err := sink.OpenCSVLog(cfg.TradeLogPath, cfg.Location())
		if err != nil {
			logger.Error("trade log", slog.String("err", err.Error()))
			os.Exit(1)
		}
		out.AddRecorder(csvLog)
		closers = append(closers, func() { _ = csvLog.Close() })
	}

	if cfg.Postgres.DSN != "" {
		pctx, pcancel := context.WithTimeout(ctx, 15*time.Second)
		pool, err := pgsink.Connect(pctx, cfg.Postgres.DSN)
		pcancel()
		if err != nil {
			logger.Error("postgres", slog.String("err", err.Error()))
			os.Exit(1)
		}
		w := pgsink.NewTradeWriter(pgsink.Config{
			BatchSize:     cfg.Postgres.BatchSize,
			FlushInterval: cfg.PostgresFlush(),
		}, pool, logger)
		w.Start(ctx)
		out.AddRecorder(w)
		closers = append(closers, func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			w.Stop(sctx)
			st := w.Stats()
			logger.Info("postgres trade log closed",
				slog.Int64("inserts", st.Inserts),
				slog.Int64("conflicts", st.Conflicts),
				slog.Int64("errors", st.Errors),
			)
			pool.Close()
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kp := kafkasink.NewPublisher(kafkasink.Config{
			Brokers:      cfg.Kafka.Brokers,
			TradesTopic:  cfg.Kafka.TradesTopic,
			AlertsTopic:  cfg.Kafka.AlertsTopic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.KafkaBatchTimeout(),
		})
		out.AddRecorder(kp)
		out.AddEmitter(kp)
		closers = append(closers, func() { _ = kp.Close() })
	}

	if cfg.Redis.Addr != "" {
		rp := redissink.NewPublisher(redissink.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			Recent:   cfg.Redis.Recent,
		})
		pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rp.Ping(pctx); err != nil {
			logger.Warn("redis unreachable, alerts will still be attempted", slog.String("err", err.Error()))
		}
		pcancel()
		out.AddEmitter(rp)
		srv.SetHistory(rp)
		closers = append(closers, func() { _ = rp.Close() })
	}

	if cfg.RenderAlerts {
		out.AddEmitter(sink.NewRenderer(color.Output))
	}
	out.AddEmitter(srv)

	// Feed transport
	var dialer feed.Dialer = feed.NewWSDialer()
	if cfg.Provider == "stub" {
		dialer = &feed.StubDialer{Interval: 50 * time.Millisecond, Seed: time.Now().UnixNano()}
	}

	eng, err := engine.New(engine.Config{
		Symbols: cfg.Symbols,
		Dialer:  dialer,
		Feed: feed.Options{
			URLTemplate:  cfg.FeedURL,
			Backoff:      cfg.Backoff(),
			DecodePolicy: cfg.Policy(),
		},
		Shards:   cfg.Shards,
		Bucketer: cfg.Bucketer(),
		Tiers:    cfg.ClassifierTiers(),
		Interval: cfg.DrainEvery(),
		Recorder: &out,
		Emitter:  &out,
		Logger:   logger,
		Status:   status,
		Metrics:  m,
	})
	if err != nil {
		logger.Error("engine", slog.String("err", err.Error()))
		os.Exit(1)
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil {
			logger.Error("engine stopped", slog.String("err", err.Error()))
		}
	}()
	go srv.RunStatus(ctx, 2*time.Second)

	// HTTP serving
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	cancel()
	<-engineDone // final drain happens here

	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()
	_ = httpSrv.Shutdown(shCtx)
	srv.Close()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	<-done
	logger.Info("bye", slog.Int64("alerts", status.Alerts()))
}
