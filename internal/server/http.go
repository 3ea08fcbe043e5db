package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"big-trades/internal/alert"
	"big-trades/internal/config"
	"big-trades/internal/metrics"
	"big-trades/internal/state"
)

const recentAlerts = 50

// History is a durable per-symbol alert store, newest first.
type History interface {
	Recent(ctx context.Context, symbol string, n int64) ([]alert.Alert, error)
}

// HTTPServer exposes feed status, config and metrics, and pushes alerts to
// browsers over a websocket. It is also a sink.AlertEmitter.
type HTTPServer struct {
	cfg     config.Config
	status  *state.Registry
	metrics *metrics.Metrics
	hub     *hub
	log     *slog.Logger
	mux     *http.ServeMux
	now     func() time.Time

	history History

	mu     sync.Mutex
	recent []alert.Alert // newest last
}

func NewHTTPServer(cfg config.Config, status *state.Registry, m *metrics.Metrics, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	if status == nil {
		status = state.NewRegistry()
	}
	if m == nil {
		m = metrics.New()
	}
	s := &HTTPServer{
		cfg:     cfg,
		status:  status,
		metrics: m,
		hub:     newHub(logger),
		log:     logger,
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

// SetHistory makes /api/alerts?symbol= read from h instead of memory.
func (s *HTTPServer) SetHistory(h History) { s.history = h }

// Close disconnects every websocket client.
func (s *HTTPServer) Close() { s.hub.stop() }

// --------- WS broadcasts ----------

// Emit pushes a to connected browsers and keeps it for /api/alerts.
func (s *HTTPServer) Emit(_ context.Context, a alert.Alert) error {
	s.mu.Lock()
	s.recent = append(s.recent, a)
	if len(s.recent) > recentAlerts {
		s.recent = s.recent[len(s.recent)-recentAlerts:]
	}
	s.mu.Unlock()

	msg, err := marshalWS("alert", alertPayload(a))
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return s.hub.publish(msg)
}

func (s *HTTPServer) BroadcastStatus() {
	msg, err := marshalWS("status", s.feeds())
	if err != nil {
		s.log.Error("marshal status", slog.String("err", err.Error()))
		return
	}
	if err := s.hub.publish(msg); err != nil {
		s.log.Warn("status broadcast dropped", slog.String("err", err.Error()))
	}
}

// RunStatus broadcasts the feed table every interval until ctx is done.
func (s *HTTPServer) RunStatus(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.BroadcastStatus()
		}
	}
}

func alertPayload(a alert.Alert) map[string]any {
	return map[string]any{
		"id":       a.ID.String(),
		"symbol":   a.Symbol,
		"display":  a.DisplaySymbol,
		"side":     a.Side,
		"bucket":   a.BucketLabel,
		"total":    a.Total.StringFixed(2),
		"tier":     a.Tier.Label,
		"level":    a.Tier.Level,
		"emphasis": a.Emphasis(),
		"timeISO":  a.Bucket.UTC().Format(time.RFC3339Nano),
	}
}

// --------- Routes ----------

func (s *HTTPServer) routes() {
	// WS
	s.mux.HandleFunc("/ws", s.hub.serveWS)

	// API
	s.mux.HandleFunc("/api/health", s.apiHealth)
	s.mux.HandleFunc("/api/config", s.apiConfig)
	s.mux.HandleFunc("/api/feeds", s.apiFeeds)
	s.mux.HandleFunc("/api/alerts", s.apiAlerts)

	s.mux.Handle("/metrics", s.metrics.Handler())
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"ok":        true,
		"connected": s.status.Connected(),
		"clients":   s.hub.count.Load(),
		"alerts":    s.status.Alerts(),
	})
}

func (s *HTTPServer) apiConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"provider":          s.cfg.Provider,
		"symbols":           s.cfg.Symbols,
		"bucketGranularity": s.cfg.Granularity().String(),
		"drainInterval":     s.cfg.DrainEvery().String(),
		"reconnectBackoff":  s.cfg.Backoff().String(),
		"decodeErrorPolicy": s.cfg.Policy(),
		"buyerMakerSide":    s.cfg.BuyerMakerSide,
		"timezone":          s.cfg.Timezone,
		"tiers":             s.cfg.ClassifierTiers(),
	})
}

type feedView struct {
	state.FeedStatus
	Up         bool    `json:"connected"`
	GapSeconds float64 `json:"gapSeconds"`
}

func (s *HTTPServer) feeds() []feedView {
	now := s.now()
	snap := s.status.Snapshot()
	out := make([]feedView, 0, len(snap))
	for _, f := range snap {
		out = append(out, feedView{FeedStatus: f, Up: f.Connected(), GapSeconds: f.Gap(now).Seconds()})
	}
	return out
}

func (s *HTTPServer) apiFeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.feeds())
}

// GET /api/alerts?limit=N[&symbol=SYM], newest first
func (s *HTTPServer) apiAlerts(w http.ResponseWriter, r *http.Request) {
	limit := recentAlerts
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	sym := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))

	if sym != "" && s.history != nil {
		alerts, err := s.history.Recent(r.Context(), sym, int64(limit))
		if err != nil {
			s.log.Error("alert history", slog.String("symbol", sym), slog.String("err", err.Error()))
			http.Error(w, "alert history unavailable", http.StatusBadGateway)
			return
		}
		out := make([]map[string]any, 0, len(alerts))
		for _, a := range alerts {
			out = append(out, alertPayload(a))
		}
		writeJSON(w, out)
		return
	}

	s.mu.Lock()
	out := make([]map[string]any, 0, min(limit, len(s.recent)))
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if sym != "" && s.recent[i].Symbol != sym {
			continue
		}
		out = append(out, alertPayload(s.recent[i]))
	}
	s.mu.Unlock()
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
