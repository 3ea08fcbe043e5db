package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the pipeline's collectors. Each instance registers on its
// own registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal          *prometheus.CounterVec
	DecodeErrorsTotal    *prometheus.CounterVec
	TransportErrorsTotal *prometheus.CounterVec
	ReconnectsTotal      *prometheus.CounterVec
	RecordErrorsTotal    *prometheus.CounterVec
	ConnectionUp         *prometheus.GaugeVec
	LastEventSeconds     *prometheus.GaugeVec

	BucketsDrainedTotal    prometheus.Counter
	BucketsSuppressedTotal prometheus.Counter
	AlertsTotal            *prometheus.CounterVec
	EmitErrorsTotal        prometheus.Counter
	OpenBuckets            prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "trade_events_total", Help: "Trades decoded and ingested"},
			[]string{"symbol"},
		),
		DecodeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "feed_decode_errors_total", Help: "Feed messages that failed to decode"},
			[]string{"symbol"},
		),
		TransportErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "feed_transport_errors_total", Help: "Dial and read failures"},
			[]string{"symbol"},
		),
		ReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "feed_reconnects_total", Help: "Connection re-establishment attempts"},
			[]string{"symbol"},
		),
		RecordErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "trade_record_errors_total", Help: "Trade log writes that failed"},
			[]string{"symbol"},
		),
		ConnectionUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "feed_connection_up", Help: "1 while the symbol's feed is streaming"},
			[]string{"symbol"},
		),
		LastEventSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "feed_last_event_timestamp_seconds", Help: "Unix time of the last ingested trade"},
			[]string{"symbol"},
		),
		BucketsDrainedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "buckets_drained_total", Help: "Buckets captured by drains"},
		),
		BucketsSuppressedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "buckets_suppressed_total", Help: "Drained buckets below the lowest tier"},
		),
		AlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "alerts_total", Help: "Alerts emitted"},
			[]string{"tier", "side"},
		),
		EmitErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "alert_emit_errors_total", Help: "Alert sink failures"},
		),
		OpenBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "open_buckets", Help: "Buckets open in the table when the last drain started"},
		),
	}
	reg.MustRegister(
		m.EventsTotal, m.DecodeErrorsTotal, m.TransportErrorsTotal, m.ReconnectsTotal,
		m.RecordErrorsTotal, m.ConnectionUp, m.LastEventSeconds,
		m.BucketsDrainedTotal, m.BucketsSuppressedTotal, m.AlertsTotal, m.EmitErrorsTotal, m.OpenBuckets,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
