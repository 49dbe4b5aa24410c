package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_eda_sessions_open",
			Help: "Number of WebSocket sessions currently open",
		},
	)

	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_eda_reconnects_total",
			Help: "Total number of reconnect attempts",
		},
		[]string{"pattern"},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_eda_auth_failures_total",
			Help: "Total number of handshakes rejected by authorization",
		},
		[]string{"pattern"},
	)

	// Event metrics
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_eda_events_received_total",
			Help: "Total number of frames received and normalized",
		},
		[]string{"pattern"},
	)

	NormalizeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_eda_normalize_errors_total",
			Help: "Total number of frames dropped as malformed",
		},
		[]string{"pattern"},
	)

	// Dispatch metrics
	EventsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_eda_events_delivered_total",
			Help: "Total number of envelopes delivered to the sink",
		},
		[]string{"origin"},
	)

	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_eda_events_dropped_total",
			Help: "Total number of envelopes dropped under backpressure",
		},
		[]string{"origin"},
	)

	BufferDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vault_eda_buffer_depth",
			Help: "Current depth of each per-pattern delivery buffer",
		},
		[]string{"origin"},
	)

	// Sink metrics
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_eda_sink_errors_total",
			Help: "Total number of sink delivery failures",
		},
		[]string{"origin"},
	)
)
