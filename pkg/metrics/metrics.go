package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks registered realtime streams.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifier_realtime_active_connections",
			Help: "Number of registered realtime notification streams",
		},
	)

	// ConnectionEvents counts stream lifecycle outcomes (opened|replaced|failed|completed|timed_out|errored).
	ConnectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_realtime_connections_total",
			Help: "Realtime stream lifecycle transitions",
		},
		[]string{"result"},
	)

	// Dispatches counts push attempts by event name and result (delivered|dropped|failed).
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_realtime_dispatch_total",
			Help: "Realtime event dispatch attempts",
		},
		[]string{"event", "result"},
	)

	// Heartbeats counts heartbeat sends by result (sent|failed|skipped).
	Heartbeats = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_realtime_heartbeats_total",
			Help: "Heartbeat probes sent to realtime streams",
		},
		[]string{"result"},
	)

	// NotificationsCreated counts persisted notifications by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_notifications_created_total",
			Help: "Notifications persisted by type",
		},
		[]string{"type"},
	)

	// BusinessEvents counts consumed business events by type and result (handled|invalid|failed).
	BusinessEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_business_events_total",
			Help: "Business events consumed from the event bus",
		},
		[]string{"type", "result"},
	)

	// RoleChecks counts role gate decisions by result (allowed|denied).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifier_role_checks_total",
			Help: "Role gate decisions",
		},
		[]string{"route", "result"},
	)

	// StreamDuration measures how long SSE and WebSocket requests stay open.
	StreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_realtime_stream_duration_seconds",
			Help:    "Lifetime of realtime stream requests",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
		},
		[]string{"transport"},
	)

	// APILatency measures HTTP request latencies, excluding streams.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifier_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
