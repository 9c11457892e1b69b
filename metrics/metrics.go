package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_connections_active",
			Help: "Number of connected realtime clients",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collab_rooms_active",
			Help: "Number of rooms with at least one member",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_events_total",
			Help: "Inbound realtime events by event name",
		},
		[]string{"event"},
	)

	EventsIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_events_ignored_total",
			Help: "Inbound events dropped because of a malformed payload",
		},
		[]string{"event"},
	)

	DocumentWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_document_writes_total",
			Help: "Write-through attempts by outcome",
		},
		[]string{"status"}, // "success", "not_found" or "error"
	)

	DocumentWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collab_document_write_latency_seconds",
			Help:    "Latency of content-change write-through in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
	)
)
