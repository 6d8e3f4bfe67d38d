package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_events_ingested_total",
			Help: "Stream events applied to the buffer, by event type",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_events_dropped_total",
			Help: "Stream events dropped at ingest",
		},
		[]string{"reason"}, // "malformed", "unknown_type", "no_open_turn"
	)

	TurnsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_turns_superseded_total",
			Help: "Open turns discarded by a repeated agent_start",
		},
	)

	// Resync metrics
	ResyncsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_resyncs_scheduled_total",
			Help: "Snapshot refreshes requested after a completed turn",
		},
	)

	ResyncsCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_resyncs_coalesced_total",
			Help: "Refresh requests folded into an already pending refresh",
		},
	)

	// Snapshot metrics
	SnapshotFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_snapshot_fetches_total",
			Help: "Session snapshot fetches, by result",
		},
		[]string{"result"}, // "applied", "stale", "error"
	)

	SnapshotFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chorus_snapshot_fetch_duration_seconds",
			Help:    "Session snapshot fetch latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// View metrics
	ViewMessages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chorus_view_messages",
			Help: "Entries in the current reconciled view",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_notifications_total",
			Help: "Notifications raised to the error reporter, by kind",
		},
		[]string{"kind"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_http_requests_total",
			Help: "Viewer API requests",
		},
		[]string{"method", "route", "status"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_rate_limit_hits_total",
			Help: "Viewer API requests rejected by the rate limiter",
		},
		[]string{"limit"},
	)
)
