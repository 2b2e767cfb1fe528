package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lvl"

var (
	// ─── Analytics API ───────────────────────────────────────────────────────────

	APIReportsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "reports_served_total",
		Help:      "Analytics payloads served, labelled by kind (report, dashboard, player_card).",
	}, []string{"kind"})

	APIRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-user rate limiter.",
	})

	APIRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status code.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"route", "code"})

	// ─── Engine ──────────────────────────────────────────────────────────────────

	EngineBuildDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "build_duration_seconds",
		Help:      "Time spent assembling an analytics report from a snapshot.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	// ─── Loader ──────────────────────────────────────────────────────────────────

	LoaderFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loader",
		Name:      "fetches_total",
		Help:      "Snapshot fetches from the task source, labelled by outcome (ok, error, stale).",
	}, []string{"outcome"})

	LoaderFetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "loader",
		Name:      "fetch_duration_seconds",
		Help:      "Wall time of a full snapshot fetch (stats, user stats, tasks).",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	LoaderRecordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loader",
		Name:      "records_rejected_total",
		Help:      "Malformed task records dropped at the edge.",
	})

	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Snapshot cache lookups, labelled by result (hit, miss, error).",
	}, []string{"result"})

	// ─── Upstream client ─────────────────────────────────────────────────────────

	UpstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Retried calls to the task backend, labelled by operation.",
	}, []string{"op"})

	// ─── Refresher ───────────────────────────────────────────────────────────────

	RefresherSnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "refresher",
		Name:      "snapshots_total",
		Help:      "Snapshots refreshed, labelled by trigger (schedule, event) and status.",
	}, []string{"trigger", "status"})

	RefresherEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "refresher",
		Name:      "events_total",
		Help:      "Task events consumed, labelled by event type.",
	}, []string{"type"})

	RefresherIsLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "refresher",
		Name:      "is_leader",
		Help:      "1 when this instance holds the refresher leader lock.",
	})

	// ─── Event bus ───────────────────────────────────────────────────────────────

	KafkaMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "kafka",
		Name:      "messages_total",
		Help:      "Kafka messages by topic and outcome (published, publish_failed, committed, dropped, redelivered).",
	}, []string{"topic", "outcome"})
)
