package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram/gauge this module exports,
// expanding the teacher's four-field struct to cover the event journal,
// HNSW index, graph, consensus, and CRDT subsystems. A Metrics value is
// constructed once and threaded explicitly into each subsystem, matching
// the teacher's *obs.Metrics handle passed into newCollection rather than
// read from a package-global.
type Metrics struct {
	// C1/C4 — event emission
	EventsEmitted    *prometheus.CounterVec
	EmitLatency      *prometheus.HistogramVec
	EmitBackpressure *prometheus.CounterVec

	// C2/C3 — journal
	JournalAppends    prometheus.Counter
	JournalFlushes    prometheus.Counter
	JournalFlushBytes prometheus.Histogram
	JournalSegments   prometheus.Gauge
	JournalReplayLost prometheus.Counter
	IndexRebuilds     prometheus.Counter

	// C5/C6 — vectors and HNSW
	VectorInserts            prometheus.Counter
	SearchQueries            prometheus.Counter
	SearchErrors             prometheus.Counter
	SearchLatency            prometheus.Histogram
	HNSWReciprocationRepairs prometheus.Counter

	// C7 — property graph
	GraphNodeOps     *prometheus.CounterVec
	GraphEdgeOps     *prometheus.CounterVec
	GraphQuarantined prometheus.Gauge

	// C9 — Raft
	RaftCommitLatency prometheus.Histogram
	RaftLeaderChanges prometheus.Counter
	RaftApplyErrors   prometheus.Counter

	// Cross-cutting — circuit breakers (spec.md §4.10)
	CircuitBreakerTrips *prometheus.CounterVec

	// C10/C11 — CRDT and cross-boundary sync
	CRDTMerges    prometheus.Counter
	ConflictsSeen *prometheus.CounterVec
	SyncCatchups  prometheus.Counter

	// C12 — query/stream
	QueryLatency      prometheus.Histogram
	StreamSubscribers prometheus.Gauge
	StreamDropped     prometheus.Counter

	// C13 — keys
	KeyRotations prometheus.Counter
}

// NewMetrics registers the full metric set against a fresh, private
// prometheus.Registry and returns it; callers that want process-wide
// /metrics exposition should use NewMetricsWithRegistry(prometheus.DefaultRegisterer)
// instead. A private registry per call is what lets every package's tests
// construct their own Metrics value without colliding on metric names,
// unlike the teacher's NewMetrics, which registers directly against the
// global default registerer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry registers the full metric set against reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vexfs_events_emitted_total",
			Help: "Events successfully emitted, by plane and category.",
		}, []string{"plane", "category"}),
		EmitLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vexfs_emit_latency_seconds",
			Help:    "Emit() latency by plane.",
			Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
		}, []string{"plane"}),
		EmitBackpressure: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vexfs_emit_backpressure_total",
			Help: "Emit() calls that observed a full channel.",
		}, []string{"plane"}),

		JournalAppends: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_journal_appends_total",
			Help: "Events appended to the journal.",
		}),
		JournalFlushes: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_journal_flushes_total",
			Help: "Segment flush/fsync cycles.",
		}),
		JournalFlushBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vexfs_journal_flush_bytes",
			Help:    "Bytes written per flush.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 12),
		}),
		JournalSegments: f.NewGauge(prometheus.GaugeOpts{
			Name: "vexfs_journal_segments",
			Help: "Live (uncompacted) segment count.",
		}),
		JournalReplayLost: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_journal_replay_lost_total",
			Help: "Segments discarded by replay truncation at a torn segment.",
		}),
		IndexRebuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_index_rebuilds_total",
			Help: "Full secondary-index rebuilds from the journal.",
		}),

		VectorInserts: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_vector_inserts_total",
			Help: "Total vector insertions.",
		}),
		SearchQueries: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_search_queries_total",
			Help: "Total ANN search queries.",
		}),
		SearchErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_search_errors_total",
			Help: "Total ANN search errors.",
		}),
		SearchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "vexfs_search_latency_seconds",
			Help: "ANN search latency.",
		}),
		HNSWReciprocationRepairs: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_hnsw_reciprocation_repairs_total",
			Help: "Unidirectional edges repaired by the background reconciler.",
		}),

		GraphNodeOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vexfs_graph_node_ops_total",
			Help: "Property graph node mutations by operation.",
		}, []string{"op"}),
		GraphEdgeOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vexfs_graph_edge_ops_total",
			Help: "Property graph edge mutations by operation.",
		}, []string{"op"}),
		GraphQuarantined: f.NewGauge(prometheus.GaugeOpts{
			Name: "vexfs_graph_quarantined_subgraphs",
			Help: "Subgraphs currently quarantined after an unrecoverable invariant violation.",
		}),

		RaftCommitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vexfs_raft_commit_latency_seconds",
			Help:    "Time from propose to quorum commit.",
			Buckets: prometheus.DefBuckets,
		}),
		RaftLeaderChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_raft_leader_changes_total",
			Help: "Observed leadership transitions.",
		}),
		RaftApplyErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_raft_apply_errors_total",
			Help: "FSM Apply errors.",
		}),

		CircuitBreakerTrips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vexfs_circuit_breaker_trips_total",
			Help: "Circuit breaker state transitions, by breaker name and resulting state.",
		}, []string{"breaker", "state"}),

		CRDTMerges: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_crdt_merges_total",
			Help: "CRDT merge operations performed.",
		}),
		ConflictsSeen: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vexfs_conflicts_total",
			Help: "Conflicts resolved at apply time, by resolution hint.",
		}, []string{"hint"}),
		SyncCatchups: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_sync_catchups_total",
			Help: "Cross-boundary catch-up operations (log shipping or snapshot install).",
		}),

		QueryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name: "vexfs_query_latency_seconds",
			Help: "Query() resolution latency.",
		}),
		StreamSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "vexfs_stream_subscribers",
			Help: "Active stream subscriptions.",
		}),
		StreamDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_stream_dropped_total",
			Help: "Events dropped by a subscriber's back-pressure policy.",
		}),

		KeyRotations: f.NewCounter(prometheus.CounterOpts{
			Name: "vexfs_key_rotations_total",
			Help: "Per-object key rotations performed.",
		}),
	}
}
