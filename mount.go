// Package vexfs ties together the Event Model, Boundary Layer, Event
// Journal, Journal Indexer, Vector Store, HNSW Index, Property Graph,
// Graph-Journal Integration, Raft Consensus, Cross-Boundary Sync, Query &
// Stream API, and Key/Encryption Service into one mounted filesystem
// instance, per spec.md §4.11's mount lifecycle. Grounded on the
// teacher's libravdb.Database (the single type every collection/index is
// constructed through and reached from), generalized from "one database,
// many vector collections" to "one mount, one of each subsystem."
package vexfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/lspecian/vexfs-sub008/internal/boundary"
	"github.com/lspecian/vexfs-sub008/internal/config"
	"github.com/lspecian/vexfs-sub008/internal/consensus"
	"github.com/lspecian/vexfs-sub008/internal/crdt"
	"github.com/lspecian/vexfs-sub008/internal/crypto"
	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
	"github.com/lspecian/vexfs-sub008/internal/graph"
	"github.com/lspecian/vexfs-sub008/internal/hnsw"
	"github.com/lspecian/vexfs-sub008/internal/integration"
	"github.com/lspecian/vexfs-sub008/internal/journal"
	"github.com/lspecian/vexfs-sub008/internal/obs"
	"github.com/lspecian/vexfs-sub008/internal/quant"
	"github.com/lspecian/vexfs-sub008/internal/query"
	"github.com/lspecian/vexfs-sub008/internal/vector"
	"github.com/lspecian/vexfs-sub008/internal/xsync"
	"go.uber.org/zap"
)

// State is the mount lifecycle state machine from spec.md §4.11:
// Unmounted -> Mounting -> Mounted -> Unmounting -> Unmounted, with a
// Recovering branch entered from Mounting only when the journal's replay
// had to discard a torn tail segment (an abnormal prior termination).
type State int

const (
	StateUnmounted State = iota
	StateMounting
	StateRecovering
	StateMounted
	StateUnmounting
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateMounting:
		return "mounting"
	case StateRecovering:
		return "recovering"
	case StateMounted:
		return "mounted"
	case StateUnmounting:
		return "unmounting"
	case StateDegraded:
		return "degraded"
	default:
		return "unmounted"
	}
}

// Mount is one running VexFS instance: the journal, its secondary index,
// the vector store and HNSW index, the property graph, the graph-journal
// interceptor, the query planner and stream hub, the key/encryption
// service, and — optionally — a Raft consensus node, all wired to a
// shared boundary.Router so every mutation ends up as a durable,
// queryable, streamable Event.
type Mount struct {
	mu    sync.RWMutex
	state State

	cfg     *mountOptions
	metrics *obs.Metrics
	logger  *zap.Logger
	health  *obs.HealthChecker

	router   *boundary.Router
	journal  *journal.Journal
	planner  *query.Planner
	hub      *query.Hub
	graph    *graph.Graph
	vectors  *vector.Store
	hnsw     *hnsw.Index
	icept    *integration.Interceptor
	keys     *crypto.Store
	resolver *xsync.Resolver
	raft     *consensus.Node

	selfNode crdt.NodeID

	drainWG     sync.WaitGroup
	drainStop   chan struct{}
	unmountOnce sync.Once
}

// New builds and starts a Mount, per spec.md §4.11: Unmounted ->
// Mounting -> (Recovering if replay discarded a torn segment) -> Mounted.
// Any construction error leaves the mount lifecycle at Unmounted.
func New(opts ...Option) (*Mount, error) {
	o := defaultMountOptions()
	for _, apply := range opts {
		if err := apply(o); err != nil {
			return nil, err
		}
	}
	if o.dir == "" {
		return nil, fmt.Errorf("vexfs: WithDir is required")
	}

	logger, err := obs.NewLogger(o.logDevelopment)
	if err != nil {
		return nil, fmt.Errorf("vexfs: build logger: %w", err)
	}
	metrics := obs.NewMetrics()

	m := &Mount{
		cfg:       o,
		metrics:   metrics,
		logger:    logger,
		health:    obs.NewHealthChecker(),
		state:     StateMounting,
		selfNode:  crdt.NodeID(o.dir),
		drainStop: make(chan struct{}),
	}
	logger.Info("mounting", zap.String("dir", o.dir))

	recoveredFromTear, err := m.buildSubsystems(o)
	if err != nil {
		logger.Error("mount failed", zap.Error(err))
		return nil, err
	}

	if recoveredFromTear {
		m.mu.Lock()
		m.state = StateRecovering
		m.mu.Unlock()
		logger.Warn("recovered from a torn journal segment", zap.Uint64("tail", m.journal.LatestSequence()))
	}

	m.registerHealthChecks()
	m.startDrainLoop(event.PlaneUser)
	m.startDrainLoop(event.PlaneKernel)

	m.mu.Lock()
	m.state = StateMounted
	m.mu.Unlock()
	logger.Info("mounted", zap.String("dir", o.dir))

	return m, nil
}

// buildSubsystems constructs every subsystem in dependency order and
// reports whether Open's replay discarded a torn segment (the Recovering
// branch trigger, per spec.md §4.11).
func (m *Mount) buildSubsystems(o *mountOptions) (bool, error) {
	router := boundary.NewRouter(0)
	m.router = router

	jrn, err := journal.Open(journal.Config{
		Dir:             o.dir,
		MaxSegmentBytes: o.cfg.JournalMaxSegmentBytes,
		SyncIntervalMS:  o.cfg.JournalSyncIntervalMS,
		MaxJournalBytes: o.cfg.JournalMaxSizeBytes,
	}, m.metrics)
	if err != nil {
		return false, fmt.Errorf("vexfs: open journal: %w", err)
	}
	m.journal = jrn
	recoveredFromTear := jrn.RecoveredFromTear()

	built := false
	defer func() {
		if !built {
			_ = jrn.Close()
		}
	}()

	m.planner = query.NewPlanner(jrn.Indexer(), jrn)
	m.hub = query.NewHub(m.planner, m.metrics, 30*time.Second)

	m.graph = graph.New(graph.Config{
		MaxEdgesPerNode: o.cfg.GraphMaxEdgesPerNode,
		Overflow:        parseOverflowPolicy(o.cfg.GraphOverflowPolicy),
	}, router.For(event.PlaneUser), m.metrics)

	m.vectors = vector.NewStore()

	if o.hnswDimension > 0 {
		hnswCfg := &hnsw.Config{
			Dimension:       o.hnswDimension,
			M:               o.cfg.HNSWM,
			EfConstruction:  o.cfg.HNSWEfConstruction,
			EfSearch:        o.cfg.HNSWEfSearchDefault,
			ML:              1.0 / math.Log(2.0),
			Metric:          o.hnswMetric,
			StackLimitBytes: o.cfg.PerfStackLimitBytes,
		}
		if o.cfg.HNSWQuantizationEnabled {
			hnswCfg.Quantization = &quant.Config{TrainRatio: o.cfg.HNSWQuantizationTrainRatio}
		}
		idx, err := hnsw.NewIndex(hnswCfg, m.metrics)
		if err != nil {
			return recoveredFromTear, fmt.Errorf("vexfs: build hnsw index: %w", err)
		}
		m.hnsw = idx
	}

	classifier := integration.NewClassifier()
	m.icept = integration.New(classifier, m.graph, m.vectors, router.For(event.PlaneUser))

	m.resolver = xsync.NewResolver(nil)

	if o.masterKey != nil {
		keys, err := crypto.NewStore(o.masterKey, o.keyRetention, m.metrics)
		if err != nil {
			return recoveredFromTear, fmt.Errorf("vexfs: build key store: %w", err)
		}
		m.keys = keys
	}

	if o.raft != nil {
		fsm := consensus.NewFSM(journalAppendSink{m.journal}, m.metrics)
		node, err := consensus.New(*o.raft, fsm)
		if err != nil {
			return recoveredFromTear, fmt.Errorf("vexfs: start raft node: %w", err)
		}
		m.raft = node
	}

	built = true
	return recoveredFromTear, nil
}

// journalAppendSink adapts *journal.Journal to consensus.AppendSink,
// dropping Append's context requirement since committed Raft log entries
// apply without one.
type journalAppendSink struct {
	j *journal.Journal
}

func (s journalAppendSink) Append(e *event.Event) error {
	return s.j.Append(context.Background(), e)
}

func parseOverflowPolicy(s string) graph.OverflowPolicy {
	switch s {
	case "evict_lru":
		return graph.OverflowEvictLRU
	case "overflow":
		return graph.OverflowPromote
	default:
		return graph.OverflowReject
	}
}

// startDrainLoop consumes plane's ring buffer, appends every event to the
// journal, and publishes it to the stream hub, per spec.md §4.1's
// "boundary hands events to the journal" and §4.9's live-publish path.
func (m *Mount) startDrainLoop(plane event.Plane) {
	ch := m.router.Drain(plane)
	m.drainWG.Add(1)
	go func() {
		defer m.drainWG.Done()
		for {
			select {
			case e, ok := <-ch:
				if !ok {
					return
				}
				m.ingest(e)
			case <-m.drainStop:
				return
			}
		}
	}()
}

// ingest appends one boundary-emitted event to the journal, mirrors a
// vector-category event into the HNSW index, and publishes the event to
// live stream subscribers. Per spec.md §4.11's event lifecycle: Built ->
// Queued -> Assigned-Sequence -> Flushed -> Indexed -> Observable.
func (m *Mount) ingest(e *event.Event) {
	if err := m.journal.Append(context.Background(), e); err != nil {
		m.logger.Warn("journal append failed", zap.Error(err), zap.String("type", e.Type.String()))
		if errors.Is(err, errs.ErrIoFailed) {
			m.mu.Lock()
			m.state = StateDegraded
			m.mu.Unlock()
		}
		return
	}
	if m.hnsw != nil && e.Category == event.CategoryVector {
		m.indexVectorEvent(e)
	}
	m.hub.Publish(e)
}

// indexVectorEvent mirrors a vector-create event into the HNSW index so
// ANN search sees records written through the boundary path, not only
// through a direct Search(ctx, Insert) caller.
func (m *Mount) indexVectorEvent(e *event.Event) {
	vc, ok := e.Context.(event.VectorContext)
	if !ok || e.Type != event.TypeVectorCreate {
		return
	}
	rec, err := m.vectors.Get(vc.VectorID)
	if err != nil {
		return
	}
	vec, err := decodeFloat32(rec.Bytes)
	if err != nil {
		m.logger.Warn("skipping hnsw insert: undecodable vector bytes", zap.String("vector_id", vc.VectorID))
		return
	}
	if err := m.hnsw.Insert(context.Background(), vc.VectorID, vec, nil); err != nil {
		m.logger.Warn("hnsw insert failed", zap.Error(err), zap.String("vector_id", vc.VectorID))
		return
	}
	if m.hnsw.QuantizationTrained() {
		if err := m.vectors.SetCompression(vc.VectorID, vector.CompressionQuantized); err != nil {
			m.logger.Warn("set compression metadata failed", zap.Error(err), zap.String("vector_id", vc.VectorID))
		}
	}
}

func (m *Mount) registerHealthChecks() {
	m.health.Register("journal", func(ctx context.Context) *obs.CheckResult {
		if m.journal.ReadOnly() {
			return &obs.CheckResult{Healthy: false, Message: "journal is read-only after an fsync failure"}
		}
		return &obs.CheckResult{Healthy: true}
	})
	if m.raft != nil {
		m.health.Register("raft", func(ctx context.Context) *obs.CheckResult {
			return &obs.CheckResult{Healthy: true, Message: fmt.Sprintf("leader=%v", m.raft.IsLeader())}
		})
	}
}

// State reports the mount's current lifecycle state.
func (m *Mount) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Graph returns the mount's property graph.
func (m *Mount) Graph() *graph.Graph { return m.graph }

// Vectors returns the mount's content-addressed vector record store.
func (m *Mount) Vectors() *vector.Store { return m.vectors }

// VectorIndex returns the mount's HNSW index, or nil if no vector
// dimension was configured via WithVectorDimension.
func (m *Mount) VectorIndex() *hnsw.Index { return m.hnsw }

// Keys returns the mount's key/encryption service, or nil if no master
// key was configured via WithMasterKey.
func (m *Mount) Keys() *crypto.Store { return m.keys }

// Intercept classifies and routes a filesystem write through the
// Graph-Journal Integration component (spec.md §4.6), emitting the
// resolved-type event onto the user plane.
func (m *Mount) Intercept(path string, content []byte) (integration.Result, error) {
	return m.icept.Intercept(path, content)
}

// Emit hands an event directly to the boundary layer's user-plane
// emitter, for callers that have already built their own event rather
// than going through Intercept.
func (m *Mount) Emit(e *event.Event) error {
	return m.router.For(event.PlaneUser).Emit(e)
}

// Query starts a fluent query.Builder over this mount's planner, per
// spec.md §4.9.
func (m *Mount) Query() *query.Builder {
	return query.NewBuilder(m.planner)
}

// Subscribe opens a live Stream subscription, per spec.md §4.9.
func (m *Mount) Subscribe(filter query.Filter, bufferSize int, historicalPrefix, durable bool) (*query.Subscription, error) {
	return m.hub.Subscribe(filter, bufferSize, historicalPrefix, durable)
}

// Snapshot triggers a journal snapshot via the mountSnapshotProvider. The
// snapshot records the journal tail and the vector, node, and edge counts;
// CRDT values and HNSW or graph contents are not included.
func (m *Mount) Snapshot() error {
	return m.journal.Snapshot(mountSnapshotProvider{m})
}

// Sync forces the journal to flush any staged events immediately.
func (m *Mount) Sync() error {
	return m.journal.Sync()
}

// Unmount flushes and closes the journal, stops the Raft node if any, and
// transitions the lifecycle Mounted -> Unmounting -> Unmounted, per
// spec.md §4.11. Safe to call more than once, including concurrently: only
// the first call runs the shutdown sequence, the rest observe its result.
func (m *Mount) Unmount() error {
	var err error
	m.unmountOnce.Do(func() {
		m.mu.Lock()
		m.state = StateUnmounting
		m.mu.Unlock()

		close(m.drainStop)
		m.drainWG.Wait()

		var firstErr error
		if m.raft != nil {
			if e := m.raft.Shutdown(); e != nil {
				firstErr = e
			}
		}
		if e := m.journal.Close(); e != nil && firstErr == nil {
			firstErr = e
		}

		m.mu.Lock()
		m.state = StateUnmounted
		m.mu.Unlock()
		m.logger.Info("unmounted")
		err = firstErr
	})
	return err
}

// mountSnapshotProvider satisfies journal.SnapshotProvider, giving a
// mounted instance a way to checkpoint the size of its live subsystems
// without the journal itself taking any dependency on graph/vector/hnsw.
// It does not capture enough to skip replay (replay always rebuilds from
// genesis, see DESIGN.md) — it exists for callers that want a cheap,
// periodic high-water-mark record of mount size.
type mountSnapshotProvider struct {
	m *Mount
}

type mountSnapshotState struct {
	TailSequence uint64 `json:"tail_sequence"`
	VectorCount  int    `json:"vector_count"`
	NodeCount    int    `json:"node_count"`
	EdgeCount    int    `json:"edge_count"`
}

func (p mountSnapshotProvider) Snapshot() ([]byte, error) {
	state := mountSnapshotState{
		TailSequence: p.m.journal.LatestSequence(),
		VectorCount:  p.m.vectors.Len(),
		NodeCount:    p.m.graph.NodeCount(),
		EdgeCount:    p.m.graph.EdgeCount(),
	}
	return json.Marshal(state)
}

func decodeFloat32(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, errs.Wrap(errs.ErrInvalidArgument, "vexfs", "decode-float32")
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
