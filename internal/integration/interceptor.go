// Package integration implements the Graph-Journal Integration component
// from spec.md §4.6 (C8): classify a filesystem write as a graph
// operation, a vector operation, or a plain write, and route it to the
// matching subsystem before emitting a resolved-type event. Grounded on
// the teacher's layered Database -> Collection -> storage.Engine call
// chain as the model for "one call enters at the top, gets
// classified/dispatched, and emits exactly one outcome", and on
// original_source/rust/src/semantic_api/fuse_graph_integration.rs /
// fuse_journal_manager.rs for the classifier's filter-set shape.
package integration

import (
	"strings"

	"github.com/lspecian/vexfs-sub008/internal/boundary"
	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/event"
	"github.com/lspecian/vexfs-sub008/internal/graph"
	"github.com/lspecian/vexfs-sub008/internal/vector"
)

// Kind is the classification outcome from spec.md §4.6.
type Kind int

const (
	KindPlain Kind = iota
	KindGraph
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindGraph:
		return "graph"
	case KindVector:
		return "vector"
	default:
		return "plain"
	}
}

// ContentSniffer inspects a write's payload and reports whether it
// recognizes the content as belonging to its Kind.
type ContentSniffer func(content []byte) bool

// Classifier decides the Kind of an incoming filesystem write using a
// configurable set of path-prefix rules, falling back to content
// sniffers, and finally to KindPlain. The prefix rules are held in a map,
// so when several prefixes match one path, which of them wins is not
// defined.
type Classifier struct {
	pathPrefixes map[string]Kind
	sniffers     []struct {
		kind   Kind
		sniff  ContentSniffer
	}
}

// NewClassifier builds a Classifier with the default path conventions:
// writes under ".vexgraph/" classify as graph operations, writes under
// ".vexvec/" classify as vector operations.
func NewClassifier() *Classifier {
	return &Classifier{
		pathPrefixes: map[string]Kind{
			".vexgraph/": KindGraph,
			".vexvec/":   KindVector,
		},
	}
}

// RegisterPathPrefix adds or overrides a path-prefix classification rule.
func (c *Classifier) RegisterPathPrefix(prefix string, kind Kind) {
	c.pathPrefixes[prefix] = kind
}

// RegisterSniffer appends a content sniffer, tried in registration order
// after path-prefix rules fail to match.
func (c *Classifier) RegisterSniffer(kind Kind, sniff ContentSniffer) {
	c.sniffers = append(c.sniffers, struct {
		kind  Kind
		sniff ContentSniffer
	}{kind, sniff})
}

// Classify resolves the Kind for a write to path carrying content.
func (c *Classifier) Classify(path string, content []byte) Kind {
	for prefix, kind := range c.pathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return kind
		}
	}
	for _, s := range c.sniffers {
		if s.sniff(content) {
			return s.kind
		}
	}
	return KindPlain
}

// SniffVectorHeader is a ContentSniffer recognizing the raw little-endian
// float32 vector convention used by internal/vector.DTypeFloat32 payloads
// written with a 4-byte-aligned length (a cheap heuristic, not a format
// guarantee).
func SniffVectorHeader(content []byte) bool {
	return len(content) > 0 && len(content)%4 == 0
}

// Interceptor dispatches classified writes to the graph store, the
// vector store, or straight through to the journal as a plain write.
type Interceptor struct {
	classifier *Classifier
	graph      *graph.Graph
	vectors    *vector.Store
	emitter    *boundary.Emitter
	registry   *boundary.EventTypeRegistry
}

// New builds an Interceptor wired to the given subsystems. emitter may be
// nil if resolved-type events should not be emitted (e.g. in tests).
func New(classifier *Classifier, g *graph.Graph, v *vector.Store, emitter *boundary.Emitter) *Interceptor {
	return &Interceptor{
		classifier: classifier,
		graph:      g,
		vectors:    v,
		emitter:    emitter,
		registry:   boundary.NewEventTypeRegistry(),
	}
}

// Result carries the classification outcome and any subsystem identifier
// the write was routed to.
type Result struct {
	Kind     Kind
	NodeID   uint64
	VectorID string
}

// Intercept classifies and routes one filesystem write, per spec.md §4.6.
// A graph-classified write always creates a new node typed "file" with a
// "path" property; an existing node for the same path is not looked up or
// reused. A vector-classified write is stored as a
// raw float32 record. Either path emits a resolved-type event on success.
func (i *Interceptor) Intercept(path string, content []byte) (Result, error) {
	kind := i.classifier.Classify(path, content)
	switch kind {
	case KindGraph:
		if i.graph == nil {
			return Result{}, errs.Wrap(errs.ErrInvalidArgument, "integration", "intercept-no-graph")
		}
		n, err := i.graph.NodeCreate("file", map[string]interface{}{"path": path})
		if err != nil {
			return Result{}, err
		}
		i.emit(event.TypeGraphNodeCreate, event.GraphContext{NodeID: uint64(n.ID), Op: "intercept-create"})
		return Result{Kind: kind, NodeID: uint64(n.ID)}, nil

	case KindVector:
		if i.vectors == nil {
			return Result{}, errs.Wrap(errs.ErrInvalidArgument, "integration", "intercept-no-vector-store")
		}
		dim := len(content) / 4
		rec, err := vector.NewRecord(dim, vector.DTypeFloat32, content, map[string]string{"path": path})
		if err != nil {
			return Result{}, err
		}
		if err := i.vectors.Put(rec); err != nil {
			return Result{}, err
		}
		i.emit(event.TypeVectorCreate, event.VectorContext{VectorID: rec.VectorID, Dim: dim, DType: rec.DType.String()})
		return Result{Kind: kind, VectorID: rec.VectorID}, nil

	default:
		i.emit(event.TypeFilesystemWrite, event.FilesystemContext{Path: path, OpType: "write"})
		return Result{Kind: KindPlain}, nil
	}
}

// Registry exposes the interceptor's event-type lookup table, shared with
// the query planner's "types" filter clause (C12).
func (i *Interceptor) Registry() *boundary.EventTypeRegistry {
	return i.registry
}

func (i *Interceptor) emit(typ event.Type, ctx event.Context) {
	if i.emitter == nil {
		return
	}
	_ = i.emitter.Emit(&event.Event{Type: typ, Category: typ.Category(), Context: ctx})
}
