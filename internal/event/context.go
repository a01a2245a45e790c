package event

// Context is the sparse tagged-union record attached to an Event, per
// spec.md §3/§9's "Dynamic event contexts" design note: only the fields
// relevant to the event's Category are populated, so a FilesystemContext
// never carries graph or vector fields.
type Context interface {
	isEventContext()
	Category() Category
}

// FilesystemContext carries path/inode metadata for CategoryFilesystem
// events.
type FilesystemContext struct {
	Path   string
	Inode  uint64
	OpType string
}

func (FilesystemContext) isEventContext()      {}
func (FilesystemContext) Category() Category   { return CategoryFilesystem }

// GraphContext carries node/edge identity for CategoryGraph events.
type GraphContext struct {
	NodeID uint64
	EdgeID uint64
	Op     string
	Labels []string
}

func (GraphContext) isEventContext()    {}
func (GraphContext) Category() Category { return CategoryGraph }

// VectorContext carries record identity and shape for CategoryVector
// events.
type VectorContext struct {
	VectorID string
	Dim      int
	DType    string
	Metric   string
}

func (VectorContext) isEventContext()    {}
func (VectorContext) Category() Category { return CategoryVector }

// AgentContext carries the originating agent and its declared intent for
// CategoryAgent events.
type AgentContext struct {
	AgentID string
	Intent  string
	TraceID string
}

func (AgentContext) isEventContext()    {}
func (AgentContext) Category() Category { return CategoryAgent }

// SystemContext carries lifecycle/component identity for CategorySystem
// events (mount, unmount, recovery, load).
type SystemContext struct {
	Component string
	State     string
}

func (SystemContext) isEventContext()    {}
func (SystemContext) Category() Category { return CategorySystem }

// ObservabilityContext carries metric/alert identity for
// CategoryObservability events.
type ObservabilityContext struct {
	Metric string
	Value  float64
	Level  string
}

func (ObservabilityContext) isEventContext()    {}
func (ObservabilityContext) Category() Category { return CategoryObservability }
