package boundary

import (
	"strings"

	"github.com/lspecian/vexfs-sub008/internal/event"
)

// EventTypeRegistry maps human-readable event type names to the closed
// event.Type enumeration. Supplemental feature pulled from
// original_source/rust/src/semantic_api/fuse_event_mapper.rs, whose
// string-keyed event name table the distilled spec.md dropped; it is used
// by the query planner's "types" filter clause (C12) and by the operation
// classifier (C8).
type EventTypeRegistry struct {
	byName map[string]event.Type
}

// NewEventTypeRegistry builds a registry covering every event.Type.
func NewEventTypeRegistry() *EventTypeRegistry {
	r := &EventTypeRegistry{byName: make(map[string]event.Type, 25)}
	for t := event.TypeFilesystemCreate; t <= event.TypeObservabilityCritical; t++ {
		r.byName[normalize(t.String())] = t
	}
	return r
}

// Lookup resolves a human-readable name (case-insensitive, accepting
// either "FilesystemCreate" or "filesystem_create") to its event.Type.
func (r *EventTypeRegistry) Lookup(name string) (event.Type, bool) {
	t, ok := r.byName[normalize(name)]
	return t, ok
}

// Names returns every registered human-readable name.
func (r *EventTypeRegistry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", ""))
}
