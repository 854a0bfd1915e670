package stream

import (
	"strings"

	"github.com/google/uuid"

	"codexrelay/internal/types"
)

type toolEntry struct {
	id   string
	name string
	args strings.Builder
}

// ToolBuffer accumulates function calls across stream events. Calls keep
// insertion order; at most one call is active (receiving argument deltas)
// at a time. Items arriving without an id get a generated one.
type ToolBuffer struct {
	order    []*toolEntry
	byID     map[string]*toolEntry
	activeID string
}

// NewToolBuffer returns an empty buffer.
func NewToolBuffer() *ToolBuffer {
	return &ToolBuffer{byID: make(map[string]*toolEntry)}
}

// Start registers a new call and makes it active. Returns the resolved id.
func (b *ToolBuffer) Start(id, name string) string {
	if id == "" {
		id = "toolu_" + uuid.NewString()
	}
	e, ok := b.byID[id]
	if !ok {
		e = &toolEntry{id: id, name: name}
		b.byID[id] = e
		b.order = append(b.order, e)
	} else if name != "" {
		e.name = name
	}
	b.activeID = id
	return id
}

// AppendActive adds an argument fragment to the active call. Fragments
// arriving with no active call are dropped.
func (b *ToolBuffer) AppendActive(delta string) bool {
	e, ok := b.byID[b.activeID]
	if !ok {
		return false
	}
	e.args.WriteString(delta)
	return true
}

// Active returns the active call's id and name.
func (b *ToolBuffer) Active() (id, name string, ok bool) {
	e, found := b.byID[b.activeID]
	if !found {
		return "", "", false
	}
	return e.id, e.name, true
}

// Finish closes a call. An empty id resolves to the active call. Non-empty
// name and args from the done event replace what was buffered; empty fields
// keep the accumulated values.
func (b *ToolBuffer) Finish(id, name, args string) {
	if id == "" {
		id = b.activeID
	}
	if id == "" {
		return
	}
	e, ok := b.byID[id]
	if !ok {
		e = &toolEntry{id: id}
		b.byID[id] = e
		b.order = append(b.order, e)
	}
	if name != "" {
		e.name = name
	}
	if args != "" {
		e.args.Reset()
		e.args.WriteString(args)
	}
	b.activeID = ""
}

// MergeCompleted folds the final response's call list in. Non-empty fields
// from the completed event win over buffered ones.
func (b *ToolBuffer) MergeCompleted(calls []types.ToolCallRecord) {
	for _, c := range calls {
		if c.ID == "" {
			continue
		}
		e, ok := b.byID[c.ID]
		if !ok {
			e = &toolEntry{id: c.ID}
			b.byID[c.ID] = e
			b.order = append(b.order, e)
		}
		if c.Name != "" {
			e.name = c.Name
		}
		if c.Arguments != "" {
			e.args.Reset()
			e.args.WriteString(c.Arguments)
		}
	}
}

// Calls returns the buffered calls in insertion order.
func (b *ToolBuffer) Calls() []types.ToolCallRecord {
	out := make([]types.ToolCallRecord, 0, len(b.order))
	for _, e := range b.order {
		out = append(out, types.ToolCallRecord{ID: e.id, Name: e.name, Arguments: e.args.String()})
	}
	return out
}

// Len reports how many calls are buffered.
func (b *ToolBuffer) Len() int { return len(b.order) }
