package types

import "encoding/json"

// PartKind discriminates the variants of a ContentPart.
type PartKind string

const (
	PartText       PartKind = "text"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
	PartImage      PartKind = "image"
	PartOpaque     PartKind = "opaque"
)

// ContentPart is one unit of a conversation turn. Kind determines which
// fields are relevant; order within a turn is meaningful and preserved.
type ContentPart struct {
	Kind PartKind

	// PartText
	Text string

	// PartToolUse
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage

	// PartToolResult
	ToolUseID  string
	ResultText string
	IsError    bool

	// PartImage
	MediaType   string
	SourceKind  string
	ApproxBytes int

	// PartOpaque: anything we do not model, kept as a bounded preview so
	// information is never silently dropped.
	OrigType string
	Preview  string
}

// ConversationTurn is a single user or assistant message in canonical form.
// System text is never a turn role; it is carried separately on the request.
type ConversationTurn struct {
	Role  string // "user" or "assistant"
	Parts []ContentPart
}

// ToolSpec is a tool declaration after sanitization. Names are already
// restricted to [A-Za-z0-9_-] and capped at 64 characters.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  any
}

// CanonicalRequest is the dialect-neutral form of an inbound request. It is
// built once per request by a codec decoder and never mutated afterwards.
type CanonicalRequest struct {
	Turns           []ConversationTurn
	SystemText      string
	Tools           []ToolSpec
	ToolChoice      any // as decoded from the request; normalized at encode time
	RequestedModel  string
	ReasoningEffort string // "", "low", "medium", "high", "xhigh"
	Stream          bool
}

// ToolCallRecord accumulates one upstream function call across streaming
// events. Arguments is a raw JSON string built from argument deltas.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments string
}
