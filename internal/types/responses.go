package types

// UpstreamPayload is the request body sent to the Responses upstream.
// Messages carry flat string content only; the upstream accepts no system
// role and no nested content parts.
type UpstreamPayload struct {
	Model        string          `json:"model"`
	Input        []InputMessage  `json:"input"`
	Instructions string          `json:"instructions,omitempty"`
	Stream       bool            `json:"stream"`
	Reasoning    *ReasoningParam `json:"reasoning,omitempty"`
	Tools        []ResponsesTool `json:"tools,omitempty"`
	ToolChoice   any             `json:"tool_choice,omitempty"`
}

// InputMessage is one upstream input item.
type InputMessage struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReasoningParam selects the upstream reasoning effort.
type ReasoningParam struct {
	Effort string `json:"effort"`
}

// ResponsesTool is a flattened function tool declaration for the upstream.
type ResponsesTool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
}

// ResponsesToolChoice references a specific tool by name.
type ResponsesToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}
