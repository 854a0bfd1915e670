package transform

import (
	"codexrelay/internal/policy"
	"codexrelay/internal/types"
)

var allowedEfforts = map[string]bool{"low": true, "medium": true, "high": true, "xhigh": true}

// EncodeOptions carries the configured defaults the upstream encoder needs.
type EncodeOptions struct {
	DefaultModel  string
	AllowedModels map[string]bool
	DefaultEffort string
	Instructions  string
	Compat        bool
	Render        RenderOptions
}

// PickModel returns the requested model when it is on the allow list,
// otherwise the configured default.
func PickModel(requested string, opts EncodeOptions) string {
	if opts.AllowedModels[requested] {
		return requested
	}
	return opts.DefaultModel
}

// PickEffort validates a requested reasoning effort against the known set,
// falling back to the configured default.
func PickEffort(requested string, opts EncodeOptions) string {
	if allowedEfforts[requested] {
		return requested
	}
	return opts.DefaultEffort
}

// FromCanonical encodes a canonical request into the upstream payload.
// Turns flatten to string-content messages, system text demotes to a
// SYSTEM:-prefixed first user turn, and stream is always forced on since
// the upstream only speaks event streams.
func FromCanonical(cr *types.CanonicalRequest, opts EncodeOptions) *types.UpstreamPayload {
	input := make([]types.InputMessage, 0, len(cr.Turns)+1)
	for _, turn := range cr.Turns {
		role := "user"
		if turn.Role == "assistant" {
			role = "assistant"
		}
		input = append(input, types.InputMessage{
			Type:    "message",
			Role:    role,
			Content: RenderParts(turn.Parts, opts.Render),
		})
	}

	tools := ToolsToResponses(cr.Tools)
	toolNames := make(map[string]bool, len(tools))
	for _, t := range tools {
		toolNames[t.Name] = true
	}

	systemText := cr.SystemText
	if opts.Compat {
		systemText = policy.RewriteSystemText(systemText, toolNames)
	}
	if systemText != "" {
		prefix := "SYSTEM:\n" + systemText + "\n\n"
		if len(input) > 0 && input[0].Role == "user" {
			input[0].Content = prefix + input[0].Content
		} else {
			lead := types.InputMessage{Type: "message", Role: "user", Content: "SYSTEM:\n" + systemText}
			input = append([]types.InputMessage{lead}, input...)
		}
	}
	if len(input) == 0 {
		input = []types.InputMessage{{Type: "message", Role: "user", Content: ""}}
	}

	payload := &types.UpstreamPayload{
		Model:        PickModel(cr.RequestedModel, opts),
		Input:        input,
		Instructions: opts.Instructions,
		Stream:       true,
		Reasoning:    &types.ReasoningParam{Effort: PickEffort(cr.ReasoningEffort, opts)},
	}
	if len(tools) > 0 {
		payload.Tools = tools
	}
	if tc := ToolChoiceToResponses(cr.ToolChoice); tc != nil {
		payload.ToolChoice = tc
	}
	return payload
}
