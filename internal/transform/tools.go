// Package transform maps inbound dialect structures onto the canonical
// conversation model and encodes the canonical model into the upstream
// request shape.
package transform

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"codexrelay/internal/types"
)

var toolNameBad = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeToolName maps an arbitrary tool name into the character set the
// upstream accepts. Unsupported runes become underscores and the result is
// capped at 64 bytes. Idempotent: sanitizing twice yields the same name.
func SanitizeToolName(name string) string {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return ""
	}
	out := toolNameBad.ReplaceAllString(raw, "_")
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

// defaultSchema is used when a tool declares no usable parameter schema.
func defaultSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// ToolSpecsFromRaw parses raw Anthropic-style tool declarations into
// canonical ToolSpecs. A tool's schema is taken from input_schema, then
// inputSchema, then parameters, falling back to an empty object schema.
// Tools without a usable name are skipped.
func ToolSpecsFromRaw(raws []json.RawMessage) []types.ToolSpec {
	if len(raws) == 0 {
		return nil
	}
	specs := make([]types.ToolSpec, 0, len(raws))
	for _, raw := range raws {
		doc := gjson.ParseBytes(raw)
		if !doc.IsObject() {
			continue
		}
		name := SanitizeToolName(doc.Get("name").String())
		if name == "" {
			continue
		}
		spec := types.ToolSpec{Name: name, Description: doc.Get("description").String()}
		for _, key := range []string{"input_schema", "inputSchema", "parameters"} {
			if s := doc.Get(key); s.IsObject() {
				var schema map[string]any
				if err := json.Unmarshal([]byte(s.Raw), &schema); err == nil {
					spec.Parameters = schema
					break
				}
			}
		}
		if spec.Parameters == nil {
			spec.Parameters = defaultSchema()
		}
		specs = append(specs, spec)
	}
	return specs
}

// ToolSpecsFromChat converts Chat Completions tool declarations into
// canonical ToolSpecs.
func ToolSpecsFromChat(tools []types.ChatTool) []types.ToolSpec {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]types.ToolSpec, 0, len(tools))
	for _, t := range tools {
		if t.Type != "" && t.Type != "function" {
			continue
		}
		name := SanitizeToolName(t.Function.Name)
		if name == "" {
			continue
		}
		spec := types.ToolSpec{Name: name, Description: t.Function.Description, Parameters: t.Function.Parameters}
		if spec.Parameters == nil {
			spec.Parameters = defaultSchema()
		}
		specs = append(specs, spec)
	}
	return specs
}

// ToolsToResponses maps canonical tool specs onto the upstream tool shape.
func ToolsToResponses(specs []types.ToolSpec) []types.ResponsesTool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]types.ResponsesTool, 0, len(specs))
	for _, s := range specs {
		params := s.Parameters
		if params == nil {
			params = defaultSchema()
		}
		out = append(out, types.ResponsesTool{
			Type:        "function",
			Name:        s.Name,
			Description: s.Description,
			Parameters:  params,
		})
	}
	return out
}

// ToolChoiceToResponses normalizes a dialect tool_choice value into the
// upstream vocabulary. Strings pass through; {type:auto|none} flattens to
// the bare mode; {type:tool|function, name} becomes a function reference
// with a sanitized name. Anything unrecognized maps to nil (omitted).
func ToolChoiceToResponses(tc any) any {
	switch v := tc.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return v
	case map[string]any:
		t, _ := v["type"].(string)
		switch t {
		case "auto", "none":
			return t
		case "tool", "function":
			name, _ := v["name"].(string)
			if strings.TrimSpace(name) == "" {
				if fn, ok := v["function"].(map[string]any); ok {
					name, _ = fn["name"].(string)
				}
			}
			if strings.TrimSpace(name) != "" {
				return types.ResponsesToolChoice{Type: "function", Name: SanitizeToolName(name)}
			}
		}
	}
	return nil
}
