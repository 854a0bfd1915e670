package codec

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"codexrelay/internal/policy"
	"codexrelay/internal/stream"
	"codexrelay/internal/transform"
	"codexrelay/internal/types"
)

// reasoningEffortKeys are checked in order; the first string value wins.
// Clients disagree on where the knob lives, so several spellings are
// accepted.
var reasoningEffortKeys = []string{
	"metadata.reasoning_effort",
	"metadata.reasoningEffort",
	"metadata.reasoning",
	"reasoning_effort",
	"reasoningEffort",
}

func sniffReasoningEffort(body []byte) string {
	for _, key := range reasoningEffortKeys {
		if v := gjson.GetBytes(body, key); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// AnthropicDecoder decodes Anthropic Messages requests into canonical form.
type AnthropicDecoder struct{}

func (d *AnthropicDecoder) Format() Format { return FormatAnthropic }

func (d *AnthropicDecoder) Decode(body []byte) (*types.CanonicalRequest, error) {
	var req types.AnthropicMessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	systemText, err := types.ParseSystemText(req.System)
	if err != nil {
		return nil, err
	}

	turns := make([]types.ConversationTurn, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == "assistant" {
			role = "assistant"
		}
		blocks, err := msg.ParseContent()
		if err != nil {
			return nil, err
		}
		parts := make([]types.ContentPart, 0, len(blocks))
		for _, b := range blocks {
			parts = append(parts, partFromBlock(b))
		}
		turns = append(turns, types.ConversationTurn{Role: role, Parts: parts})
	}

	return &types.CanonicalRequest{
		Turns:           turns,
		SystemText:      systemText,
		Tools:           transform.ToolSpecsFromRaw(req.Tools),
		ToolChoice:      req.ToolChoice,
		RequestedModel:  req.Model,
		ReasoningEffort: sniffReasoningEffort(body),
		Stream:          req.Stream,
	}, nil
}

func partFromBlock(b types.AnthropicContentBlock) types.ContentPart {
	switch b.Type {
	case "text":
		return types.ContentPart{Kind: types.PartText, Text: b.Text}
	case "tool_use":
		return types.ContentPart{
			Kind:      types.PartToolUse,
			ToolID:    b.ID,
			ToolName:  b.Name,
			ToolInput: b.Input,
		}
	case "tool_result":
		return types.ContentPart{
			Kind:       types.PartToolResult,
			ToolUseID:  b.ToolUseID,
			ResultText: types.ParseToolResultText(b.Content),
			IsError:    b.IsError,
		}
	case "image":
		part := types.ContentPart{Kind: types.PartImage}
		if b.Source != nil {
			part.MediaType = b.Source.MediaType
			part.SourceKind = b.Source.Type
			part.ApproxBytes = len(b.Source.Data)
		}
		return part
	default:
		preview := string(b.Raw)
		if len(preview) > 500 {
			preview = preview[:500]
		}
		origType := b.Type
		if origType == "" {
			origType = "unknown_part"
		}
		return types.ContentPart{Kind: types.PartOpaque, OrigType: origType, Preview: preview}
	}
}

// AnthropicEncoder encodes responses in Anthropic Messages format.
type AnthropicEncoder struct{}

func (e *AnthropicEncoder) WriteStreamHeaders(w http.ResponseWriter, statusCode int) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(statusCode)
}

func (e *AnthropicEncoder) StreamTranslator(w http.ResponseWriter, model string) Translator {
	return &anthropicStreamTranslator{w: w, model: model}
}

func (e *AnthropicEncoder) WriteCollected(w http.ResponseWriter, statusCode int, agg *stream.Aggregate, model string) {
	if agg.ErrMessage != "" {
		WriteAnthropicError(w, http.StatusBadGateway, "api_error", agg.ErrMessage)
		return
	}

	var content []types.AnthropicContentOut
	for _, call := range agg.Calls {
		if call.Name == "" && strings.TrimSpace(call.Arguments) == "" {
			continue
		}
		id := call.ID
		if id == "" {
			id = "toolu_" + uuid.NewString()
		}
		content = append(content, types.AnthropicContentOut{
			Type:  "tool_use",
			ID:    id,
			Name:  call.Name,
			Input: parseToolInput(call.Arguments),
		})
	}
	toolBlocks := len(content)
	if cleaned := policy.StripHookNoise(agg.Text); strings.TrimSpace(cleaned) != "" {
		content = append(content, types.AnthropicContentOut{Type: "text", Text: cleaned})
	}
	if len(content) == 0 {
		content = []types.AnthropicContentOut{{Type: "text", Text: ""}}
	}

	stopReason := "end_turn"
	if toolBlocks > 0 {
		stopReason = "tool_use"
	}

	var usage types.AnthropicUsage
	if agg.Usage != nil {
		usage = types.AnthropicUsage{
			InputTokens:  agg.Usage.PromptTokens,
			OutputTokens: agg.Usage.CompletionTokens,
		}
	}

	WriteJSON(w, statusCode, types.AnthropicMessageResponse{
		ID:         "msg_" + uuid.NewString(),
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    content,
		StopReason: types.StringPtr(stopReason),
		Usage:      usage,
	})
}

func (e *AnthropicEncoder) WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteAnthropicError(w, statusCode, AnthropicErrorType(statusCode), message)
}

// parseToolInput turns an accumulated argument string into the structured
// input Anthropic clients expect. Unparsable arguments are wrapped rather
// than dropped.
func parseToolInput(arguments string) any {
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" {
		return map[string]any{}
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return map[string]any{"raw": arguments}
	}
	switch parsed.(type) {
	case map[string]any, []any:
		return parsed
	default:
		return map[string]any{"raw": arguments}
	}
}

// anthropicStreamTranslator renders upstream events as Anthropic Messages
// SSE. Content block indices are strictly increasing, at most one block is
// open at a time, and every opened block is closed exactly once.
type anthropicStreamTranslator struct {
	w     http.ResponseWriter
	model string

	flusher      http.Flusher
	blockIndex   int
	openBlock    string // "", "text" or "tool_use"
	stopReason   string
	outputTokens int
	usage        *types.Usage
	buf          *stream.ToolBuffer
}

func (t *anthropicStreamTranslator) writeEvent(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", event, data)
	if t.flusher != nil {
		t.flusher.Flush()
	}
}

func (t *anthropicStreamTranslator) closeBlock() {
	if t.openBlock == "" {
		return
	}
	t.writeEvent("content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": t.blockIndex,
	})
	t.openBlock = ""
}

func (t *anthropicStreamTranslator) ensureTextBlock() {
	if t.openBlock == "text" {
		return
	}
	t.closeBlock()
	t.blockIndex++
	t.openBlock = "text"
	t.writeEvent("content_block_start", map[string]any{
		"type":          "content_block_start",
		"index":         t.blockIndex,
		"content_block": map[string]any{"type": "text", "text": ""},
	})
}

func (t *anthropicStreamTranslator) startToolBlock(id, name string) {
	t.closeBlock()
	t.blockIndex++
	t.openBlock = "tool_use"
	t.stopReason = "tool_use"
	t.writeEvent("content_block_start", map[string]any{
		"type":  "content_block_start",
		"index": t.blockIndex,
		"content_block": types.AnthropicContentOut{
			Type:  "tool_use",
			ID:    id,
			Name:  name,
			Input: map[string]any{},
		},
	})
}

func (t *anthropicStreamTranslator) Translate(reader *stream.Reader) {
	t.flusher, _ = t.w.(http.Flusher)
	t.blockIndex = -1
	t.buf = stream.NewToolBuffer()

	t.writeEvent("message_start", map[string]any{
		"type": "message_start",
		"message": types.AnthropicMessageResponse{
			ID:      "msg_" + uuid.NewString(),
			Type:    "message",
			Role:    "assistant",
			Model:   t.model,
			Content: []types.AnthropicContentOut{},
			Usage:   types.AnthropicUsage{},
		},
	})

	for {
		ev, err := reader.Next()
		if err != nil {
			break
		}
		switch ev.Kind {
		case stream.TextDelta:
			t.outputTokens++
			t.ensureTextBlock()
			t.writeEvent("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": t.blockIndex,
				"delta": struct {
					Type string `json:"type"`
					Text string `json:"text"`
				}{Type: "text_delta", Text: ev.Delta},
			})

		case stream.FunctionCallAdded:
			id := t.buf.Start(ev.ItemID, ev.ItemName)
			t.startToolBlock(id, ev.ItemName)

		case stream.FunctionCallArgsDelta:
			id, name, ok := t.buf.Active()
			if !ok {
				continue
			}
			t.buf.AppendActive(ev.Delta)
			if t.openBlock != "tool_use" {
				t.startToolBlock(id, name)
			}
			t.writeEvent("content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": t.blockIndex,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": ev.Delta},
			})

		case stream.FunctionCallDone:
			t.buf.Finish(ev.ItemID, ev.ItemName, ev.Args)
			if t.openBlock == "tool_use" {
				t.closeBlock()
			}

		case stream.Completed:
			if ev.Usage != nil {
				t.usage = ev.Usage
			}

		case stream.Failed:
			t.closeBlock()
			t.writeEvent("error", types.AnthropicErrorResponse{
				Type:  "error",
				Error: types.AnthropicErrorBody{Type: "api_error", Message: ev.ErrMessage},
			})
			return
		}
	}

	t.closeBlock()

	stopReason := t.stopReason
	if stopReason == "" {
		stopReason = "end_turn"
	}
	usage := types.AnthropicUsage{OutputTokens: t.outputTokens}
	if t.usage != nil {
		usage = types.AnthropicUsage{
			InputTokens:  t.usage.PromptTokens,
			OutputTokens: t.usage.CompletionTokens,
		}
	}
	t.writeEvent("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": usage,
	})
	t.writeEvent("message_stop", map[string]any{"type": "message_stop"})
}
