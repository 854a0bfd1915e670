package codec

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"codexrelay/internal/policy"
	"codexrelay/internal/stream"
	"codexrelay/internal/transform"
	"codexrelay/internal/types"
)

// ChatDecoder decodes Chat Completions requests into canonical form.
type ChatDecoder struct{}

func (d *ChatDecoder) Format() Format { return FormatChatCompletions }

func (d *ChatDecoder) Decode(body []byte) (*types.CanonicalRequest, error) {
	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var systemParts []string
	var turns []types.ConversationTurn
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			if text := chatContentText(msg.Content); text != "" {
				systemParts = append(systemParts, text)
			}
		case "assistant":
			var parts []types.ContentPart
			if text := chatContentText(msg.Content); text != "" {
				parts = append(parts, types.ContentPart{Kind: types.PartText, Text: text})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, types.ContentPart{
					Kind:      types.PartToolUse,
					ToolID:    call.ID,
					ToolName:  call.Function.Name,
					ToolInput: json.RawMessage(call.Function.Arguments),
				})
			}
			turns = append(turns, types.ConversationTurn{Role: "assistant", Parts: parts})
		case "tool":
			turns = append(turns, types.ConversationTurn{Role: "user", Parts: []types.ContentPart{{
				Kind:       types.PartToolResult,
				ToolUseID:  msg.ToolCallID,
				ResultText: chatContentText(msg.Content),
			}}})
		default: // user and anything unrecognized
			turns = append(turns, types.ConversationTurn{Role: "user", Parts: chatContentParts(msg.Content)})
		}
	}

	effort := req.ReasoningEffort
	if effort == "" {
		effort = sniffReasoningEffort(body)
	}

	return &types.CanonicalRequest{
		Turns:           turns,
		SystemText:      strings.Join(systemParts, "\n"),
		Tools:           transform.ToolSpecsFromChat(req.Tools),
		ToolChoice:      req.ToolChoice,
		RequestedModel:  req.Model,
		ReasoningEffort: effort,
		Stream:          req.Stream,
	}, nil
}

// chatContentText flattens message content to plain text, dropping
// non-text parts.
func chatContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []types.ChatContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var texts []string
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// chatContentParts maps message content to canonical parts, keeping image
// references as image parts.
func chatContentParts(raw json.RawMessage) []types.ContentPart {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []types.ContentPart{{Kind: types.PartText, Text: s}}
	}
	var decoded []types.ChatContentPart
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	var parts []types.ContentPart
	for _, p := range decoded {
		switch p.Type {
		case "text":
			parts = append(parts, types.ContentPart{Kind: types.PartText, Text: p.Text})
		case "image_url":
			parts = append(parts, types.ContentPart{Kind: types.PartImage, SourceKind: "url"})
		default:
			preview := p.Text
			if len(preview) > 500 {
				preview = preview[:500]
			}
			parts = append(parts, types.ContentPart{Kind: types.PartOpaque, OrigType: p.Type, Preview: preview})
		}
	}
	return parts
}

// ChatEncoder encodes responses in Chat Completions format.
type ChatEncoder struct{}

func (e *ChatEncoder) WriteStreamHeaders(w http.ResponseWriter, statusCode int) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(statusCode)
}

func (e *ChatEncoder) StreamTranslator(w http.ResponseWriter, model string) Translator {
	return &chatStreamTranslator{w: w, model: model}
}

func (e *ChatEncoder) WriteCollected(w http.ResponseWriter, statusCode int, agg *stream.Aggregate, model string) {
	if agg.ErrMessage != "" {
		WriteOpenAIError(w, http.StatusBadGateway, agg.ErrMessage)
		return
	}

	msg := types.ChatResponseMsg{Role: "assistant", Content: policy.StripHookNoise(agg.Text)}
	for _, call := range agg.Calls {
		if call.Name == "" && strings.TrimSpace(call.Arguments) == "" {
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, toolCallOut(call))
	}

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}

	WriteJSON(w, statusCode, types.ChatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.ChatChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: types.StringPtr(finish),
		}},
		Usage: agg.Usage,
	})
}

func (e *ChatEncoder) WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteOpenAIError(w, statusCode, message)
}

func toolCallOut(call types.ToolCallRecord) types.ToolCall {
	id := call.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args := call.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return types.ToolCall{
		ID:       id,
		Type:     "function",
		Function: types.FunctionCall{Name: call.Name, Arguments: args},
	}
}

// chatStreamTranslator renders upstream events as Chat Completions chunks.
type chatStreamTranslator struct {
	w     http.ResponseWriter
	model string

	flusher  http.Flusher
	id       string
	created  int64
	sentRole bool
	sawTool  bool
	nextTool int
	toolIdx  map[string]int
	usage    *types.Usage
}

func (t *chatStreamTranslator) writeChunk(delta types.ChatDelta, finish *string, usage *types.Usage) {
	chunk := types.ChatCompletionChunk{
		ID:      t.id,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []types.ChatChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		Usage:   usage,
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(t.w, "data: %s\n\n", data)
	if t.flusher != nil {
		t.flusher.Flush()
	}
}

func (t *chatStreamTranslator) roleDelta() types.ChatDelta {
	d := types.ChatDelta{}
	if !t.sentRole {
		d.Role = "assistant"
		t.sentRole = true
	}
	return d
}

func (t *chatStreamTranslator) Translate(reader *stream.Reader) {
	t.flusher, _ = t.w.(http.Flusher)
	t.id = "chatcmpl-" + uuid.NewString()
	t.created = time.Now().Unix()
	t.toolIdx = make(map[string]int)

	buf := stream.NewToolBuffer()
	for {
		ev, err := reader.Next()
		if err != nil {
			break
		}
		switch ev.Kind {
		case stream.TextDelta:
			d := t.roleDelta()
			d.Content = ev.Delta
			t.writeChunk(d, nil, nil)

		case stream.FunctionCallAdded:
			id := buf.Start(ev.ItemID, ev.ItemName)
			idx, ok := t.toolIdx[id]
			if !ok {
				idx = t.nextTool
				t.nextTool++
				t.toolIdx[id] = idx
			}
			t.sawTool = true
			d := t.roleDelta()
			d.ToolCalls = []types.ToolCallDelta{{
				Index:    idx,
				ID:       id,
				Type:     "function",
				Function: &types.FunctionCallDelta{Name: ev.ItemName, Arguments: ""},
			}}
			t.writeChunk(d, nil, nil)

		case stream.FunctionCallArgsDelta:
			id, _, ok := buf.Active()
			if !ok {
				continue
			}
			buf.AppendActive(ev.Delta)
			d := t.roleDelta()
			d.ToolCalls = []types.ToolCallDelta{{
				Index:    t.toolIdx[id],
				Function: &types.FunctionCallDelta{Arguments: ev.Delta},
			}}
			t.writeChunk(d, nil, nil)

		case stream.FunctionCallDone:
			buf.Finish(ev.ItemID, ev.ItemName, ev.Args)

		case stream.Completed:
			if ev.Usage != nil {
				t.usage = ev.Usage
			}

		case stream.Failed:
			payload, err := json.Marshal(types.ErrorResponse{
				Error: types.ErrorDetail{Message: ev.ErrMessage, Type: "api_error"},
			})
			if err == nil {
				fmt.Fprintf(t.w, "data: %s\n\n", payload)
			}
			fmt.Fprint(t.w, "data: [DONE]\n\n")
			if t.flusher != nil {
				t.flusher.Flush()
			}
			return
		}
	}

	finish := "stop"
	if t.sawTool {
		finish = "tool_calls"
	}
	t.writeChunk(types.ChatDelta{}, types.StringPtr(finish), t.usage)
	fmt.Fprint(t.w, "data: [DONE]\n\n")
	if t.flusher != nil {
		t.flusher.Flush()
	}
}
