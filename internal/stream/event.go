package stream

import (
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"codexrelay/internal/types"
)

// EventKind identifies the upstream event variants the relay reacts to.
type EventKind int

const (
	// TextDelta carries an assistant text fragment.
	TextDelta EventKind = iota
	// FunctionCallAdded announces a new function call item.
	FunctionCallAdded
	// FunctionCallArgsDelta carries a fragment of function call arguments.
	FunctionCallArgsDelta
	// FunctionCallDone closes a function call item, possibly with the full
	// argument string.
	FunctionCallDone
	// Completed carries the final assembled response.
	Completed
	// Failed signals a terminal upstream failure.
	Failed
)

// Event is one decoded upstream event. Which fields are set depends on Kind.
type Event struct {
	Kind EventKind

	// TextDelta / FunctionCallArgsDelta
	Delta string

	// FunctionCallAdded / FunctionCallDone
	ItemID   string
	ItemName string
	// FunctionCallDone only: full argument JSON, empty if absent.
	Args string

	// Completed
	Text  string
	Calls []types.ToolCallRecord
	Usage *types.Usage

	// Failed
	ErrMessage string
}

// ParseEvent decodes one SSE data record. Returns false for records the
// relay does not react to, including malformed JSON.
func ParseEvent(data string) (Event, bool) {
	doc := gjson.Parse(data)
	if !doc.IsObject() {
		return Event{}, false
	}
	switch doc.Get("type").String() {
	case "response.output_text.delta":
		if delta := doc.Get("delta").String(); delta != "" {
			return Event{Kind: TextDelta, Delta: delta}, true
		}
	case "response.output_item.added":
		item := doc.Get("item")
		if item.Get("type").String() == "function_call" {
			return Event{
				Kind:     FunctionCallAdded,
				ItemID:   item.Get("id").String(),
				ItemName: item.Get("name").String(),
			}, true
		}
	case "response.function_call_arguments.delta", "response.output_item.delta":
		if delta := doc.Get("delta").String(); delta != "" {
			return Event{Kind: FunctionCallArgsDelta, Delta: delta}, true
		}
	case "response.output_item.done":
		item := doc.Get("item")
		if item.Get("type").String() == "function_call" {
			return Event{
				Kind:     FunctionCallDone,
				ItemID:   item.Get("id").String(),
				ItemName: item.Get("name").String(),
				Args:     argumentsString(item.Get("arguments")),
			}, true
		}
	case "response.completed":
		resp := doc.Get("response")
		if resp.IsObject() {
			ev := Event{Kind: Completed}
			ev.Text, ev.Calls = extractOutput(resp)
			ev.Usage = extractUsage(resp.Get("usage"))
			return ev, true
		}
	case "response.failed":
		msg := doc.Get("response.error.message").String()
		if msg == "" {
			msg = doc.Get("error.message").String()
		}
		if msg == "" {
			msg = "upstream reported failure"
		}
		return Event{Kind: Failed, ErrMessage: msg}, true
	}
	return Event{}, false
}

// argumentsString normalizes the arguments field, which may arrive as a
// JSON string or an embedded object.
func argumentsString(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.String()
	case gjson.JSON:
		return v.Raw
	}
	return ""
}

// extractOutput walks a completed response's output list pulling the first
// assistant text and every function call, in output order.
func extractOutput(resp gjson.Result) (string, []types.ToolCallRecord) {
	var text string
	var calls []types.ToolCallRecord
	resp.Get("output").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "message":
			if text == "" && item.Get("role").String() == "assistant" {
				item.Get("content").ForEach(func(_, c gjson.Result) bool {
					if c.Get("type").String() == "output_text" {
						if t := c.Get("text").String(); t != "" {
							text = t
							return false
						}
					}
					return true
				})
			}
		case "function_call":
			id := item.Get("id").String()
			if id == "" {
				id = "toolu_" + uuid.NewString()
			}
			calls = append(calls, types.ToolCallRecord{
				ID:        id,
				Name:      item.Get("name").String(),
				Arguments: argumentsString(item.Get("arguments")),
			})
		}
		return true
	})
	return text, calls
}

func extractUsage(usage gjson.Result) *types.Usage {
	m, ok := usage.Value().(map[string]any)
	if !ok {
		return nil
	}
	return types.UsageFromMap(m)
}
