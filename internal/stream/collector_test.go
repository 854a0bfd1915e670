package stream

import (
	"io"
	"strings"
	"testing"
)

func sse(records ...string) io.Reader {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("data: " + r + "\n\n")
	}
	return strings.NewReader(b.String())
}

func TestReaderStopsAtDone(t *testing.T) {
	r := NewReader(sse(
		`{"type":"response.output_text.delta","delta":"hi"}`,
		"[DONE]",
		`{"type":"response.output_text.delta","delta":"ignored"}`,
	))
	ev, err := r.Next()
	if err != nil || ev.Kind != TextDelta || ev.Delta != "hi" {
		t.Fatalf("got %+v err=%v", ev, err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF after [DONE], got %v", err)
	}
}

func TestReaderEOFWithoutDone(t *testing.T) {
	r := NewReader(sse(`{"type":"response.output_text.delta","delta":"hi"}`))
	if _, err := r.Next(); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestCollectTextDeltas(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.output_text.delta","delta":"Hello"}`,
		`{"type":"response.output_text.delta","delta":", world"}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if agg.Text != "Hello, world" {
		t.Errorf("text: %q", agg.Text)
	}
}

func TestCollectCompletedTextWins(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.output_text.delta","delta":"partial"}`,
		`{"type":"response.completed","response":{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"full final text"}]}]}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if agg.Text != "full final text" {
		t.Errorf("text: %q", agg.Text)
	}
}

func TestCollectToolCallAssembly(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc_1","name":"Bash"}}`,
		`{"type":"response.function_call_arguments.delta","delta":"{\"comm"}`,
		`{"type":"response.function_call_arguments.delta","delta":"and\":\"ls\"}"}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc_1","name":"Bash"}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Calls) != 1 {
		t.Fatalf("calls: %+v", agg.Calls)
	}
	if agg.Calls[0].Arguments != `{"command":"ls"}` {
		t.Errorf("args: %q", agg.Calls[0].Arguments)
	}
}

func TestCollectDoneArgsOverrideDeltas(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc_1","name":"Bash"}}`,
		`{"type":"response.function_call_arguments.delta","delta":"{\"partial"}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc_1","arguments":"{\"full\":true}"}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if agg.Calls[0].Arguments != `{"full":true}` {
		t.Errorf("args: %q", agg.Calls[0].Arguments)
	}
}

func TestCollectOrphanArgsDeltaDropped(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.function_call_arguments.delta","delta":"orphan"}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Calls) != 0 {
		t.Errorf("calls: %+v", agg.Calls)
	}
}

func TestCollectGeneratesMissingCallID(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.output_item.added","item":{"type":"function_call","name":"Bash"}}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","arguments":"{}"}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Calls) != 1 || !strings.HasPrefix(agg.Calls[0].ID, "toolu_") {
		t.Errorf("calls: %+v", agg.Calls)
	}
}

func TestCollectCompletedOnlyCallWithoutID(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.completed","response":{"output":[{"type":"function_call","name":"Bash","arguments":"{\"cmd\":\"ls\"}"}]}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Calls) != 1 {
		t.Fatalf("calls: %+v", agg.Calls)
	}
	call := agg.Calls[0]
	if !strings.HasPrefix(call.ID, "toolu_") || call.Name != "Bash" || call.Arguments != `{"cmd":"ls"}` {
		t.Errorf("call: %+v", call)
	}
}

func TestCollectMultipleCallsKeepOrder(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc_a","name":"first"}}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc_a","arguments":"{}"}}`,
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc_b","name":"second"}}`,
		`{"type":"response.output_item.done","item":{"type":"function_call","id":"fc_b","arguments":"{}"}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Calls) != 2 || agg.Calls[0].Name != "first" || agg.Calls[1].Name != "second" {
		t.Errorf("calls: %+v", agg.Calls)
	}
}

func TestCollectUsageAndFailure(t *testing.T) {
	agg, err := Collect(NewReader(sse(
		`{"type":"response.completed","response":{"output":[],"usage":{"input_tokens":3,"output_tokens":7}}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if agg.Usage == nil || agg.Usage.TotalTokens != 10 {
		t.Errorf("usage: %+v", agg.Usage)
	}

	agg, err = Collect(NewReader(sse(
		`{"type":"response.failed","response":{"error":{"message":"quota exceeded"}}}`,
		"[DONE]",
	)))
	if err != nil {
		t.Fatal(err)
	}
	if agg.ErrMessage != "quota exceeded" {
		t.Errorf("err message: %q", agg.ErrMessage)
	}
}
