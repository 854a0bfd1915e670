package stream

import (
	"io"
	"strings"

	"codexrelay/internal/types"
)

// Aggregate is the assembled result of a consumed stream.
type Aggregate struct {
	Text       string
	Calls      []types.ToolCallRecord
	Usage      *types.Usage
	ErrMessage string
}

// Collect drains a reader into an aggregate. Text accumulates from deltas;
// a completed event carrying the full text replaces the accumulation.
// A transport error mid-stream is returned alongside whatever was gathered.
func Collect(r *Reader) (Aggregate, error) {
	var text strings.Builder
	var finalText string
	buf := NewToolBuffer()
	agg := Aggregate{}

	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			agg.Text = collectedText(finalText, &text)
			agg.Calls = buf.Calls()
			return agg, err
		}
		switch ev.Kind {
		case TextDelta:
			text.WriteString(ev.Delta)
		case FunctionCallAdded:
			buf.Start(ev.ItemID, ev.ItemName)
		case FunctionCallArgsDelta:
			buf.AppendActive(ev.Delta)
		case FunctionCallDone:
			buf.Finish(ev.ItemID, ev.ItemName, ev.Args)
		case Completed:
			if ev.Text != "" {
				finalText = ev.Text
			}
			buf.MergeCompleted(ev.Calls)
			if ev.Usage != nil {
				agg.Usage = ev.Usage
			}
		case Failed:
			agg.ErrMessage = ev.ErrMessage
		}
	}
	agg.Text = collectedText(finalText, &text)
	agg.Calls = buf.Calls()
	return agg, nil
}

func collectedText(finalText string, acc *strings.Builder) string {
	if finalText != "" {
		return finalText
	}
	return acc.String()
}
