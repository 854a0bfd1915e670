package types

import "encoding/json"

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntFromAny coerces JSON-decoded numbers into int. Returns 0 for anything
// that is not a number.
func IntFromAny(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// UsageFromMap extracts token counts from a decoded upstream usage object.
// Missing or malformed fields count as zero; a nil map yields nil.
func UsageFromMap(m map[string]any) *Usage {
	if m == nil {
		return nil
	}
	in := IntFromAny(m["input_tokens"])
	out := IntFromAny(m["output_tokens"])
	total := IntFromAny(m["total_tokens"])
	if total == 0 {
		total = in + out
	}
	return &Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: total}
}
