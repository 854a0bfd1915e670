package types

import (
	"encoding/json"
	"testing"
)

func TestIntFromAny(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{float64(7), 7},
		{int(3), 3},
		{int64(42), 42},
		{json.Number("11"), 11},
		{json.Number("not a number"), 0},
		{"12", 0},
		{nil, 0},
	}
	for _, c := range cases {
		if got := IntFromAny(c.in); got != c.want {
			t.Errorf("IntFromAny(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestUsageFromMap(t *testing.T) {
	u := UsageFromMap(map[string]any{"input_tokens": float64(4), "output_tokens": float64(2)})
	if u == nil || u.PromptTokens != 4 || u.CompletionTokens != 2 {
		t.Fatalf("usage: %+v", u)
	}
	// total falls back to the sum when absent
	if u.TotalTokens != 6 {
		t.Errorf("total: %d", u.TotalTokens)
	}

	u = UsageFromMap(map[string]any{"input_tokens": float64(1), "output_tokens": float64(1), "total_tokens": float64(9)})
	if u.TotalTokens != 9 {
		t.Errorf("explicit total: %d", u.TotalTokens)
	}

	if UsageFromMap(nil) != nil {
		t.Error("nil map should yield nil usage")
	}
}
