package policy

import (
	"strings"
	"testing"
)

func TestStripHookNoiseDropsControlJSON(t *testing.T) {
	in := "before\n{\"continue\":true,\"suppressOutput\":true}\nafter"
	got := StripHookNoise(in)
	if strings.Contains(got, "suppressOutput") {
		t.Errorf("control JSON survived: %q", got)
	}
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Errorf("surrounding text lost: %q", got)
	}
}

func TestStripHookNoiseDropsHookSpecificOutput(t *testing.T) {
	in := `{"hookSpecificOutput":{"hookEventName":"SessionStart"}}`
	if got := StripHookNoise(in); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestStripHookNoiseKeepsOrdinaryJSON(t *testing.T) {
	in := `{"name":"value"}`
	if got := StripHookNoise(in); got != in {
		t.Errorf("ordinary JSON line altered: %q", got)
	}
}

func TestStripHookNoiseDropsWrapperLines(t *testing.T) {
	in := "real output\n[Wrapper] starting worker\nmore output"
	got := StripHookNoise(in)
	if strings.Contains(got, "starting worker") {
		t.Errorf("wrapper line survived: %q", got)
	}
	if !strings.Contains(got, "real output") {
		t.Errorf("real text lost: %q", got)
	}
}

func TestStripHookNoiseCollapsesNewlines(t *testing.T) {
	got := StripHookNoise("a\n\n\n\n\n\nb")
	if got != "a\n\n\nb" {
		t.Errorf("got %q", got)
	}
}

func TestStripHookNoiseEmpty(t *testing.T) {
	if got := StripHookNoise(""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestRewriteSystemTextStripsUIToolLines(t *testing.T) {
	sys := "You are an assistant.\nYou MUST use AskUserQuestion for clarifications.\nBe concise."
	got := RewriteSystemText(sys, nil)
	if strings.Contains(got, "You MUST use AskUserQuestion") {
		t.Errorf("constraint line survived: %q", got)
	}
	if !strings.Contains(got, "Compatibility note") {
		t.Errorf("note missing: %q", got)
	}
	if !strings.Contains(got, "Be concise.") {
		t.Errorf("unrelated line lost: %q", got)
	}
}

func TestRewriteSystemTextNoMentionPassThrough(t *testing.T) {
	sys := "You are an assistant. Be concise."
	if got := RewriteSystemText(sys, nil); got != sys {
		t.Errorf("prompt altered without UI tool mention: %q", got)
	}
}

func TestRewriteSystemTextToolDeclaredPassThrough(t *testing.T) {
	sys := "Use AskUserQuestion when unsure."
	avail := map[string]bool{"AskUserQuestion": true}
	if got := RewriteSystemText(sys, avail); got != sys {
		t.Errorf("prompt altered despite declared tool: %q", got)
	}
}

func TestRewriteSystemTextEmpty(t *testing.T) {
	if got := RewriteSystemText("", nil); got != "" {
		t.Errorf("got %q", got)
	}
}
