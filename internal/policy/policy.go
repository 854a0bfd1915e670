// Package policy holds text heuristics applied to conversation content
// before it is forwarded upstream: hook noise removal and system prompt
// compatibility rewrites.
package policy

import (
	"regexp"
	"strings"
)

var (
	wrapperLine    = regexp.MustCompile(`(?i)\[wrapper\]`)
	excessNewlines = regexp.MustCompile(`\n{4,}`)
)

// StripHookNoise removes control output that editor hooks and wrappers leak
// into message text. Only lines that are clearly control noise are dropped;
// everything else passes through unchanged. Runs of four or more newlines
// collapse to three.
func StripHookNoise(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			kept = append(kept, line)
			continue
		}
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
			if strings.Contains(trimmed, `"suppressOutput"`) || strings.Contains(trimmed, `"hookSpecificOutput"`) {
				continue
			}
		}
		if wrapperLine.MatchString(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return excessNewlines.ReplaceAllString(strings.Join(kept, "\n"), "\n\n\n")
}

// uiToolNames are interactive workflow tools that only exist in the
// originating client. When a system prompt demands them but the request does
// not declare them, the upstream model can stall waiting for a tool it
// cannot call.
var uiToolNames = []string{"AskUserQuestion", "EnterPlanMode", "ExitPlanMode", "SlashCommand"}

const compatNote = "\n---\n" +
	"Compatibility note (relay):\n" +
	"- UI tools like AskUserQuestion/EnterPlanMode/ExitPlanMode/SlashCommand are not available here.\n" +
	"- If you need clarification, ask the user directly in normal chat text and continue.\n" +
	"- Tool specs may be present; do not emit tool calls unless tools are actually provided."

// RewriteSystemText strips hard constraints around unavailable UI tools from
// a system prompt and appends a short note telling the model to ask in plain
// text instead. The rewrite only fires when the prompt mentions one of the
// UI tools and none of them appear in availableTools; if the client actually
// declared the tools the prompt is left intact.
func RewriteSystemText(systemText string, availableTools map[string]bool) string {
	if systemText == "" {
		return ""
	}
	mentions := false
	for _, name := range uiToolNames {
		if strings.Contains(systemText, name) {
			mentions = true
			break
		}
	}
	if !mentions {
		return systemText
	}
	for _, name := range uiToolNames {
		if availableTools[name] {
			return systemText
		}
	}
	lines := strings.Split(systemText, "\n")
	filtered := lines[:0]
	for _, line := range lines {
		drop := false
		for _, name := range uiToolNames {
			if strings.Contains(line, name) {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, line)
		}
	}
	return strings.Join(filtered, "\n") + compatNote
}
