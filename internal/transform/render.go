package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"codexrelay/internal/policy"
	"codexrelay/internal/types"
)

// PayloadPolicy controls how much structured tool payload survives
// flattening into upstream text.
type PayloadPolicy string

const (
	PayloadFull     PayloadPolicy = "full"
	PayloadTruncate PayloadPolicy = "truncate"
	PayloadNone     PayloadPolicy = "none"
)

// RenderOptions parameterizes content flattening.
type RenderOptions struct {
	Policy   PayloadPolicy
	MaxChars int
}

func (o RenderOptions) cap(s string) string {
	if o.Policy == PayloadTruncate && o.MaxChars > 0 && len(s) > o.MaxChars {
		return s[:o.MaxChars] + "…"
	}
	return s
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// RenderParts flattens an ordered sequence of content parts into the single
// text string the upstream accepts. Non-text parts become bracketed tag
// lines so the model keeps track of prior tool activity; free text is run
// through hook-noise stripping.
func RenderParts(parts []types.ContentPart, opts RenderOptions) string {
	chunks := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case types.PartText:
			if p.Text != "" {
				chunks = append(chunks, policy.StripHookNoise(p.Text))
			}
		case types.PartToolUse:
			var b strings.Builder
			b.WriteString("[tool_use")
			if p.ToolID != "" {
				b.WriteString(" id=" + p.ToolID)
			}
			if p.ToolName != "" {
				b.WriteString(" name=" + p.ToolName)
			}
			if opts.Policy != PayloadNone {
				if input := opts.cap(compactJSON(p.ToolInput)); input != "" {
					b.WriteString(" input=" + input)
				}
			}
			b.WriteString("]")
			chunks = append(chunks, b.String())
		case types.PartToolResult:
			text := policy.StripHookNoise(p.ResultText)
			if opts.Policy == PayloadNone {
				text = ""
			} else {
				text = opts.cap(text)
			}
			var b strings.Builder
			b.WriteString("[tool_result")
			if p.ToolUseID != "" {
				b.WriteString(" tool_use_id=" + p.ToolUseID)
			}
			if p.IsError {
				b.WriteString(" is_error=true")
			}
			b.WriteString("]")
			if text != "" {
				b.WriteString("\n" + text)
			}
			chunks = append(chunks, b.String())
		case types.PartImage:
			var b strings.Builder
			b.WriteString("[image")
			if p.MediaType != "" {
				b.WriteString(" media_type=" + p.MediaType)
			}
			if p.SourceKind != "" {
				b.WriteString(" source=" + p.SourceKind)
			}
			if p.ApproxBytes > 0 {
				b.WriteString(fmt.Sprintf(" bytes~=%d", p.ApproxBytes))
			}
			b.WriteString("]")
			chunks = append(chunks, b.String())
		case types.PartOpaque:
			origType := p.OrigType
			if origType == "" {
				origType = "unknown_part"
			}
			tag := "[" + origType + " omitted]"
			if p.Preview != "" {
				preview := p.Preview
				if len(preview) > 500 {
					preview = preview[:500]
				}
				tag += " " + preview
			}
			chunks = append(chunks, tag)
		}
	}
	return strings.Join(chunks, "\n")
}
