// Package parse extracts structured intents out of free-form generated
// text: a tiny textual wire protocol produced by an unreliable
// collaborator. The three markers (TOOL_CALL:, ESCALATE:, RESPONSE:) and the
// balanced-JSON scanner are shared by the router, the agent runtime, and
// the supervisor.
package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/natpat/caz/agent/contract"
)

const (
	MarkerToolCall = "TOOL_CALL:"
	MarkerEscalate = "ESCALATE:"
	MarkerResponse = "RESPONSE:"
)

var (
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	toolCallRe   = regexp.MustCompile(`(?s)TOOL_CALL:\s*\{.*?\}`)
	toolResultRe = regexp.MustCompile(`(?s)TOOL_RESULT.*?(\n\n|\z)`)
	codeBlockRe  = regexp.MustCompile("(?s)```.*?```")
	paragraphRe  = regexp.MustCompile(`\n\n+`)
)

// StripFence removes a single markdown code fence if present, otherwise
// returns the trimmed input.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// ExtractObject scans for the first '{' and returns the minimal balanced
// JSON object substring, tracking nesting depth and string-literal state so
// nested objects and escaped quotes inside string values do not truncate
// the match. Returns false if no balanced object exists.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ExtractJSON combines fence stripping with balanced-object extraction,
// falling back to the cleaned text when no balanced object is found.
func ExtractJSON(text string) string {
	cleaned := StripFence(text)
	if obj, ok := ExtractObject(cleaned); ok {
		return obj
	}
	return cleaned
}

// ToolRequest is the payload following a TOOL_CALL: marker.
type ToolRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// EscalationRequest is the payload following an ESCALATE: marker.
type EscalationRequest struct {
	Reason  string `json:"reason"`
	Summary struct {
		RecommendedAction string `json:"recommendedAction"`
		Priority          string `json:"priority"`
	} `json:"summary"`
}

type Kind int

const (
	// KindReply means no actionable marker was found; the caller applies
	// its final-message fallback ladder to the raw text.
	KindReply Kind = iota
	KindToolCall
	KindMalformedToolCall
	KindEscalation
	KindMalformedEscalation
)

// Outcome is the tagged result of scanning one generated response.
type Outcome struct {
	Kind       Kind
	Tool       ToolRequest
	Escalation EscalationRequest
	Err        error
}

// Next classifies the generated text by its first actionable marker, with
// TOOL_CALL taking precedence over ESCALATE. A marker whose JSON payload
// cannot be extracted or decoded yields the corresponding Malformed kind
// with Err set, so the caller can re-prompt with a correction.
func Next(text string) Outcome {
	if idx := strings.Index(text, MarkerToolCall); idx != -1 {
		req, err := ParseToolCall(text[idx+len(MarkerToolCall):])
		if err != nil {
			return Outcome{Kind: KindMalformedToolCall, Err: err}
		}
		return Outcome{Kind: KindToolCall, Tool: req}
	}

	if idx := strings.Index(text, MarkerEscalate); idx != -1 {
		req, err := parseEscalationPayload(text[idx+len(MarkerEscalate):])
		if err != nil {
			return Outcome{Kind: KindMalformedEscalation, Err: err}
		}
		return Outcome{Kind: KindEscalation, Escalation: req}
	}

	return Outcome{Kind: KindReply}
}

// ParseToolCall decodes the JSON object at the start of the text following
// a TOOL_CALL: marker.
func ParseToolCall(afterMarker string) (ToolRequest, error) {
	var req ToolRequest
	if err := json.Unmarshal([]byte(ExtractJSON(afterMarker)), &req); err != nil {
		return ToolRequest{}, fmt.Errorf("%w: tool call payload: %v", contract.ErrMalformedOutput, err)
	}
	return req, nil
}

// Escalation finds an ESCALATE: marker anywhere in the text and decodes its
// payload. The second return reports whether the marker was present at all;
// a present marker with an undecodable payload returns (zero, true, err).
func Escalation(text string) (EscalationRequest, bool, error) {
	idx := strings.Index(text, MarkerEscalate)
	if idx == -1 {
		return EscalationRequest{}, false, nil
	}
	req, err := parseEscalationPayload(text[idx+len(MarkerEscalate):])
	return req, true, err
}

func parseEscalationPayload(afterMarker string) (EscalationRequest, error) {
	var req EscalationRequest
	if err := json.Unmarshal([]byte(ExtractJSON(afterMarker)), &req); err != nil {
		return EscalationRequest{}, fmt.Errorf("%w: escalation payload: %v", contract.ErrMalformedOutput, err)
	}
	return req, nil
}

// FinalReply returns the text following a RESPONSE: marker up to the next
// marker or end of string.
func FinalReply(text string) (string, bool) {
	idx := strings.Index(text, MarkerResponse)
	if idx == -1 {
		return "", false
	}
	rest := text[idx+len(MarkerResponse):]

	end := len(rest)
	for _, marker := range []string{MarkerToolCall, MarkerEscalate} {
		if i := strings.Index(rest, marker); i != -1 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(rest[:end]), true
}

// Cleaned strips tool-call and tool-result fragments plus code fences and
// returns the remaining trimmed text. Callers use the result verbatim only
// when it contains no leftover markers.
func Cleaned(text string) string {
	cleaned := toolCallRe.ReplaceAllString(text, "")
	cleaned = toolResultRe.ReplaceAllString(cleaned, "")
	cleaned = codeBlockRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// LastParagraph returns the last non-empty paragraph of the raw text that
// carries no marker noise, the third rung of the fallback ladder.
func LastParagraph(text string) (string, bool) {
	var candidate string
	for _, p := range paragraphRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" || strings.Contains(p, MarkerToolCall) ||
			strings.Contains(p, "TOOL_RESULT") || strings.HasPrefix(p, "{") {
			continue
		}
		candidate = p
	}
	if candidate == "" {
		return "", false
	}
	return candidate, true
}
