package generate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON document out of model output. Models wrap JSON in
// markdown fences or leading prose often enough that lenient extraction is
// worth it; schema validation still decides whether the document is usable.
func ExtractJSON(content string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if fenced, ok := extractFenced(trimmed); ok && json.Valid([]byte(fenced)) {
		return json.RawMessage(fenced), nil
	}

	if inner, ok := extractBracketed(trimmed); ok && json.Valid([]byte(inner)) {
		return json.RawMessage(inner), nil
	}

	return nil, fmt.Errorf("response is not valid JSON")
}

func extractFenced(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:] // skip the language tag line
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func extractBracketed(s string) (string, bool) {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(s, pair[0])
		end := strings.LastIndexByte(s, pair[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(s[start : end+1]), true
		}
	}
	return "", false
}
