package generation

import (
	"bytes"
	"encoding/json"
	"strings"
)

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	firstNL := strings.IndexByte(s, '\n')
	if firstNL == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[firstNL+1:]
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// parseItems requires the (fence-stripped) output to be exactly one JSON array.
func parseItems(raw string, snippetChars int) ([]json.RawMessage, error) {
	text := stripFences(raw)
	snippet := text
	if len(snippet) > snippetChars {
		snippet = snippet[:snippetChars]
	}
	if text == "" {
		return nil, &StructuralParseError{Message: "empty response", Snippet: snippet}
	}
	if text[0] != '[' {
		return nil, &StructuralParseError{Message: "expected a JSON array", Snippet: snippet}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, &StructuralParseError{Message: err.Error(), Snippet: snippet}
	}
	if dec.More() {
		return nil, &StructuralParseError{Message: "unexpected content after JSON array", Snippet: snippet}
	}
	return items, nil
}
