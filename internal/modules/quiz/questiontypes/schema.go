package questiontypes

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in one payload.
type ValidationError struct {
	Type   string       `json:"type"`
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "invalid question"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Path == "" || fe.Path == "(root)" {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, fe.Path+": "+fe.Message)
	}
	return fmt.Sprintf("invalid %s question: %s", e.Type, strings.Join(parts, "; "))
}

func invalid(typ string, path, format string, args ...any) *ValidationError {
	return &ValidationError{Type: typ, Errors: []FieldError{{Path: path, Message: fmt.Sprintf(format, args...)}}}
}

// validateSchema checks raw against schema and decodes it into out.
func validateSchema(typ string, schema map[string]any, raw json.RawMessage, out any) error {
	doc := strings.TrimSpace(string(raw))
	if doc == "" {
		doc = "null"
	}
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewStringLoader(doc))
	if err != nil {
		return invalid(typ, "", "payload is not valid JSON: %v", err)
	}
	if !res.Valid() {
		items := make([]FieldError, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			items = append(items, FieldError{Path: re.Field(), Message: re.Description()})
		}
		return &ValidationError{Type: typ, Errors: items}
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return invalid(typ, "", "decode payload: %v", err)
	}
	return nil
}

func stringSchema(minLen int) map[string]any {
	return map[string]any{"type": "string", "minLength": minLen}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func canonical(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func paragraph(text string) string {
	return "<p>" + strings.TrimSpace(text) + "</p>"
}
