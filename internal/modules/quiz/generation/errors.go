package generation

import (
	"encoding/json"
	"fmt"
)

// StructuralParseError means the model output was not a JSON array of items.
type StructuralParseError struct {
	Message string
	Snippet string
}

func (e *StructuralParseError) Error() string {
	return "structural parse error: " + e.Message
}

// ItemValidationError is one generated item that failed its question type's rules.
type ItemValidationError struct {
	Index   int
	Payload json.RawMessage
	Err     error
}

func (e *ItemValidationError) Error() string {
	return fmt.Sprintf("item %d invalid: %v", e.Index, e.Err)
}

func (e *ItemValidationError) Unwrap() error { return e.Err }
