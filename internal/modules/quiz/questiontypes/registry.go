// Package questiontypes holds the closed set of question variants. Each variant
// validates a generated payload, describes its JSON shape for prompts, and
// formats an approved question for Canvas.
package questiontypes

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type QuestionType interface {
	Name() string
	// PromptGuide describes the JSON object the model must emit for one item.
	PromptGuide() string
	Schema() map[string]any
	// Validate checks raw against the schema and the variant's own rules and
	// returns the canonical payload.
	Validate(raw json.RawMessage) (json.RawMessage, error)
	Points(data json.RawMessage) float64
	FormatForCanvas(data json.RawMessage, position int) (map[string]any, error)
}

// Registry resolves question types by name. It is built once at startup and
// passed to the stages that need it.
type Registry struct {
	types map[string]QuestionType
}

func NewRegistry(types ...QuestionType) (*Registry, error) {
	r := &Registry{types: map[string]QuestionType{}}
	for _, t := range types {
		if t == nil {
			continue
		}
		name := strings.TrimSpace(t.Name())
		if name == "" {
			return nil, fmt.Errorf("question type with empty name")
		}
		if _, dup := r.types[name]; dup {
			return nil, fmt.Errorf("question type %q registered twice", name)
		}
		r.types[name] = t
	}
	return r, nil
}

// Default returns a registry with every built-in variant.
func Default() *Registry {
	r, err := NewRegistry(MultipleChoice{}, TrueFalse{}, FillInBlank{}, Matching{})
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Get(name string) (QuestionType, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.types[strings.TrimSpace(name)]
	return t, ok
}

func (r *Registry) Known(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.types))
	for k := range r.types {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
