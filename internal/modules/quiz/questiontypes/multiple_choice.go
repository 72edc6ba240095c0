package questiontypes

import (
	"encoding/json"
	"fmt"
	"strings"
)

type MultipleChoice struct{}

type MultipleChoiceData struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

func (MultipleChoice) Name() string { return "multiple_choice" }

func (MultipleChoice) PromptGuide() string {
	return `{"question_text": string, "options": [4 distinct strings], "correct_answer": one of options verbatim, "explanation": string}`
}

func (MultipleChoice) Schema() map[string]any {
	return objectSchema(map[string]any{
		"question_text": stringSchema(1),
		"options": map[string]any{
			"type":     "array",
			"items":    stringSchema(1),
			"minItems": 4,
			"maxItems": 4,
		},
		"correct_answer": stringSchema(1),
		"explanation":    map[string]any{"type": "string"},
	}, "question_text", "options", "correct_answer")
}

func (t MultipleChoice) Validate(raw json.RawMessage) (json.RawMessage, error) {
	var d MultipleChoiceData
	if err := validateSchema(t.Name(), t.Schema(), raw, &d); err != nil {
		return nil, err
	}
	d.QuestionText = strings.TrimSpace(d.QuestionText)
	seen := map[string]bool{}
	found := false
	for i, opt := range d.Options {
		opt = strings.TrimSpace(opt)
		d.Options[i] = opt
		key := strings.ToLower(opt)
		if seen[key] {
			return nil, invalid(t.Name(), "options", "duplicate option %q", opt)
		}
		seen[key] = true
		if opt == strings.TrimSpace(d.CorrectAnswer) {
			found = true
		}
	}
	if !found {
		return nil, invalid(t.Name(), "correct_answer", "correct_answer %q is not one of the options", d.CorrectAnswer)
	}
	d.CorrectAnswer = strings.TrimSpace(d.CorrectAnswer)
	return canonical(d)
}

func (MultipleChoice) Points(json.RawMessage) float64 { return 1 }

func (t MultipleChoice) FormatForCanvas(data json.RawMessage, position int) (map[string]any, error) {
	var d MultipleChoiceData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.Name(), err)
	}
	choices := make([]map[string]any, 0, len(d.Options))
	correctID := ""
	for i, opt := range d.Options {
		id := fmt.Sprintf("choice_%d", i+1)
		if opt == d.CorrectAnswer {
			correctID = id
		}
		choices = append(choices, map[string]any{"id": id, "position": i + 1, "item_body": paragraph(opt)})
	}
	return canvasItem(position, t.Points(data), "choice", d.QuestionText, d.Explanation,
		map[string]any{"choices": choices},
		map[string]any{"value": correctID},
		map[string]any{"shuffle_rules": map[string]any{"choices": map[string]any{"shuffled": true}}, "vary_points_by_answer": false},
	), nil
}

func canvasItem(position int, points float64, slug, question, feedback string, interaction, scoring, properties map[string]any) map[string]any {
	entry := map[string]any{
		"title":                 fmt.Sprintf("Question %d", position),
		"item_body":             paragraph(question),
		"calculator_type":       "none",
		"interaction_type_slug": slug,
		"interaction_data":      interaction,
		"properties":            properties,
		"scoring_data":          scoring,
		"scoring_algorithm":     scoringAlgorithm(slug),
	}
	if strings.TrimSpace(feedback) != "" {
		entry["feedback"] = map[string]any{"neutral": paragraph(feedback)}
	}
	return map[string]any{
		"position":        position,
		"points_possible": points,
		"entry_type":      "Item",
		"entry":           entry,
	}
}

func scoringAlgorithm(slug string) string {
	switch slug {
	case "matching":
		return "DeepEquals"
	case "rich-fill-blank":
		return "MultipleMethods"
	default:
		return "Equivalence"
	}
}
