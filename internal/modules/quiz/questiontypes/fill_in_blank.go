package questiontypes

import (
	"encoding/json"
	"fmt"
	"strings"
)

type FillInBlank struct{}

type Blank struct {
	Position         int      `json:"position"`
	CorrectAnswer    string   `json:"correct_answer"`
	AnswerVariations []string `json:"answer_variations,omitempty"`
	CaseSensitive    bool     `json:"case_sensitive"`
}

type FillInBlankData struct {
	QuestionText string  `json:"question_text"`
	Blanks       []Blank `json:"blanks"`
	Explanation  string  `json:"explanation,omitempty"`
}

func (FillInBlank) Name() string { return "fill_in_blank" }

func (FillInBlank) PromptGuide() string {
	return `{"question_text": text with markers [blank_1], [blank_2], ..., "blanks": [{"position": n matching a marker, "correct_answer": string, "answer_variations": [strings], "case_sensitive": boolean}], "explanation": string}`
}

func (FillInBlank) Schema() map[string]any {
	return objectSchema(map[string]any{
		"question_text": stringSchema(1),
		"blanks": map[string]any{
			"type":     "array",
			"minItems": 1,
			"maxItems": 10,
			"items": objectSchema(map[string]any{
				"position":          map[string]any{"type": "integer", "minimum": 1},
				"correct_answer":    stringSchema(1),
				"answer_variations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"case_sensitive":    map[string]any{"type": "boolean"},
			}, "position", "correct_answer"),
		},
		"explanation": map[string]any{"type": "string"},
	}, "question_text", "blanks")
}

func blankMarker(position int) string { return fmt.Sprintf("[blank_%d]", position) }

func (t FillInBlank) Validate(raw json.RawMessage) (json.RawMessage, error) {
	var d FillInBlankData
	if err := validateSchema(t.Name(), t.Schema(), raw, &d); err != nil {
		return nil, err
	}
	d.QuestionText = strings.TrimSpace(d.QuestionText)
	seen := map[int]bool{}
	for i, b := range d.Blanks {
		if seen[b.Position] {
			return nil, invalid(t.Name(), fmt.Sprintf("blanks.%d.position", i), "duplicate blank position %d", b.Position)
		}
		seen[b.Position] = true
		if !strings.Contains(d.QuestionText, blankMarker(b.Position)) {
			return nil, invalid(t.Name(), fmt.Sprintf("blanks.%d.position", i), "question_text has no %s marker", blankMarker(b.Position))
		}
		d.Blanks[i].CorrectAnswer = strings.TrimSpace(b.CorrectAnswer)
	}
	return canonical(d)
}

func (FillInBlank) Points(data json.RawMessage) float64 {
	var d FillInBlankData
	if err := json.Unmarshal(data, &d); err != nil || len(d.Blanks) == 0 {
		return 1
	}
	return float64(len(d.Blanks))
}

func (t FillInBlank) FormatForCanvas(data json.RawMessage, position int) (map[string]any, error) {
	var d FillInBlankData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.Name(), err)
	}
	body := d.QuestionText
	blanks := make([]map[string]any, 0, len(d.Blanks))
	values := make([]map[string]any, 0, len(d.Blanks))
	for _, b := range d.Blanks {
		id := fmt.Sprintf("blank_%d", b.Position)
		body = strings.ReplaceAll(body, blankMarker(b.Position), "`"+id+"`")
		blanks = append(blanks, map[string]any{"id": id, "answer_type": "openEntry"})
		accepted := append([]string{b.CorrectAnswer}, b.AnswerVariations...)
		values = append(values, map[string]any{
			"id":                id,
			"scoring_algorithm": "TextContainsAnswer",
			"scoring_data": map[string]any{
				"value":          accepted,
				"blank_text":     b.CorrectAnswer,
				"case_sensitive": b.CaseSensitive,
			},
		})
	}
	return canvasItem(position, t.Points(data), "rich-fill-blank", body, d.Explanation,
		map[string]any{"blanks": blanks},
		map[string]any{"value": values, "working_item_body": paragraph(body)},
		map[string]any{},
	), nil
}
