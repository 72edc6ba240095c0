package questiontypes

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TrueFalse struct{}

type TrueFalseData struct {
	QuestionText  string `json:"question_text"`
	CorrectAnswer bool   `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

func (TrueFalse) Name() string { return "true_false" }

func (TrueFalse) PromptGuide() string {
	return `{"question_text": a statement that is clearly true or false, "correct_answer": boolean, "explanation": string}`
}

func (TrueFalse) Schema() map[string]any {
	return objectSchema(map[string]any{
		"question_text":  stringSchema(1),
		"correct_answer": map[string]any{"type": "boolean"},
		"explanation":    map[string]any{"type": "string"},
	}, "question_text", "correct_answer")
}

func (t TrueFalse) Validate(raw json.RawMessage) (json.RawMessage, error) {
	var d TrueFalseData
	if err := validateSchema(t.Name(), t.Schema(), raw, &d); err != nil {
		return nil, err
	}
	d.QuestionText = strings.TrimSpace(d.QuestionText)
	if strings.HasSuffix(d.QuestionText, "?") {
		return nil, invalid(t.Name(), "question_text", "must be a statement, not a question")
	}
	return canonical(d)
}

func (TrueFalse) Points(json.RawMessage) float64 { return 1 }

func (t TrueFalse) FormatForCanvas(data json.RawMessage, position int) (map[string]any, error) {
	var d TrueFalseData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.Name(), err)
	}
	return canvasItem(position, t.Points(data), "true-false", d.QuestionText, d.Explanation,
		map[string]any{"true_choice": "True", "false_choice": "False"},
		map[string]any{"value": d.CorrectAnswer},
		map[string]any{},
	), nil
}
