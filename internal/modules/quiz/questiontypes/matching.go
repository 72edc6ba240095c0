package questiontypes

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Matching struct{}

type MatchPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type MatchingData struct {
	QuestionText string      `json:"question_text"`
	Pairs        []MatchPair `json:"pairs"`
	Distractors  []string    `json:"distractors,omitempty"`
	Explanation  string      `json:"explanation,omitempty"`
}

func (Matching) Name() string { return "matching" }

func (Matching) PromptGuide() string {
	return `{"question_text": instructions, "pairs": [3-10 {"question": string, "answer": string}], "distractors": [0-5 wrong answers], "explanation": string}`
}

func (Matching) Schema() map[string]any {
	return objectSchema(map[string]any{
		"question_text": stringSchema(1),
		"pairs": map[string]any{
			"type":     "array",
			"minItems": 3,
			"maxItems": 10,
			"items": objectSchema(map[string]any{
				"question": stringSchema(1),
				"answer":   stringSchema(1),
			}, "question", "answer"),
		},
		"distractors": map[string]any{
			"type":     "array",
			"maxItems": 5,
			"items":    stringSchema(1),
		},
		"explanation": map[string]any{"type": "string"},
	}, "question_text", "pairs")
}

func (t Matching) Validate(raw json.RawMessage) (json.RawMessage, error) {
	var d MatchingData
	if err := validateSchema(t.Name(), t.Schema(), raw, &d); err != nil {
		return nil, err
	}
	questions := map[string]bool{}
	answers := map[string]bool{}
	for i, p := range d.Pairs {
		q := strings.ToLower(strings.TrimSpace(p.Question))
		a := strings.ToLower(strings.TrimSpace(p.Answer))
		if questions[q] {
			return nil, invalid(t.Name(), fmt.Sprintf("pairs.%d.question", i), "duplicate question %q", p.Question)
		}
		if answers[a] {
			return nil, invalid(t.Name(), fmt.Sprintf("pairs.%d.answer", i), "duplicate answer %q", p.Answer)
		}
		questions[q] = true
		answers[a] = true
	}
	for i, dis := range d.Distractors {
		if answers[strings.ToLower(strings.TrimSpace(dis))] {
			return nil, invalid(t.Name(), fmt.Sprintf("distractors.%d", i), "distractor %q is also a correct answer", dis)
		}
	}
	return canonical(d)
}

func (Matching) Points(data json.RawMessage) float64 {
	var d MatchingData
	if err := json.Unmarshal(data, &d); err != nil || len(d.Pairs) == 0 {
		return 1
	}
	return float64(len(d.Pairs))
}

func (t Matching) FormatForCanvas(data json.RawMessage, position int) (map[string]any, error) {
	var d MatchingData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.Name(), err)
	}
	questions := make([]map[string]any, 0, len(d.Pairs))
	answers := make([]string, 0, len(d.Pairs)+len(d.Distractors))
	value := map[string]string{}
	for i, p := range d.Pairs {
		id := fmt.Sprintf("match_%d", i+1)
		questions = append(questions, map[string]any{"id": id, "item_body": p.Question})
		answers = append(answers, p.Answer)
		value[id] = p.Answer
	}
	answers = append(answers, d.Distractors...)
	return canvasItem(position, t.Points(data), "matching", d.QuestionText, d.Explanation,
		map[string]any{"answers": answers, "questions": questions},
		map[string]any{"value": value, "edit_data": map[string]any{"distractors": d.Distractors}},
		map[string]any{"shuffle_rules": map[string]any{"questions": map[string]any{"shuffled": false}}},
	), nil
}
