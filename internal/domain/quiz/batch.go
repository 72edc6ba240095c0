package quiz

import (
	"fmt"
	"sort"
	"strings"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// BatchRequest asks for Count questions of one type and difficulty from a module.
type BatchRequest struct {
	QuestionType string     `json:"question_type"`
	Count        int        `json:"count"`
	Difficulty   Difficulty `json:"difficulty"`
}

// BatchKey is the deterministic identifier of one (module, type, difficulty) batch.
func BatchKey(moduleID, questionType string, difficulty Difficulty) string {
	return fmt.Sprintf("%s_%s_%s", strings.TrimSpace(moduleID), strings.TrimSpace(questionType), string(difficulty))
}

// GenerationMetadata tracks which batches have been persisted so a re-run only
// retries the ones that failed.
type GenerationMetadata struct {
	SuccessfulBatches []string `json:"successful_batches"`
	FailedBatches     []string `json:"failed_batches"`
}

func (m GenerationMetadata) Succeeded(key string) bool {
	for _, k := range m.SuccessfulBatches {
		if k == key {
			return true
		}
	}
	return false
}

// Merge folds one generation run into the metadata. A batch that succeeds is removed
// from the failed set; the result sets are sorted and de-duplicated.
func (m GenerationMetadata) Merge(succeeded, failed []string) GenerationMetadata {
	ok := map[string]bool{}
	for _, k := range m.SuccessfulBatches {
		ok[k] = true
	}
	for _, k := range succeeded {
		ok[k] = true
	}
	bad := map[string]bool{}
	for _, k := range m.FailedBatches {
		bad[k] = true
	}
	for _, k := range failed {
		bad[k] = true
	}
	for k := range ok {
		delete(bad, k)
	}
	return GenerationMetadata{SuccessfulBatches: sortedKeys(ok), FailedBatches: sortedKeys(bad)}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
