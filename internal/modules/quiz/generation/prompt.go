package generation

import (
	"fmt"
	"strings"
)

type Prompt struct {
	System      string
	User        string
	Model       string
	Temperature float64
}

const systemPrompt = `You write quiz questions for university courses from the course material you are given.
Answer with ONLY a JSON array of question objects. No markdown fences, no commentary.`

func (in BatchInput) basePrompt(user string) Prompt {
	return Prompt{System: systemPrompt, User: user, Model: in.Model, Temperature: in.Temperature}
}

func generationPrompt(in BatchInput, remaining int) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Write exactly %d %s questions of %s difficulty about the module %q.\n",
		remaining, in.QuestionType.Name(), in.Difficulty, in.ModuleName)
	if lang := strings.TrimSpace(in.Language); lang != "" {
		fmt.Fprintf(&b, "Language: %s.\n", lang)
	}
	if tone := strings.TrimSpace(in.Tone); tone != "" {
		fmt.Fprintf(&b, "Tone: %s.\n", tone)
	}
	fmt.Fprintf(&b, "Each array element must be an object shaped like:\n%s\n", in.QuestionType.PromptGuide())
	b.WriteString("Only ask about facts stated in the material below.\n\nMATERIAL:\n")
	b.WriteString(in.Content)
	return in.basePrompt(b.String())
}

func structuralCorrectionPrompt(in BatchInput, perr *StructuralParseError) Prompt {
	var b strings.Builder
	b.WriteString("Your previous answer could not be parsed as a JSON array.\n")
	fmt.Fprintf(&b, "Parser error: %s\n", perr.Message)
	fmt.Fprintf(&b, "Start of your answer:\n%s\n\n", perr.Snippet)
	fmt.Fprintf(&b, "Return ONLY the corrected JSON array of %s question objects shaped like:\n%s\n",
		in.QuestionType.Name(), in.QuestionType.PromptGuide())
	return in.basePrompt(b.String())
}

// validationCorrectionPrompt only carries the items that failed, so accepted
// items are never sent back to the model.
func validationCorrectionPrompt(in BatchInput, failed []*ItemValidationError) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of your %s questions failed validation. Fix exactly these and return ONLY a JSON array with the %d corrected objects, in the same order.\n\n",
		len(failed), in.QuestionType.Name(), len(failed))
	for i, f := range failed {
		fmt.Fprintf(&b, "Question %d:\n%s\nError: %v\n\n", i+1, string(f.Payload), f.Err)
	}
	fmt.Fprintf(&b, "Each object must be shaped like:\n%s\n", in.QuestionType.PromptGuide())
	return in.basePrompt(b.String())
}
