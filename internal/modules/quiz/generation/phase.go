// Package generation runs one question batch through generate, validate and
// correction rounds until it holds enough accepted items or its budgets run out.
package generation

import "time"

type Phase string

const (
	PhasePreparePrompt     Phase = "prepare_prompt"
	PhaseGenerateBatch     Phase = "generate_batch"
	PhaseValidateBatch     Phase = "validate_batch"
	PhaseCorrectStructure  Phase = "correct_structure"
	PhaseCorrectValidation Phase = "correct_validation"
	PhaseShouldRetry       Phase = "should_retry"
	PhaseSaveQuestions     Phase = "save_questions"
	PhaseDone              Phase = "done"
)

type Limits struct {
	MaxRetries               int
	MaxCorrections           int
	MaxValidationCorrections int
	BaseDelay                time.Duration
	CorrectionSnippetChars   int
}

func DefaultLimits() Limits {
	return Limits{
		MaxRetries:               3,
		MaxCorrections:           2,
		MaxValidationCorrections: 2,
		BaseDelay:                time.Second,
		CorrectionSnippetChars:   500,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxRetries < 0 {
		l.MaxRetries = 0
	}
	if l.MaxCorrections < 0 {
		l.MaxCorrections = 0
	}
	if l.MaxValidationCorrections < 0 {
		l.MaxValidationCorrections = 0
	}
	if l.BaseDelay < 0 {
		l.BaseDelay = 0
	}
	if l.CorrectionSnippetChars <= 0 {
		l.CorrectionSnippetChars = d.CorrectionSnippetChars
	}
	return l
}

// State is everything Next needs to pick the following phase.
type State struct {
	Phase  Phase
	Target int
	// Total counts accepted items, including ones preserved from earlier rounds.
	Total int

	ParsingError    bool
	ValidationError bool
	GeneratorError  bool

	Corrections           int
	ValidationCorrections int
	Retries               int
}

// Next is the batch transition function. It has no side effects; the runner
// does the work of each phase and updates counters and flags before asking again.
func Next(s State, l Limits) Phase {
	switch s.Phase {
	case PhasePreparePrompt, PhaseCorrectStructure, PhaseCorrectValidation:
		return PhaseGenerateBatch
	case PhaseGenerateBatch:
		if s.GeneratorError {
			return PhaseShouldRetry
		}
		return PhaseValidateBatch
	case PhaseValidateBatch:
		if s.ParsingError {
			if s.Corrections < l.MaxCorrections {
				return PhaseCorrectStructure
			}
			return PhaseShouldRetry
		}
		if s.Total >= s.Target {
			return PhaseShouldRetry
		}
		if s.ValidationError && s.ValidationCorrections < l.MaxValidationCorrections {
			return PhaseCorrectValidation
		}
		return PhaseShouldRetry
	case PhaseShouldRetry:
		if s.Total >= s.Target {
			return PhaseSaveQuestions
		}
		if s.Retries < l.MaxRetries {
			return PhasePreparePrompt
		}
		return PhaseSaveQuestions
	case PhaseSaveQuestions, PhaseDone:
		return PhaseDone
	default:
		return PhasePreparePrompt
	}
}

// RetryDelay is the pause before whole-batch retry number n (1-based).
func RetryDelay(l Limits, n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return l.BaseDelay * time.Duration(n)
}
