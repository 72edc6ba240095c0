package quiz

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusExtractingContent, true},
		{StatusCreated, StatusFailed, true},
		{StatusCreated, StatusPublished, false},
		{StatusExtractingContent, StatusExtractingContent, true},
		{StatusExtractingContent, StatusReadyForReview, true},
		{StatusExtractingContent, StatusReadyForReviewPartial, true},
		{StatusExtractingContent, StatusPublished, false},
		{StatusReadyForReview, StatusPublished, true},
		{StatusReadyForReview, StatusExtractingContent, false},
		{StatusReadyForReviewPartial, StatusReadyForReviewPartial, true},
		{StatusReadyForReviewPartial, StatusReadyForReview, true},
		{StatusReadyForReviewPartial, StatusPublished, true},
		{StatusPublished, StatusFailed, false},
		{StatusFailed, StatusExtractingContent, false},
		{StatusFailed, StatusFailed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s): want=%v got=%v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []Status{
		StatusCreated, StatusExtractingContent, StatusReadyForReview,
		StatusReadyForReviewPartial, StatusPublished, StatusFailed,
	}
	for _, from := range []Status{StatusPublished, StatusFailed} {
		if !from.Terminal() {
			t.Fatalf("%s should be terminal", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal %s must not transition to %s", from, to)
			}
		}
	}
	if StatusCreated.Terminal() {
		t.Fatalf("created should not be terminal")
	}
}

func TestStageColumnsAndFailureReasons(t *testing.T) {
	if StageExtraction.Column() != "content_extraction_status" {
		t.Fatalf("extraction column: %s", StageExtraction.Column())
	}
	if StageGeneration.Column() != "llm_generation_status" {
		t.Fatalf("generation column: %s", StageGeneration.Column())
	}
	if StageExport.Column() != "export_status" {
		t.Fatalf("export column: %s", StageExport.Column())
	}
	if FailureReasonForStage(StageExport) != FailureCanvasExportError {
		t.Fatalf("export reason: %s", FailureReasonForStage(StageExport))
	}
}

func TestActiveStage(t *testing.T) {
	cases := []struct {
		name  string
		q     Quiz
		stage Stage
		want  Stage
	}{
		{"own stage processing", Quiz{ContentExtractionStatus: StageProcessing}, StageExtraction, StageExtraction},
		{"chained generation", Quiz{ContentExtractionStatus: StageCompleted, LLMGenerationStatus: StageProcessing}, StageExtraction, StageGeneration},
		{"nothing processing", Quiz{ContentExtractionStatus: StageCompleted, LLMGenerationStatus: StageFailed}, StageExtraction, StageExtraction},
		{"own stage failed", Quiz{ContentExtractionStatus: StageFailed, LLMGenerationStatus: StageProcessing}, StageExtraction, StageExtraction},
	}
	for _, tc := range cases {
		if got := tc.q.ActiveStage(tc.stage); got != tc.want {
			t.Fatalf("%s: want=%s got=%s", tc.name, tc.want, got)
		}
	}
}
