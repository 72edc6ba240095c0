package quiz

type SourceType string

const (
	SourceCanvas SourceType = "canvas"
	SourceManual SourceType = "manual"
)

// SelectedModule describes one content unit chosen for a quiz.
// Content and WordCount are only carried by manual modules until extraction
// moves them into the extracted content map.
type SelectedModule struct {
	Name            string         `json:"name"`
	SourceType      SourceType     `json:"source_type"`
	QuestionBatches []BatchRequest `json:"question_batches"`
	Content         string         `json:"content,omitempty"`
	WordCount       int            `json:"word_count,omitempty"`
}

// ContentEntry is one extracted piece of a module (a page, a file, or the manual text).
type ContentEntry struct {
	Content    string     `json:"content"`
	WordCount  int        `json:"word_count"`
	Title      string     `json:"title"`
	SourceType SourceType `json:"source_type,omitempty"`
}

// ExtractedContent is keyed by module id.
type ExtractedContent map[string][]ContentEntry

// ContentSummary is what the extraction stage reports about a content map.
type ContentSummary struct {
	ModulesProcessed int `json:"modules_processed"`
	TotalPages       int `json:"total_pages"`
	TotalWordCount   int `json:"total_word_count"`
}

// Summarize counts modules, pages and words in an extracted content map.
func Summarize(content ExtractedContent) ContentSummary {
	var s ContentSummary
	for _, entries := range content {
		if len(entries) == 0 {
			continue
		}
		s.ModulesProcessed++
		for _, e := range entries {
			s.TotalPages++
			s.TotalWordCount += e.WordCount
		}
	}
	return s
}

// Cleaned strips raw manual content from module descriptors; it already lives in
// the extracted content map after extraction.
func (m SelectedModule) Cleaned() SelectedModule {
	m.Content = ""
	m.WordCount = 0
	return m
}

func (m SelectedModule) TargetCount() int {
	n := 0
	for _, b := range m.QuestionBatches {
		n += b.Count
	}
	return n
}
