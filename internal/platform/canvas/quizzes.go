package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Item is one question payload in New Quizzes item format. Ref is echoed back
// in the matching ItemResult.
type Item struct {
	Ref     string
	Payload map[string]any
}

type ItemResult struct {
	Ref     string
	Success bool
	ItemID  string
	Error   string
}

type createdResource struct {
	ID json.Number `json:"id"`
}

// CreateQuiz creates an unpublished New Quiz and returns its assignment id.
func (c *Client) CreateQuiz(ctx context.Context, token string, courseID int64, title string, pointsPossible float64) (string, error) {
	body := map[string]any{
		"quiz": map[string]any{
			"title":           title,
			"points_possible": pointsPossible,
			"quiz_settings": map[string]any{
				"shuffle_answers":    true,
				"one_at_a_time_type": "none",
			},
		},
	}
	var out createdResource
	if err := c.do(ctx, "create_quiz", token, "POST", quizzesPath(courseID), body, &out); err != nil {
		return "", err
	}
	if out.ID.String() == "" {
		return "", fmt.Errorf("canvas create_quiz: response has no id")
	}
	return out.ID.String(), nil
}

// ExportItems posts every item and reports each outcome. It only returns an
// error when ctx ends before all items were attempted.
func (c *Client) ExportItems(ctx context.Context, token string, courseID int64, quizID string, items []Item) ([]ItemResult, error) {
	path := fmt.Sprintf("%s/%s/items", quizzesPath(courseID), url.PathEscape(quizID))
	results := make([]ItemResult, 0, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		var out createdResource
		err := c.do(ctx, "create_item", token, "POST", path, map[string]any{"item": it.Payload}, &out)
		res := ItemResult{Ref: it.Ref}
		switch {
		case err != nil:
			res.Error = err.Error()
		case out.ID.String() == "":
			res.Error = "response has no id"
		default:
			res.Success = true
			res.ItemID = out.ID.String()
		}
		results = append(results, res)
	}
	return results, nil
}

// DeleteQuiz removes a quiz created by CreateQuiz. It reports false when
// Canvas refused the delete.
func (c *Client) DeleteQuiz(ctx context.Context, token string, courseID int64, quizID string) (bool, error) {
	path := fmt.Sprintf("%s/%s", quizzesPath(courseID), url.PathEscape(quizID))
	if err := c.do(ctx, "delete_quiz", token, "DELETE", path, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}
