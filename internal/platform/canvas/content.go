package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/yungbote/quizbridge-backend/internal/domain/quiz"
)

type moduleItem struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	PageURL string `json:"page_url,omitempty"`
}

// maxItemPages bounds pagination against a Link header that never ends.
const maxItemPages = 50

type page struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ExtractContent fetches the text of every page in the given modules. Modules
// that yield nothing are reported with an empty entry list. Non-page items are
// skipped.
func (c *Client) ExtractContent(ctx context.Context, token string, courseID int64, moduleIDs []string) (quiz.ExtractedContent, error) {
	out := quiz.ExtractedContent{}
	for _, moduleID := range moduleIDs {
		moduleID = strings.TrimSpace(moduleID)
		if moduleID == "" {
			continue
		}
		items, err := c.listModuleItems(ctx, token, courseID, moduleID)
		if err != nil {
			return nil, err
		}
		entries := make([]quiz.ContentEntry, 0, len(items))
		for _, it := range items {
			if it.Type != "Page" || it.PageURL == "" {
				c.log.Debug("skipping module item", "module_id", moduleID, "item_type", it.Type, "item_id", it.ID)
				continue
			}
			var p page
			pagePath := fmt.Sprintf("%s/pages/%s", coursePath(courseID), url.PathEscape(it.PageURL))
			if err := c.do(ctx, "get_page", token, "GET", pagePath, nil, &p); err != nil {
				return nil, err
			}
			text := htmlToText(p.Body)
			if text == "" {
				continue
			}
			title := p.Title
			if title == "" {
				title = it.Title
			}
			entries = append(entries, quiz.ContentEntry{
				Content:    text,
				WordCount:  wordCount(text),
				Title:      title,
				SourceType: quiz.SourceCanvas,
			})
		}
		out[moduleID] = entries
	}
	return out, nil
}

// listModuleItems follows Canvas Link pagination until no rel="next" remains.
func (c *Client) listModuleItems(ctx context.Context, token string, courseID int64, moduleID string) ([]moduleItem, error) {
	path := fmt.Sprintf("%s/modules/%s/items?per_page=100", coursePath(courseID), url.PathEscape(moduleID))
	var all []moduleItem
	for n := 0; path != ""; n++ {
		if n == maxItemPages {
			return nil, fmt.Errorf("canvas list_module_items: module %s exceeds %d pages", moduleID, maxItemPages)
		}
		var items []moduleItem
		header, err := c.call(ctx, "list_module_items", token, http.MethodGet, path, nil, &items)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		path = c.nextPagePath(header)
	}
	return all, nil
}

// nextPagePath returns the rel="next" target as a path under baseURL. Links
// pointing at another host are ignored so the token never leaves Canvas.
func (c *Client) nextPagePath(header http.Header) string {
	for _, link := range header.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			segs := strings.Split(part, ";")
			if len(segs) < 2 {
				continue
			}
			isNext := false
			for _, param := range segs[1:] {
				if strings.EqualFold(strings.ReplaceAll(strings.TrimSpace(param), " ", ""), `rel="next"`) {
					isNext = true
				}
			}
			if !isNext {
				continue
			}
			target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
			switch {
			case strings.HasPrefix(target, c.baseURL+"/"):
				return strings.TrimPrefix(target, c.baseURL)
			case strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//"):
				return target
			default:
				c.log.Warn("ignoring foreign pagination link", "link", target)
				return ""
			}
		}
	}
	return ""
}
