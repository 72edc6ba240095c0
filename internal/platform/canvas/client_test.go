package canvas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

func newTestClient(url string) *Client {
	c := New(logger.Nop(), Config{BaseURL: url, Timeout: 5 * time.Second, MaxRetries: 2})
	c.backoff = time.Millisecond
	return c
}

func TestExtractContentReadsPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/7/modules/101/items", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		_, _ = w.Write([]byte(`[{"id":1,"title":"Intro","type":"Page","page_url":"intro"},{"id":2,"title":"Slides","type":"File"}]`))
	})
	mux.HandleFunc("/api/v1/courses/7/pages/intro", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Intro","body":"<h1>Cells</h1><p>Cells are   the unit of life.</p><script>var x=1;</script>"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	content, err := newTestClient(srv.URL).ExtractContent(context.Background(), "tok", 7, []string{"101"})
	if err != nil {
		t.Fatalf("ExtractContent: %v", err)
	}
	entries := content["101"]
	if len(entries) != 1 {
		t.Fatalf("entries=%d want 1", len(entries))
	}
	if entries[0].Content != "Cells\nCells are the unit of life." {
		t.Fatalf("content=%q", entries[0].Content)
	}
	if entries[0].WordCount != 7 {
		t.Fatalf("word_count=%d", entries[0].WordCount)
	}
}

func TestExportItemsReportsEachItem(t *testing.T) {
	var n int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/quizzes"):
			_, _ = w.Write([]byte(`{"id":"555"}`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/quizzes/555/items"):
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if atomic.AddInt32(&n, 1) == 2 {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"errors":["bad item"]}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"900"}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	ctx := context.Background()
	id, err := c.CreateQuiz(ctx, "tok", 7, "Quiz", 3)
	if err != nil || id != "555" {
		t.Fatalf("CreateQuiz id=%q err=%v", id, err)
	}
	results, err := c.ExportItems(ctx, "tok", 7, id, []Item{{Ref: "a"}, {Ref: "b"}, {Ref: "c"}})
	if err != nil {
		t.Fatalf("ExportItems: %v", err)
	}
	if len(results) != 3 || !results[0].Success || results[1].Success || !results[2].Success {
		t.Fatalf("results=%+v", results)
	}
	if results[1].Ref != "b" || results[1].Error == "" {
		t.Fatalf("failed item result=%+v", results[1])
	}
	if ok, err := c.DeleteQuiz(ctx, "tok", 7, id); err != nil || !ok {
		t.Fatalf("DeleteQuiz ok=%v err=%v", ok, err)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()
	if _, err := newTestClient(srv.URL).CreateQuiz(context.Background(), "tok", 1, "Q", 1); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestDoRequiresToken(t *testing.T) {
	if _, err := newTestClient("http://127.0.0.1:1").CreateQuiz(context.Background(), " ", 1, "Q", 1); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestExtractContentFollowsItemPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses/7/modules/101/items", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			w.Header().Set("Link", `<`+srvURL+`/api/v1/courses/7/modules/101/items?page=2&per_page=100>; rel="next", <`+srvURL+`/api/v1/courses/7/modules/101/items?page=1&per_page=100>; rel="first"`)
			_, _ = w.Write([]byte(`[{"id":1,"title":"One","type":"Page","page_url":"one"}]`))
		case "2":
			w.Header().Set("Link", `<`+srvURL+`/api/v1/courses/7/modules/101/items?page=1&per_page=100>; rel="first"`)
			_, _ = w.Write([]byte(`[{"id":2,"title":"Two","type":"Page","page_url":"two"}]`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/api/v1/courses/7/pages/one", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"One","body":"<p>first page</p>"}`))
	})
	mux.HandleFunc("/api/v1/courses/7/pages/two", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Two","body":"<p>second page</p>"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	content, err := newTestClient(srv.URL).ExtractContent(context.Background(), "tok", 7, []string{"101"})
	if err != nil {
		t.Fatalf("ExtractContent: %v", err)
	}
	entries := content["101"]
	if len(entries) != 2 || entries[0].Title != "One" || entries[1].Title != "Two" {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestNextPagePathIgnoresForeignHosts(t *testing.T) {
	c := newTestClient("https://canvas.example.edu")
	h := http.Header{}
	h.Set("Link", `<https://evil.example.com/api/v1/courses/7/modules/101/items?page=2>; rel="next"`)
	if got := c.nextPagePath(h); got != "" {
		t.Fatalf("foreign link followed: %q", got)
	}
	h.Set("Link", `<https://canvas.example.edu/api/v1/courses/7/modules/101/items?page=3>; rel="next"`)
	if got := c.nextPagePath(h); got != "/api/v1/courses/7/modules/101/items?page=3" {
		t.Fatalf("next=%q", got)
	}
	if got := c.nextPagePath(http.Header{}); got != "" {
		t.Fatalf("no link: %q", got)
	}
}
