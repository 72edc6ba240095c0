package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

const okBody = `{"model":"gpt-test","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"[1,2]"}]}],"usage":{"input_tokens":12,"output_tokens":3}}`

func newTestClient(t *testing.T, url string) Client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: url, Model: "gpt-test", MaxRetries: 2, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.(*client).backoff = time.Millisecond
	return c
}

func TestGenerateTextRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).GenerateText(context.Background(), TextRequest{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if res.Text != "[1,2]" || res.InputTokens != 12 || res.OutputTokens != 3 {
		t.Fatalf("result=%+v", res)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestGenerateTextDropsRejectedTemperature(t *testing.T) {
	var sawTemp []bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, has := body["temperature"]
		sawTemp = append(sawTemp, has)
		if has {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	temp := 0.7
	c := newTestClient(t, srv.URL)
	if _, err := c.GenerateText(context.Background(), TextRequest{User: "u", Temperature: &temp}); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if _, err := c.GenerateText(context.Background(), TextRequest{User: "u", Temperature: &temp}); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if len(sawTemp) != 3 || !sawTemp[0] || sawTemp[1] || sawTemp[2] {
		t.Fatalf("temperature sequence=%v", sawTemp)
	}
}

func TestGenerateTextClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	if _, err := newTestClient(t, srv.URL).GenerateText(context.Background(), TextRequest{User: "u"}); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls=%d", calls)
	}
}
