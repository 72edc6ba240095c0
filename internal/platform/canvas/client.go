// Package canvas talks to the Canvas LMS REST API: module content for
// extraction and New Quizzes endpoints for export.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/yungbote/quizbridge-backend/internal/observability"
	"github.com/yungbote/quizbridge-backend/internal/platform/envutil"
	"github.com/yungbote/quizbridge-backend/internal/platform/httpx"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type Config struct {
	BaseURL    string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries" validate:"gte=0,lte=10"`
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:    envutil.String("CANVAS_BASE_URL", "https://canvas.instructure.com"),
		Timeout:    envutil.Duration("CANVAS_TIMEOUT_SECONDS", 30*time.Second),
		MaxRetries: envutil.Int("CANVAS_MAX_RETRIES", 3),
	}
}

type Client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func New(log *logger.Logger, cfg Config) *Client {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Client{
		log:        log.With("service", "CanvasClient"),
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    500 * time.Millisecond,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "canvas",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// Client errors are the caller's problem, not Canvas being down.
			var sc httpx.HTTPStatusCoder
			if errors.As(err, &sc) && sc.HTTPStatusCode() < 500 {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("canvas circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) doOnce(ctx context.Context, token, method, path string, body any) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, httpx.NewStatusError("canvas", resp.StatusCode, raw)
	}
	return resp, raw, nil
}

// do runs one API call through the circuit breaker with bounded retries on
// transient failures. operation labels metrics and logs.
func (c *Client) do(ctx context.Context, operation, token, method, path string, body any, out any) error {
	_, err := c.call(ctx, operation, token, method, path, body, out)
	return err
}

// call is do that also returns the response headers of the successful attempt.
func (c *Client) call(ctx context.Context, operation, token, method, path string, body any, out any) (http.Header, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("canvas %s: missing token", operation)
	}
	backoff := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var resp *http.Response
		raw, err := c.breaker.Execute(func() (interface{}, error) {
			r, b, err := c.doOnce(ctx, token, method, path, body)
			resp = r
			return b, err
		})
		if err == nil {
			observability.Current().IncCanvasRequest(operation, "ok")
			var header http.Header
			if resp != nil {
				header = resp.Header
			}
			if out == nil {
				return header, nil
			}
			b, _ := raw.([]byte)
			if len(bytes.TrimSpace(b)) == 0 {
				return header, nil
			}
			if uErr := json.Unmarshal(b, out); uErr != nil {
				return nil, fmt.Errorf("canvas %s decode: %w", operation, uErr)
			}
			return header, nil
		}
		observability.Current().IncCanvasRequest(operation, statusLabel(resp, err))
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("canvas %s: %w", operation, err)
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return nil, fmt.Errorf("canvas %s: %w", operation, err)
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Canvas request retrying",
			"operation", operation,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("unreachable retry loop")
}

func statusLabel(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	if errors.Is(err, gobreaker.ErrOpenState) {
		return "breaker_open"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func coursePath(courseID int64) string {
	return "/api/v1/courses/" + strconv.FormatInt(courseID, 10)
}

func quizzesPath(courseID int64) string {
	return "/api/quiz/v1/courses/" + strconv.FormatInt(courseID, 10) + "/quizzes"
}
