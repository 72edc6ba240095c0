package openai

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
	"sync"
	"time"

	"github.com/yungbote/quizbridge-backend/internal/observability"
	"github.com/yungbote/quizbridge-backend/internal/platform/envutil"
	"github.com/yungbote/quizbridge-backend/internal/platform/httpx"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type TextRequest struct {
	System string
	User   string
	// Model overrides the client default when set.
	Model       string
	Temperature *float64
}

type TextResult struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

type Client interface {
	GenerateText(ctx context.Context, req TextRequest) (TextResult, error)
}

type Config struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("OPENAI_API_KEY", ""),
		BaseURL:    envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:      envutil.String("OPENAI_MODEL", "gpt-4o"),
		Timeout:    envutil.Duration("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 4),
	}
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration

	// Models that rejected temperature once are called without it afterwards.
	noTempMu   sync.RWMutex
	noTempSeen map[string]bool
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      strings.TrimSpace(cfg.Model),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		noTempSeen: map[string]bool{},
	}, nil
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model       string         `json:"model"`
	Input       []inputMessage `json:"input"`
	Temperature *float64       `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) GenerateText(ctx context.Context, in TextRequest) (TextResult, error) {
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = c.model
	}
	req := &responsesRequest{
		Model: model,
		Input: []inputMessage{
			{Role: "system", Content: in.System},
			{Role: "user", Content: in.User},
		},
	}
	if in.Temperature != nil && !c.modelIsNoTemp(model) {
		t := *in.Temperature
		req.Temperature = &t
	}

	var resp responsesResponse
	err := c.do(ctx, "/v1/responses", req, &resp)
	if err != nil && req.Temperature != nil && isUnsupportedTemperatureParam(err) {
		c.noteNoTempModel(model)
		req.Temperature = nil
		err = c.do(ctx, "/v1/responses", req, &resp)
	}
	if err != nil {
		return TextResult{}, err
	}
	if resp.Refusal != "" {
		return TextResult{}, fmt.Errorf("model refused: %s", resp.Refusal)
	}
	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return TextResult{}, fmt.Errorf("no output_text found in response")
	}
	if resp.Model != "" {
		model = resp.Model
	}
	return TextResult{
		Text:         text,
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func (c *client) modelIsNoTemp(model string) bool {
	c.noTempMu.RLock()
	defer c.noTempMu.RUnlock()
	return c.noTempSeen[strings.ToLower(model)]
}

func (c *client) noteNoTempModel(model string) {
	c.noTempMu.Lock()
	c.noTempSeen[strings.ToLower(model)] = true
	c.noTempMu.Unlock()
	c.log.Warn("model rejected temperature; omitting it from now on", "model", model)
}

func isUnsupportedTemperatureParam(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, marker := range []string{"unsupported parameter", "unknown parameter", "not supported", "does not support", "only the default"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

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
		return resp, raw, httpx.NewStatusError("openai", resp.StatusCode, raw)
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, path string, body *responsesRequest, out *responsesResponse) error {
	backoff := c.backoff
	start := time.Now()
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			observability.Current().ObserveLLMRequest(body.Model, "ok", time.Since(start), out.Usage.InputTokens, out.Usage.OutputTokens)
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			observability.Current().ObserveLLMRequest(body.Model, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
