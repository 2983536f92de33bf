// Package llm talks to an OpenAI-compatible chat completions endpoint in JSON mode.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
)

const (
	serviceName        = "llm"
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 10 * time.Minute
	defaultBaseURL     = "https://api.openai.com/v1"
	chatCompletionPath = "/chat/completions"
)

// ErrAPIKeyRequired is returned when neither the request nor the client carries an API key.
var ErrAPIKeyRequired = errors.New("llm api key required")

// Config captures the runtime settings required to talk to the model.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client issues chat completion requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}

	return client
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteJSON sends one JSON-mode completion and returns the raw content of the first choice.
// Transport, auth and status failures are reported as *core.UpstreamError. An empty
// completion is returned as an empty string so the caller's schema check rejects it.
func (c *Client) CompleteJSON(ctx context.Context, req core.ChatRequest) (string, error) {
	apiKey := firstNonEmpty(req.APIKey, c.cfg.APIKey)
	if apiKey == "" {
		return "", &core.UpstreamError{Service: serviceName, StatusCode: 0, Err: ErrAPIKeyRequired}
	}

	payload := chatCompletionRequest{
		Model: firstNonEmpty(req.Model, c.cfg.Model),
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	completion, err := c.send(ctx, apiKey, payload)
	if err != nil {
		return "", err
	}

	for _, choice := range completion.Choices {
		content := strings.TrimSpace(choice.Message.Content)
		if content != "" {
			return content, nil
		}
	}

	return "", nil
}

func (c *Client) send(ctx context.Context, apiKey string, payload chatCompletionRequest) (chatCompletionResponse, error) {
	var completion chatCompletionResponse

	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, fmt.Errorf("llm request: encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+chatCompletionPath, bytes.NewReader(encoded))
	if err != nil {
		return completion, fmt.Errorf("llm request: new request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return completion, &core.UpstreamError{Service: serviceName, StatusCode: 0, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, &core.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return completion, &core.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        errors.New(Snippet(string(body))),
		}
	}

	err = json.Unmarshal(body, &completion)
	if err != nil {
		return completion, &core.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	if completion.Error != nil {
		return completion, &core.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(completion.Error.Message)),
		}
	}

	return completion, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}

	return ""
}
