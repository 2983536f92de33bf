// Package tts provides speech synthesis for dialogue scripts.
//
// HTTPClient talks to an OpenAI-compatible /audio/speech endpoint. Synthesizer fans a
// dialogue out over a bounded pool of HTTPClient calls and reassembles the chunks in order.
package tts

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

// API endpoints and paths.
const (
	apiGenerateSpeech = "/audio/speech"
	defaultBaseURL    = "https://api.openai.com/v1"
	serviceName       = "speech"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	contentTypeMPEG     = "audio/mpeg"
	responseFormatMP3   = "mp3"
)

// Error messages.
const (
	errFmtServiceError       = "%s (type: %s)"
	errFmtServiceNonOKStatus = "non-OK status %s, body: %s"
	maxErrorBodyBytes        = 2048
)

// Static errors.
var (
	ErrTextEmpty          = errors.New("text cannot be empty")
	ErrVoiceEmpty         = errors.New("voice cannot be empty")
	ErrAPIKeyRequired     = errors.New("speech api key required")
	ErrReceivedEmptyAudio = errors.New("received empty audio data")
)

// HTTPClient represents a client for the speech HTTP service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SpeechPayload defines the JSON body of a speech generation request.
type SpeechPayload struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewHTTPClient creates an HTTP client for the speech service. apiKey is the fallback used
// when a request does not carry its own key.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Speak sends one synthesis request and returns the MP3 payload.
// Transport and status failures are reported as *core.UpstreamError.
func (c *HTTPClient) Speak(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if strings.TrimSpace(req.Voice) == "" {
		return nil, ErrVoiceEmpty
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = c.apiKey
	}

	if apiKey == "" {
		return nil, &core.UpstreamError{Service: serviceName, StatusCode: 0, Err: ErrAPIKeyRequired}
	}

	requestBody, err := json.Marshal(SpeechPayload{
		Model:          req.Model,
		Input:          req.Text,
		Voice:          req.Voice,
		ResponseFormat: responseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeMPEG)
	httpReq.Header.Set(headerAuthorization, "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &core.UpstreamError{Service: serviceName, StatusCode: 0, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        parseErrorResponse(resp),
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Err: err}
	}

	if len(audioData) == 0 {
		return nil, &core.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Err: ErrReceivedEmptyAudio}
	}

	return audioData, nil
}

// parseErrorResponse decodes the structured JSON error when there is one and falls back to
// the raw body otherwise.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var envelope errorEnvelope

	err := json.Unmarshal(body, &envelope)
	if err == nil && envelope.Error.Message != "" {
		return fmt.Errorf(errFmtServiceError, envelope.Error.Message, envelope.Error.Type)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(body)))
}
