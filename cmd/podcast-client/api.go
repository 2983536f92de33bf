package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/podcast-service/internal/job"
	"github.com/book-expert/podcast-service/internal/server"
)

// apiClient calls the podcast service HTTP API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) submit(ctx context.Context, kind job.Kind, params job.Params) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job parameters: %w", err)
	}

	var response server.SubmitResponse

	err = c.do(ctx, http.MethodPost, "/jobs/"+string(kind), body, http.StatusAccepted, &response)
	if err != nil {
		return "", err
	}

	return response.TaskID, nil
}

func (c *apiClient) status(ctx context.Context, jobID string) (server.StatusResponse, error) {
	var response server.StatusResponse

	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, http.StatusOK, &response)

	return response, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte, want int, target any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// apiError is an error envelope returned by the service.
type apiError struct {
	status int
	body   server.ErrorBody
}

func (e *apiError) Error() string {
	if taskID, ok := e.body.Details["task_id"]; ok {
		return fmt.Sprintf("%s (%d): %s [task %v]", e.body.Code, e.status, e.body.Message, taskID)
	}

	return fmt.Sprintf("%s (%d): %s", e.body.Code, e.status, e.body.Message)
}

var errUnexpectedStatus = errors.New("unexpected response status")

func decodeAPIError(resp *http.Response) error {
	var envelope server.ErrorResponse

	err := json.NewDecoder(resp.Body).Decode(&envelope)
	if err != nil || envelope.Error.Code == "" {
		return fmt.Errorf("%w: %s", errUnexpectedStatus, resp.Status)
	}

	return &apiError{status: resp.StatusCode, body: envelope.Error}
}
