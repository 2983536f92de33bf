package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/job"
	"github.com/go-chi/chi/v5"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// StatusResponse is the job status view with its client label.
type StatusResponse struct {
	job.Status

	StatusLabel string `json:"status"`
}

// ExtractResponse holds the text of one document or the reason it failed.
type ExtractResponse struct {
	File  string `json:"file"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// BatchExtractRequest lists the documents to extract.
type BatchExtractRequest struct {
	Files []string `json:"files"`
}

// BatchExtractResponse holds one entry per requested document, in order.
type BatchExtractResponse struct {
	Results []ExtractResponse `json:"results"`
}

// HealthResponse reports the state of every registered dependency.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) handleSubmit(kind job.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params job.Params

		err := decodeBody(w, r, &params)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)

			return
		}

		jobID, err := s.deps.Jobs.Submit(r.Context(), kind, params)
		if err != nil {
			s.log.Error("Submit %s job failed: %v", kind, err)

			if jobID != "" {
				writeError(w, http.StatusServiceUnavailable, CodeDispatchFailed, err.Error(),
					map[string]any{"task_id": jobID})

				return
			}

			if errors.Is(err, job.ErrUnknownKind) {
				writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)

				return
			}

			writeError(w, http.StatusInternalServerError, CodeInternal, err.Error(), nil)

			return
		}

		writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: jobID})
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	status, err := s.deps.Statuses.Status(r.Context(), jobID)
	if err != nil {
		s.log.Error("Status of job %s failed: %v", jobID, err)
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error(), nil)

		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: status, StatusLabel: status.Label()})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSpace(r.URL.Query().Get("file"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "query parameter 'file' is required", nil)

		return
	}

	text, err := s.deps.Extractor.Extract(r.Context(), ref)
	if err != nil {
		var extractionErr *core.ExtractionError
		if errors.As(err, &extractionErr) {
			writeError(w, http.StatusUnprocessableEntity, CodeExtractionFailed, err.Error(),
				map[string]any{"file": ref})

			return
		}

		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error(), nil)

		return
	}

	writeJSON(w, http.StatusOK, ExtractResponse{File: ref, Text: text, Error: ""})
}

// handleExtractBatch reports per-document failures inline and never fails the batch.
func (s *Server) handleExtractBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchExtractRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)

		return
	}

	results := make([]ExtractResponse, 0, len(req.Files))

	for _, ref := range req.Files {
		text, extractErr := s.deps.Extractor.Extract(r.Context(), ref)
		if extractErr != nil {
			results = append(results, ExtractResponse{File: ref, Text: "", Error: extractErr.Error()})

			continue
		}

		results = append(results, ExtractResponse{File: ref, Text: text, Error: ""})
	}

	writeJSON(w, http.StatusOK, BatchExtractResponse{Results: results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: healthStatusHealthy, Checks: make(map[string]string, len(s.deps.Checkers))}
	failures := make(map[string]any)

	for name, checker := range s.deps.Checkers {
		err := checker.CheckHealth(r.Context())
		if err != nil {
			response.Checks[name] = healthStatusUnhealthy
			failures[name] = err.Error()

			continue
		}

		response.Checks[name] = healthStatusHealthy
	}

	if len(failures) > 0 {
		writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "one or more dependencies are unhealthy", failures)

		return
	}

	writeJSON(w, http.StatusOK, response)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(target)
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	return nil
}
