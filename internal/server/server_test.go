package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/job"
	"github.com/book-expert/podcast-service/internal/jobstore"
	"github.com/book-expert/podcast-service/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDispatch = errors.New("stream unavailable")
	errMissing  = errors.New("no such file")
)

type fakeSubmitter struct {
	mu     sync.Mutex
	kinds  []job.Kind
	params []job.Params
	id     string
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, kind job.Kind, params job.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.kinds = append(f.kinds, kind)
	f.params = append(f.params, params)

	return f.id, f.err
}

type fakeExtractor map[string]string

func (f fakeExtractor) Extract(_ context.Context, ref string) (string, error) {
	text, ok := f[ref]
	if !ok {
		return "", &core.ExtractionError{Source: ref, Err: errMissing}
	}

	return text, nil
}

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(context.Context) error {
	return s.err
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "server-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

type harness struct {
	server    *server.Server
	submitter *fakeSubmitter
	store     *jobstore.Memory
}

func newHarness(t *testing.T, checkers map[string]server.Checker) *harness {
	t.Helper()

	submitter := &fakeSubmitter{id: "job-1"}
	store := jobstore.NewMemory()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	srv := server.New("127.0.0.1", 0, server.Dependencies{
		Jobs:      submitter,
		Statuses:  job.NewStatusReader(store, func() time.Time { return now }),
		Extractor: fakeExtractor{"notes.txt": "chapter one"},
		Checkers:  checkers,
	}, newTestLogger(t))

	return &harness{server: srv, submitter: submitter, store: store}
}

func (h *harness) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.server.Handler().ServeHTTP(rec, req)

	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) server.ErrorResponse {
	t.Helper()

	var body server.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))

	return body
}

func TestServer_SubmitPodcastReturnsTaskID(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/jobs/podcast",
		`{"files":["notes.txt"],"profile":"lecture","speaker_1_voice":"nova","content_tags":["history"]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var body server.SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "job-1", body.TaskID)

	require.Len(t, h.submitter.params, 1)
	assert.Equal(t, job.KindPodcast, h.submitter.kinds[0])
	assert.Equal(t, []string{"notes.txt"}, h.submitter.params[0].Files)
	assert.Equal(t, "lecture", h.submitter.params[0].Profile)
	assert.Equal(t, []string{"history"}, h.submitter.params[0].ContentTags)
}

func TestServer_SubmitDialogueUsesDialogueKind(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/jobs/dialogue", `{"files":[],"original_text":"some text"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []job.Kind{job.KindDialogue}, h.submitter.kinds)
}

func TestServer_SubmitRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	for _, body := range []string{`{"files":`, `{"unexpected":true}`} {
		rec := h.do(http.MethodPost, "/jobs/podcast", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, server.CodeInvalidRequest, decodeError(t, rec).Error.Code)
	}

	assert.Empty(t, h.submitter.params)
}

func TestServer_SubmitDispatchFailureReportsTaskID(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.submitter.err = errDispatch

	rec := h.do(http.MethodPost, "/jobs/podcast", `{"files":["notes.txt"]}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeError(t, rec)
	assert.Equal(t, server.CodeDispatchFailed, body.Error.Code)
	assert.Equal(t, "job-1", body.Error.Details["task_id"])
}

func TestServer_StatusOfUnknownJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/jobs/missing", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "missing", body["task_id"])
	assert.Equal(t, job.LabelUnknown, body["status"])
	assert.NotContains(t, body, "elapsed_time")
}

func TestServer_StatusOfFailedJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	started := time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC)
	finished := started.Add(3 * time.Second)
	require.NoError(t, h.store.Create(context.Background(), &job.Record{
		ID:         "job-9",
		Kind:       job.KindPodcast,
		State:      job.StateFailure,
		CreatedAt:  started,
		StartedAt:  &started,
		FinishedAt: &finished,
		Params:     job.Params{Files: nil},
		Result:     nil,
		Error:      "no documents provided",
	}))

	rec := h.do(http.MethodGet, "/jobs/job-9", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, job.LabelFailed, body["status"])
	assert.Equal(t, "no documents provided", body["error"])
	assert.InDelta(t, 3.0, body["elapsed_time"], 0.001)
}

func TestServer_ExtractSingle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/extract?file=notes.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body server.ExtractResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "chapter one", body.Text)

	rec = h.do(http.MethodGet, "/extract?file=absent.pdf", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, server.CodeExtractionFailed, decodeError(t, rec).Error.Code)

	rec = h.do(http.MethodGet, "/extract", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ExtractBatchReportsErrorsInline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	rec := h.do(http.MethodPost, "/extract/batch", `{"files":["notes.txt","absent.pdf"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body server.BatchExtractResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Results, 2)

	assert.Equal(t, "chapter one", body.Results[0].Text)
	assert.Empty(t, body.Results[0].Error)
	assert.Equal(t, "absent.pdf", body.Results[1].File)
	assert.Contains(t, body.Results[1].Error, "no such file")
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	healthy := newHarness(t, map[string]server.Checker{"nats": stubChecker{err: nil}})

	rec := healthy.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body server.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Checks["nats"])

	unhealthy := newHarness(t, map[string]server.Checker{"nats": server.NATSChecker{Conn: nil}})

	rec = unhealthy.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	errBody := decodeError(t, rec)
	assert.Equal(t, server.CodeServiceUnavailable, errBody.Error.Code)
	assert.Equal(t, server.ErrNATSDisconnected.Error(), errBody.Error.Details["nats"])
}

func TestServer_StandardErrorHandlers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	rec := h.do(http.MethodGet, "/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, server.CodeNotFound, decodeError(t, rec).Error.Code)

	rec = h.do(http.MethodDelete, "/jobs/podcast", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, server.CodeMethodNotAllowed, decodeError(t, rec).Error.Code)
}

func TestServer_Port(t *testing.T) {
	t.Parallel()

	srv := server.New("127.0.0.1", 9000, server.Dependencies{
		Jobs:      &fakeSubmitter{},
		Statuses:  nil,
		Extractor: fakeExtractor{},
		Checkers:  nil,
	}, newTestLogger(t))

	assert.Equal(t, 9000, srv.Port())
	assert.NotNil(t, srv.Handler())
}
