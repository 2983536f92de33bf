package dialogue_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/dialogue"
	"github.com/book-expert/podcast-service/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDialogueJSON = `{"scratchpad":"plan","dialogue":[` +
	`{"speaker":"speaker-1","text":"Welcome to the show."},` +
	`{"speaker":"speaker-2","text":"Glad to be here."}]}`

type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []core.ChatRequest
}

func (m *scriptedModel) CompleteJSON(_ context.Context, req core.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := len(m.requests)
	m.requests = append(m.requests, req)

	if index < len(m.errs) && m.errs[index] != nil {
		return "", m.errs[index]
	}

	if index < len(m.responses) {
		return m.responses[index], nil
	}

	return m.responses[len(m.responses)-1], nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "dialogue-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

func newRequest() dialogue.Request {
	return dialogue.Request{
		SourceText:      "Some source text.",
		Bundle:          profile.Builtin().Lookup(profile.Podcast),
		PriorTranscript: "",
		Feedback:        "",
		Model:           "text-model",
		APIKey:          "key",
	}
}

func TestGenerate_RetriesMalformedOutputUntilValid(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		responses: []string{"not json", `{"scratchpad":"x","dialogue":[]}`, validDialogueJSON},
	}
	generator := dialogue.NewGenerator(model, newTestLogger(t), 0)

	result, err := generator.Generate(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, 3, model.calls())
	require.Len(t, result.Lines, 2)
	assert.Equal(t, dialogue.Speaker1, result.Lines[0].Speaker)
	assert.Equal(t, "plan", result.Scratchpad)

	for _, req := range model.requests {
		assert.Equal(t, model.requests[0].UserPrompt, req.UserPrompt)
		assert.Equal(t, "text-model", req.Model)
		assert.Equal(t, "key", req.APIKey)
	}
}

func TestGenerate_UpstreamErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	upstream := &core.UpstreamError{Service: "llm", StatusCode: 401, Err: errors.New("unauthorized")}
	model := &scriptedModel{responses: []string{validDialogueJSON}, errs: []error{upstream}}
	generator := dialogue.NewGenerator(model, newTestLogger(t), 0)

	_, err := generator.Generate(context.Background(), newRequest())

	var upstreamErr *core.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, 1, model.calls())
}

func TestGenerate_RetryCapStopsAttempts(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{responses: []string{`{"dialogue":[{"speaker":"host","text":"hi"}]}`}}
	generator := dialogue.NewGenerator(model, newTestLogger(t), 2)

	_, err := generator.Generate(context.Background(), newRequest())

	require.ErrorIs(t, err, dialogue.ErrRetriesExhausted)
	assert.True(t, core.IsSchemaValidation(err))
	assert.Equal(t, 3, model.calls())
}

func TestGenerate_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := &scriptedModel{responses: []string{"garbage"}}
	generator := dialogue.NewGenerator(model, newTestLogger(t), 0)

	_, err := generator.Generate(ctx, newRequest())

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, model.calls())
}
