package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/assemble"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/dialogue"
	"github.com/book-expert/podcast-service/internal/profile"
	"github.com/book-expert/podcast-service/internal/publish"
	"github.com/book-expert/podcast-service/internal/tts"
	"github.com/google/uuid"
)

// Pipeline failures that are not raised by a collaborator.
var (
	ErrNoDocuments    = errors.New("no documents provided")
	ErrAPIKeyRequired = errors.New("API key is required")
	ErrUnknownKind    = errors.New("unknown job kind")
)

// ErrWorkerLost is the failure recorded for a job found STARTED on redelivery.
var ErrWorkerLost = errors.New("worker lost during execution")

// DocumentExtractor returns the combined text of a list of document references.
type DocumentExtractor interface {
	ExtractAll(ctx context.Context, refs []string) (string, error)
}

// DialogueGenerator produces a validated dialogue.
type DialogueGenerator interface {
	Generate(ctx context.Context, req dialogue.Request) (*dialogue.Dialogue, error)
}

// SpeechSynthesizer turns a dialogue into index-aligned audio chunks.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// ArtifactAssembler concatenates chunks into an artifact with its transcript.
type ArtifactAssembler interface {
	Assemble(chunks [][]byte, d *dialogue.Dialogue) (*assemble.Artifact, error)
}

// ArtifactPublisher stores an artifact and records it in the library.
type ArtifactPublisher interface {
	Publish(ctx context.Context, artifact *assemble.Artifact, meta publish.Metadata) (*publish.Record, error)
}

// Dependencies are the collaborators of a Coordinator. Attachments may be nil, in which
// case every text field stays inside the job record.
type Dependencies struct {
	Store       Store
	Attachments core.ObjectStore
	Dispatcher  Dispatcher
	Extractor   DocumentExtractor
	Generator   DialogueGenerator
	Synthesizer SpeechSynthesizer
	Assembler   ArtifactAssembler
	Publisher   ArtifactPublisher
	Profiles    *profile.Store
}

// Defaults fill parameters a submission leaves empty.
type Defaults struct {
	Profile       profile.Key
	TextModel     string
	AudioModel    string
	Speaker1Voice string
	Speaker2Voice string
	APIKey        string
}

// Coordinator submits jobs and drives them through the pipeline.
type Coordinator struct {
	deps     Dependencies
	defaults Defaults
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps Dependencies, defaults Defaults, log *logger.Logger, opts ...Option) *Coordinator {
	if deps.Profiles == nil {
		deps.Profiles = profile.Builtin()
	}

	coordinator := &Coordinator{
		deps:     deps,
		defaults: defaults,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(coordinator)
	}

	return coordinator
}

// Submit records a PENDING job, hands it to the dispatcher and returns its id without
// waiting for execution. A failed dispatch marks the job FAILURE.
func (c *Coordinator) Submit(ctx context.Context, kind Kind, params Params) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	createdAt := c.now()
	record := &Record{
		ID:         c.newID(),
		Kind:       kind,
		State:      StatePending,
		CreatedAt:  createdAt,
		StartedAt:  nil,
		FinishedAt: nil,
		Params:     params,
		Result:     nil,
		Error:      "",
	}

	err := c.offloadParams(ctx, record)
	if err != nil {
		return "", err
	}

	err = c.deps.Store.Create(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to create job record: %w", err)
	}

	msg := Message{
		Header: events.EventHeader{
			Timestamp:  createdAt,
			WorkflowID: record.ID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		JobID: record.ID,
		Kind:  kind,
	}

	dispatchErr := c.deps.Dispatcher.Dispatch(ctx, msg)
	if dispatchErr != nil {
		c.log.Error("Job %s: dispatch failed: %v", record.ID, dispatchErr)

		markErr := c.failPending(ctx, record.ID, fmt.Errorf("dispatch failed: %w", dispatchErr))
		if markErr != nil {
			c.log.Error("Job %s: failed to record dispatch failure: %v", record.ID, markErr)
		}

		return record.ID, fmt.Errorf("failed to dispatch job %s: %w", record.ID, dispatchErr)
	}

	c.log.Info("Job %s: submitted (%s, %d documents)", record.ID, kind, len(params.Files))

	return record.ID, nil
}

// Execute runs a delivered job. It returns nil whenever the delivery can be acknowledged:
// the job reached a terminal state, was already terminal, belongs to another worker or no
// longer exists. A non-nil error means the record could not be read or written and the
// delivery should be retried.
func (c *Coordinator) Execute(ctx context.Context, jobID string) error {
	record, rev, err := c.deps.Store.Get(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		c.log.Warn("Job %s: record missing, dropping delivery", jobID)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	switch record.State {
	case StateSuccess, StateFailure:
		c.log.Info("Job %s: already %s, skipping redelivery", jobID, record.State)

		return nil
	case StateStarted:
		c.log.Warn("Job %s: found STARTED on delivery, marking failed", jobID)

		return c.finish(ctx, record, rev, nil, ErrWorkerLost)
	case StatePending:
	default:
		c.log.Warn("Job %s: unexpected state %s, dropping delivery", jobID, record.State)

		return nil
	}

	err = record.Transition(StateStarted, c.now())
	if err != nil {
		return fmt.Errorf("failed to start job %s: %w", jobID, err)
	}

	rev, err = c.deps.Store.Update(ctx, record, rev)
	if errors.Is(err, ErrConflict) {
		c.log.Info("Job %s: claimed by another worker", jobID)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to mark job %s started: %w", jobID, err)
	}

	c.log.Info("Job %s: started", jobID)

	result, runErr := c.run(ctx, record)

	return c.finish(ctx, record, rev, result, runErr)
}

// finish stores the terminal state. runErr nil means SUCCESS. When the store rejects the
// terminal record for any reason other than a conflict, the job is failed with that cause.
func (c *Coordinator) finish(ctx context.Context, record *Record, rev uint64, result *Result, runErr error) error {
	started := *record

	c.offloadResult(ctx, record.ID, result)

	next := StateSuccess
	if runErr != nil {
		next = StateFailure
		record.Error = runErr.Error()
	}

	record.Result = result

	err := record.Transition(next, c.now())
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", record.ID, err)
	}

	_, err = c.deps.Store.Update(ctx, record, rev)
	if errors.Is(err, ErrConflict) {
		c.log.Warn("Job %s: terminal state already recorded elsewhere", record.ID)

		return nil
	}

	if err != nil {
		c.log.Error("Job %s: failed to store %s state: %v", record.ID, next, err)

		return c.storeFailure(ctx, &started, rev, result, runErr, err)
	}

	if runErr != nil {
		c.log.Error("Job %s: failed: %v", record.ID, runErr)
	} else {
		c.log.Info("Job %s: succeeded", record.ID)
	}

	return nil
}

// storeFailure records FAILURE after the terminal write was rejected, keeping only the
// small result fields. It returns an error only when this write fails too.
func (c *Coordinator) storeFailure(
	ctx context.Context,
	record *Record,
	rev uint64,
	result *Result,
	runErr, storeErr error,
) error {
	cause := "failed to store job result: " + storeErr.Error()
	if runErr != nil {
		cause = runErr.Error() + "; " + cause
	}

	record.Error = cause
	record.Result = result.summary()

	err := record.Transition(StateFailure, c.now())
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", record.ID, err)
	}

	_, err = c.deps.Store.Update(ctx, record, rev)
	if errors.Is(err, ErrConflict) {
		c.log.Warn("Job %s: terminal state already recorded elsewhere", record.ID)

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to store job %s result: %w", record.ID, errors.Join(storeErr, err))
	}

	c.log.Error("Job %s: failed: %s", record.ID, cause)

	return nil
}

func (c *Coordinator) failPending(ctx context.Context, jobID string, cause error) error {
	record, rev, err := c.deps.Store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if record.State != StatePending {
		return nil
	}

	record.Error = cause.Error()

	err = record.Transition(StateFailure, c.now())
	if err != nil {
		return err
	}

	_, err = c.deps.Store.Update(ctx, record, rev)

	return err
}

// run executes the pipeline stages in order and stops at the first failure. The returned
// result may be non-nil alongside an error when publishing failed part way.
func (c *Coordinator) run(ctx context.Context, record *Record) (*Result, error) {
	params := record.Params

	if len(params.Files) == 0 {
		return nil, ErrNoDocuments
	}

	apiKey := firstNonEmpty(params.APIKey, c.defaults.APIKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	sourceText, err := c.sourceText(ctx, params)
	if err != nil {
		return nil, err
	}

	bundle := c.deps.Profiles.Lookup(profile.Key(firstNonEmpty(params.Profile, string(c.defaults.Profile))))

	priorTranscript, err := c.priorTranscript(ctx, params)
	if err != nil {
		return nil, err
	}

	script, err := c.deps.Generator.Generate(ctx, dialogue.Request{
		SourceText:      sourceText,
		Bundle:          bundle,
		PriorTranscript: priorTranscript,
		Feedback:        params.UserFeedback,
		Model:           firstNonEmpty(params.TextModel, c.defaults.TextModel),
		APIKey:          apiKey,
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("Job %s: generated %d dialogue lines", record.ID, len(script.Lines))

	if record.Kind == KindDialogue {
		return &Result{
			AudioFile:       "",
			AudioURL:        "",
			ObjectKey:       "",
			CDNURL:          "",
			LibraryID:       0,
			Transcript:      dialogue.Transcript(script.Lines),
			TranscriptRef:   "",
			OriginalText:    sourceText,
			OriginalTextRef: "",
			Dialogue:        script,
			DialogueRef:     "",
			Characters:      script.Characters(),
		}, nil
	}

	return c.produceAudio(ctx, record, script, sourceText, apiKey)
}

func (c *Coordinator) produceAudio(
	ctx context.Context,
	record *Record,
	script *dialogue.Dialogue,
	sourceText, apiKey string,
) (*Result, error) {
	params := record.Params

	synthesized, err := c.deps.Synthesizer.Synthesize(ctx, tts.Request{
		Dialogue: script,
		Voice1:   firstNonEmpty(params.Speaker1Voice, c.defaults.Speaker1Voice),
		Voice2:   firstNonEmpty(params.Speaker2Voice, c.defaults.Speaker2Voice),
		Model:    firstNonEmpty(params.AudioModel, c.defaults.AudioModel),
		APIKey:   apiKey,
	})
	if err != nil {
		return nil, err
	}

	artifact, err := c.deps.Assembler.Assemble(synthesized.Chunks, script)
	if err != nil {
		return nil, err
	}

	result := &Result{
		AudioFile:       artifact.Path,
		AudioURL:        "",
		ObjectKey:       "",
		CDNURL:          "",
		LibraryID:       0,
		Transcript:      artifact.Transcript,
		TranscriptRef:   "",
		OriginalText:    sourceText,
		OriginalTextRef: "",
		Dialogue:        nil,
		DialogueRef:     "",
		Characters:      synthesized.Characters,
	}

	published, err := c.deps.Publisher.Publish(ctx, artifact, publish.Metadata{
		Name:        params.PodcastName,
		ContentTags: params.ContentTags,
	})
	if published != nil {
		result.AudioURL = published.RetrievalURL
		result.ObjectKey = published.ObjectKey
		result.CDNURL = published.CDNURL
		result.LibraryID = published.LibraryID
	}

	if err != nil {
		return result, err
	}

	return result, nil
}

func (c *Coordinator) sourceText(ctx context.Context, params Params) (string, error) {
	if params.OriginalTextRef != "" {
		return c.loadText(ctx, params.OriginalTextRef)
	}

	if strings.TrimSpace(params.OriginalText) != "" {
		return params.OriginalText, nil
	}

	return c.deps.Extractor.ExtractAll(ctx, params.Files)
}

func (c *Coordinator) priorTranscript(ctx context.Context, params Params) (string, error) {
	if params.EditedTranscriptRef != "" {
		return c.loadText(ctx, params.EditedTranscriptRef)
	}

	return params.EditedTranscript, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}

	return ""
}
