// Package job owns the lifecycle of podcast jobs: submission, execution through the
// pipeline stages and status reporting.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/podcast-service/internal/dialogue"
)

// State is the lifecycle state of a job.
type State string

// Job states.
const (
	StatePending State = "PENDING"
	StateStarted State = "STARTED"
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
	StateUnknown State = "UNKNOWN"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Kind selects how much of the pipeline a job runs.
type Kind string

// Job kinds.
const (
	KindPodcast  Kind = "podcast"
	KindDialogue Kind = "dialogue"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindPodcast || k == KindDialogue
}

// Store errors.
var (
	ErrNotFound = errors.New("job not found")
	ErrConflict = errors.New("job record was modified concurrently")
)

// ErrInvalidTransition is returned when a state change is not an edge of the state machine.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Params are the caller-supplied generation parameters. Text too large to keep in the
// record is moved to an attachment and replaced by its object:// reference.
type Params struct {
	Files               []string `json:"files"`
	Profile             string   `json:"profile,omitempty"`
	TextModel           string   `json:"text_model,omitempty"`
	AudioModel          string   `json:"audio_model,omitempty"`
	Speaker1Voice       string   `json:"speaker_1_voice,omitempty"`
	Speaker2Voice       string   `json:"speaker_2_voice,omitempty"`
	APIKey              string   `json:"api_key,omitempty"`
	EditedTranscript    string   `json:"edited_transcript,omitempty"`
	EditedTranscriptRef string   `json:"edited_transcript_ref,omitempty"`
	UserFeedback        string   `json:"user_feedback,omitempty"`
	OriginalText        string   `json:"original_text,omitempty"`
	OriginalTextRef     string   `json:"original_text_ref,omitempty"`
	PodcastName         string   `json:"podcast_name,omitempty"`
	ContentTags         []string `json:"content_tags,omitempty"`
}

// Result is what a job produced. A failed publish keeps the fields filled so far.
// Oversized text fields are replaced by the matching *Ref attachment reference.
type Result struct {
	AudioFile       string             `json:"audio_file,omitempty"`
	AudioURL        string             `json:"audio_url,omitempty"`
	ObjectKey       string             `json:"object_key,omitempty"`
	CDNURL          string             `json:"cdn_url,omitempty"`
	LibraryID       int64              `json:"library_id,omitempty"`
	Transcript      string             `json:"transcript,omitempty"`
	TranscriptRef   string             `json:"transcript_ref,omitempty"`
	OriginalText    string             `json:"original_text,omitempty"`
	OriginalTextRef string             `json:"original_text_ref,omitempty"`
	Dialogue        *dialogue.Dialogue `json:"dialogue,omitempty"`
	DialogueRef     string             `json:"dialogue_ref,omitempty"`
	Characters      int                `json:"characters,omitempty"`
}

// summary keeps the locations, ids and references of r and drops its inline text.
func (r *Result) summary() *Result {
	if r == nil {
		return nil
	}

	return &Result{
		AudioFile:       r.AudioFile,
		AudioURL:        r.AudioURL,
		ObjectKey:       r.ObjectKey,
		CDNURL:          r.CDNURL,
		LibraryID:       r.LibraryID,
		Transcript:      "",
		TranscriptRef:   r.TranscriptRef,
		OriginalText:    "",
		OriginalTextRef: r.OriginalTextRef,
		Dialogue:        nil,
		DialogueRef:     r.DialogueRef,
		Characters:      r.Characters,
	}
}

// Record is the persisted state of one job.
type Record struct {
	ID         string     `json:"id"`
	Kind       Kind       `json:"kind"`
	State      State      `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Params     Params     `json:"params"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Transition moves the record to next, stamping StartedAt and FinishedAt.
func (r *Record) Transition(next State, at time.Time) error {
	if !isValidTransition(r.State, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
	}

	r.State = next

	switch next {
	case StateStarted:
		r.StartedAt = &at
	case StateSuccess, StateFailure:
		r.FinishedAt = &at
	case StatePending, StateUnknown:
	}

	return nil
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateStarted || to == StateFailure
	case StateStarted:
		return to == StateSuccess || to == StateFailure
	case StateSuccess, StateFailure, StateUnknown:
		return false
	default:
		return false
	}
}

// Message is the payload dispatched to workers.
type Message struct {
	Header events.EventHeader `json:"header"`
	JobID  string             `json:"job_id"`
	Kind   Kind               `json:"kind"`
}

// Store persists job records with optimistic concurrency on a revision number.
type Store interface {
	// Create stores a new record and fails if the id exists.
	Create(ctx context.Context, record *Record) error
	// Get returns the record and its revision, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, uint64, error)
	// Update replaces the record if its revision is still rev and returns the new revision,
	// or ErrConflict.
	Update(ctx context.Context, record *Record, rev uint64) (uint64, error)
}

// Dispatcher hands a job message to the worker pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}
