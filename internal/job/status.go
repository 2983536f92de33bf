package job

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status labels reported to clients.
const (
	LabelPending = "Pending"
	LabelStarted = "Started"
	LabelSuccess = "Success"
	LabelFailed  = "Failed"
	LabelUnknown = "Unknown"
)

// Status is a point-in-time view of a job.
type Status struct {
	ID             string    `json:"task_id"`
	Kind           Kind      `json:"kind,omitempty"`
	State          State     `json:"state"`
	ElapsedSeconds *float64  `json:"elapsed_time,omitempty"`
	Result         *Result   `json:"result,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
}

// Label renders the state for clients. States outside the known set pass through verbatim.
func (s Status) Label() string {
	switch s.State {
	case StatePending:
		return LabelPending
	case StateStarted:
		return LabelStarted
	case StateSuccess:
		return LabelSuccess
	case StateFailure:
		return LabelFailed
	case StateUnknown:
		return LabelUnknown
	default:
		return string(s.State)
	}
}

// StatusReader answers status queries from the job store.
type StatusReader struct {
	store Store
	now   func() time.Time
}

// NewStatusReader creates a StatusReader. now may be nil to use the wall clock.
func NewStatusReader(store Store, now func() time.Time) *StatusReader {
	if now == nil {
		now = time.Now
	}

	return &StatusReader{store: store, now: now}
}

// Status returns the current status of jobID. An id missing from the store is reported as
// UNKNOWN rather than an error.
func (r *StatusReader) Status(ctx context.Context, jobID string) (Status, error) {
	record, _, err := r.store.Get(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return Status{
			ID:             jobID,
			Kind:           "",
			State:          StateUnknown,
			ElapsedSeconds: nil,
			Result:         nil,
			Error:          "",
			CreatedAt:      time.Time{},
		}, nil
	}

	if err != nil {
		return Status{}, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}

	return r.fromRecord(record), nil
}

func (r *StatusReader) fromRecord(record *Record) Status {
	status := Status{
		ID:             record.ID,
		Kind:           record.Kind,
		State:          record.State,
		ElapsedSeconds: elapsed(record, r.now()),
		Result:         nil,
		Error:          "",
		CreatedAt:      record.CreatedAt,
	}

	switch record.State {
	case StateSuccess:
		status.Result = record.Result
	case StateFailure:
		status.Error = record.Error
		status.Result = record.Result
	case StatePending, StateStarted, StateUnknown:
	}

	return status
}

// elapsed is measured from StartedAt. Finished jobs report a fixed duration.
func elapsed(record *Record, now time.Time) *float64 {
	if record.StartedAt == nil {
		return nil
	}

	end := now
	if record.FinishedAt != nil {
		end = *record.FinishedAt
	}

	seconds := end.Sub(*record.StartedAt).Seconds()

	return &seconds
}
