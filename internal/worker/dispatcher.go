package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/podcast-service/internal/job"
	"github.com/nats-io/nats.go"
)

// DefaultStreamMaxAge bounds how long undelivered job messages are kept.
const DefaultStreamMaxAge = 24 * time.Hour

var _ job.Dispatcher = (*NatsDispatcher)(nil)

// EnsureStream creates the work-queue stream carrying job messages, or reuses it when it exists.
func EnsureStream(jetstreamContext nats.JetStreamContext, stream, subject string, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = DefaultStreamMaxAge
	}

	_, err := jetstreamContext.AddStream(&nats.StreamConfig{
		Name:        stream,
		Description: "Podcast job dispatch.",
		Subjects:    []string{subject},
		Retention:   nats.WorkQueuePolicy,
		MaxAge:      maxAge,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Duplicates:  2 * time.Minute,
	})
	if err == nil || errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil
	}

	_, infoErr := jetstreamContext.StreamInfo(stream)
	if infoErr != nil {
		return fmt.Errorf("failed to create stream '%s': %w", stream, err)
	}

	return nil
}

// NatsDispatcher publishes job messages to the jobs stream.
type NatsDispatcher struct {
	jetstreamContext nats.JetStreamContext
	subject          string
}

// NewNatsDispatcher creates a dispatcher publishing on subject.
func NewNatsDispatcher(jetstreamContext nats.JetStreamContext, subject string) *NatsDispatcher {
	return &NatsDispatcher{jetstreamContext: jetstreamContext, subject: subject}
}

// Dispatch publishes msg. The job id doubles as the message id so a repeated publish of the
// same job inside the duplicate window is stored once.
func (d *NatsDispatcher) Dispatch(ctx context.Context, msg job.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	_, err = d.jetstreamContext.Publish(d.subject, data, nats.MsgId(msg.JobID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish job %s to subject %s: %w", msg.JobID, d.subject, err)
	}

	return nil
}
