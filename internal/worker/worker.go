// Package worker consumes podcast job messages from NATS JetStream and executes them.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/job"
	"github.com/nats-io/nats.go"
)

const (
	defaultAckWait      = 60 * time.Second
	defaultFetchTimeout = 2 * time.Second
	defaultNakDelay     = 5 * time.Second
	defaultMaxInFlight  = 4
	defaultMaxDeliver   = 10
)

// Static errors.
var (
	ErrStreamEmpty  = errors.New("stream cannot be empty")
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	ErrDurableEmpty = errors.New("durable consumer name cannot be empty")
	ErrJobIDEmpty   = errors.New("job message has no job id")
)

// Executor runs one job. A nil return acknowledges the delivery.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// Config holds the consumer settings.
type Config struct {
	Stream       string
	Subject      string
	Durable      string
	AckWait      time.Duration
	FetchTimeout time.Duration
	NakDelay     time.Duration
	MaxInFlight  int
	MaxDeliver   int
}

func (c *Config) validate() error {
	switch {
	case c.Stream == "":
		return ErrStreamEmpty
	case c.Subject == "":
		return ErrSubjectEmpty
	case c.Durable == "":
		return ErrDurableEmpty
	}

	if c.AckWait <= 0 {
		c.AckWait = defaultAckWait
	}

	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}

	if c.NakDelay <= 0 {
		c.NakDelay = defaultNakDelay
	}

	if c.MaxInFlight <= 0 {
		c.MaxInFlight = defaultMaxInFlight
	}

	if c.MaxDeliver <= 0 {
		c.MaxDeliver = defaultMaxDeliver
	}

	return nil
}

// NatsWorker pulls job messages from a durable consumer and executes them concurrently,
// up to MaxInFlight at a time. Several processes may share the same durable consumer.
type NatsWorker struct {
	jetstreamContext nats.JetStreamContext
	cfg              Config
	executor         Executor
	log              *logger.Logger
}

// NewNatsWorker creates a worker and makes sure its durable consumer exists.
func NewNatsWorker(
	jetstreamContext nats.JetStreamContext,
	cfg Config,
	executor Executor,
	log *logger.Logger,
) (*NatsWorker, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	worker := &NatsWorker{
		jetstreamContext: jetstreamContext,
		cfg:              cfg,
		executor:         executor,
		log:              log,
	}

	err = worker.ensureConsumer()
	if err != nil {
		return nil, err
	}

	return worker, nil
}

func (w *NatsWorker) ensureConsumer() error {
	_, err := w.jetstreamContext.AddConsumer(w.cfg.Stream, &nats.ConsumerConfig{
		Durable:       w.cfg.Durable,
		Description:   "Podcast job workers.",
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       w.cfg.AckWait,
		MaxDeliver:    w.cfg.MaxDeliver,
		MaxAckPending: w.cfg.MaxInFlight * 16,
		FilterSubject: w.cfg.Subject,
	})
	if err == nil {
		return nil
	}

	_, infoErr := w.jetstreamContext.ConsumerInfo(w.cfg.Stream, w.cfg.Durable)
	if infoErr != nil {
		return fmt.Errorf("failed to create consumer '%s' on stream '%s': %w", w.cfg.Durable, w.cfg.Stream, err)
	}

	return nil
}

// Run fetches and executes jobs until ctx is cancelled, then waits for in-flight jobs.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.jetstreamContext.PullSubscribe(
		w.cfg.Subject,
		w.cfg.Durable,
		nats.Bind(w.cfg.Stream, w.cfg.Durable),
		nats.ManualAck(),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.cfg.Subject, err)
	}

	w.log.Info("Worker consuming %s as %s (max in flight %d)", w.cfg.Subject, w.cfg.Durable, w.cfg.MaxInFlight)

	var inFlight sync.WaitGroup

	slots := make(chan struct{}, w.cfg.MaxInFlight)

	fetchErr := w.fetchLoop(ctx, sub, slots, &inFlight)

	inFlight.Wait()

	unsubscribeErr := sub.Unsubscribe()
	if unsubscribeErr != nil && !errors.Is(unsubscribeErr, nats.ErrConnectionClosed) {
		w.log.Warn("Failed to unsubscribe: %v", unsubscribeErr)
	}

	return fetchErr
}

func (w *NatsWorker) fetchLoop(
	ctx context.Context,
	sub *nats.Subscription,
	slots chan struct{},
	inFlight *sync.WaitGroup,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case slots <- struct{}{}:
		}

		msgs, err := sub.Fetch(1, nats.MaxWait(w.cfg.FetchTimeout))
		if err != nil {
			<-slots

			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}

			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return fmt.Errorf("fetch jobs: %w", err)
			}

			w.log.Warn("Fetch failed: %v", err)

			continue
		}

		if len(msgs) == 0 {
			<-slots

			continue
		}

		for index, msg := range msgs {
			if index > 0 {
				slots <- struct{}{}
			}

			inFlight.Add(1)

			go func() {
				defer inFlight.Done()
				defer func() { <-slots }()

				w.handleMessage(ctx, msg)
			}()
		}
	}
}

func (w *NatsWorker) handleMessage(ctx context.Context, msg *nats.Msg) {
	jobMsg, err := parseMessage(msg)
	if err != nil {
		w.log.Error("Discarding invalid job message: %v", err)

		termErr := msg.Term()
		if termErr != nil {
			w.log.Warn("Failed to terminate invalid message: %v", termErr)
		}

		return
	}

	execCtx := context.WithoutCancel(ctx)
	stopHeartbeat := w.startHeartbeat(msg)

	execErr := w.executor.Execute(execCtx, jobMsg.JobID)

	stopHeartbeat()

	if execErr != nil {
		w.log.Error("Job %s: execution could not be recorded, requeueing: %v", jobMsg.JobID, execErr)

		nakErr := msg.NakWithDelay(w.cfg.NakDelay)
		if nakErr != nil {
			w.log.Warn("Job %s: failed to nak: %v", jobMsg.JobID, nakErr)
		}

		return
	}

	ackErr := msg.Ack()
	if ackErr != nil {
		w.log.Warn("Job %s: failed to ack: %v", jobMsg.JobID, ackErr)
	}
}

// startHeartbeat extends the ack deadline while the job runs.
func (w *NatsWorker) startHeartbeat(msg *nats.Msg) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(w.cfg.AckWait / 2)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := msg.InProgress()
				if err != nil {
					w.log.Warn("Failed to extend ack deadline: %v", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func parseMessage(msg *nats.Msg) (*job.Message, error) {
	var jobMsg job.Message

	err := json.Unmarshal(msg.Data, &jobMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job message: %w", err)
	}

	if jobMsg.JobID == "" {
		return nil, ErrJobIDEmpty
	}

	return &jobMsg, nil
}
