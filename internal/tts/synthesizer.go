package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/dialogue"
	"github.com/book-expert/podcast-service/internal/tts/text"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultConcurrency = 4

	errFmtLineFailed       = "line %d failed: %w"
	logFmtLineFailed       = "Failed to synthesize line %d: %v"
	logFmtSynthesisStarted = "Synthesizing %d lines (%d characters) with concurrency %d"
	logFmtSynthesisDone    = "Synthesized %d lines"
)

// ErrEmptyDialogue is returned when there are no lines to synthesize.
var ErrEmptyDialogue = errors.New("dialogue has no lines to synthesize")

// Request describes one synthesis stage run.
type Request struct {
	Dialogue *dialogue.Dialogue
	Voice1   string
	Voice2   string
	Model    string
	APIKey   string
}

// Result holds the audio chunks, index-aligned with the dialogue lines.
type Result struct {
	Chunks     [][]byte
	Characters int
}

// Synthesizer converts every dialogue line to audio with a bounded pool of concurrent requests.
type Synthesizer struct {
	speech      core.SpeechModel
	normalizer  *text.Preprocessor
	limiter     *rate.Limiter
	log         *logger.Logger
	concurrency int
}

// SynthesizerOption customizes a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithRateLimit caps outgoing requests per second. Zero or negative disables the limit.
func WithRateLimit(requestsPerSecond float64) SynthesizerOption {
	return func(s *Synthesizer) {
		if requestsPerSecond <= 0 {
			s.limiter = nil

			return
		}

		burst := max(int(requestsPerSecond), 1)
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewSynthesizer creates a Synthesizer. concurrency below one falls back to the default.
func NewSynthesizer(
	speech core.SpeechModel,
	log *logger.Logger,
	concurrency int,
	opts ...SynthesizerOption,
) *Synthesizer {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	synth := &Synthesizer{
		speech:      speech,
		normalizer:  text.NewPreprocessor(),
		limiter:     nil,
		log:         log,
		concurrency: concurrency,
	}
	for _, opt := range opts {
		opt(synth)
	}

	return synth
}

// Synthesize issues one request per line, choosing the voice by speaker. The first failing
// line cancels the outstanding requests and fails the whole stage.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if req.Dialogue == nil || len(req.Dialogue.Lines) == 0 {
		return nil, ErrEmptyDialogue
	}

	lines := req.Dialogue.Lines
	characters := req.Dialogue.Characters()
	chunks := make([][]byte, len(lines))

	s.log.Info(logFmtSynthesisStarted, len(lines), characters, s.concurrency)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for index, line := range lines {
		group.Go(func() error {
			audio, err := s.synthesizeLine(groupCtx, line, req)
			if err != nil {
				s.log.Error(logFmtLineFailed, index+1, err)

				return fmt.Errorf(errFmtLineFailed, index+1, err)
			}

			chunks[index] = audio

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	s.log.Info(logFmtSynthesisDone, len(lines))

	return &Result{Chunks: chunks, Characters: characters}, nil
}

func (s *Synthesizer) synthesizeLine(ctx context.Context, line dialogue.Line, req Request) ([]byte, error) {
	if s.limiter != nil {
		err := s.limiter.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	voice := req.Voice1
	if line.Speaker == dialogue.Speaker2 {
		voice = req.Voice2
	}

	// A line made only of citation markers normalizes to nothing; speak it as written.
	text := s.normalizer.PreprocessText(line.Text)
	if text == "" {
		text = line.Text
	}

	return s.speech.Speak(ctx, core.SpeechRequest{
		Model:  req.Model,
		Voice:  voice,
		Text:   text,
		APIKey: req.APIKey,
	})
}
