package dialogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/llm"
	"github.com/book-expert/podcast-service/internal/profile"
)

// ErrRetriesExhausted is returned when a retry cap is configured and every attempt produced malformed output.
var ErrRetriesExhausted = errors.New("schema validation retries exhausted")

// Request carries the inputs of one generation.
type Request struct {
	SourceText      string
	Bundle          profile.Bundle
	PriorTranscript string
	Feedback        string
	Model           string
	APIKey          string
}

// Generator produces a Dialogue from source text through a ChatModel.
//
// Malformed output is resubmitted with the identical prompt. Upstream failures are returned
// immediately. maxRetries bounds the resubmissions; zero means no bound.
type Generator struct {
	model      core.ChatModel
	log        *logger.Logger
	maxRetries int
}

// NewGenerator creates a Generator.
func NewGenerator(model core.ChatModel, log *logger.Logger, maxRetries int) *Generator {
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Generator{
		model:      model,
		log:        log,
		maxRetries: maxRetries,
	}
}

// Generate runs the model until it returns a valid dialogue.
func (g *Generator) Generate(ctx context.Context, req Request) (*Dialogue, error) {
	chatRequest := core.ChatRequest{
		Model:        req.Model,
		APIKey:       req.APIKey,
		SystemPrompt: SystemPrompt,
		UserPrompt:   BuildPrompt(req.SourceText, req.Bundle, req.PriorTranscript, req.Feedback),
	}

	for attempt := 1; ; attempt++ {
		dialogue, err := g.generateOnce(ctx, chatRequest)
		if err == nil {
			if attempt > 1 {
				g.log.Info("Dialogue generated after %d attempts", attempt)
			}

			return dialogue, nil
		}

		if !core.IsSchemaValidation(err) {
			return nil, err
		}

		if g.maxRetries > 0 && attempt > g.maxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, fmt.Errorf("dialogue generation interrupted: %w", ctxErr)
		}

		g.log.Warn("Dialogue attempt %d failed validation, retrying: %v", attempt, err)
	}
}

func (g *Generator) generateOnce(ctx context.Context, req core.ChatRequest) (*Dialogue, error) {
	content, err := g.model.CompleteJSON(ctx, req)
	if err != nil {
		return nil, err
	}

	var dialogue Dialogue

	decodeErr := llm.DecodeLLMJSON(content, &dialogue)
	if decodeErr != nil {
		return nil, &core.SchemaValidationError{
			Reason:  decodeErr.Error(),
			Snippet: llm.Snippet(content),
		}
	}

	validationErr := dialogue.Validate()
	if validationErr != nil {
		return nil, validationErr
	}

	return &dialogue, nil
}
