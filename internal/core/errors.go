package core

import (
	"errors"
	"fmt"
)

// ExtractionError reports a source document that could not be read or parsed.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %q: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// SchemaValidationError reports model output that does not match the expected structure.
type SchemaValidationError struct {
	Reason  string
	Snippet string
}

func (e *SchemaValidationError) Error() string {
	if e.Snippet == "" {
		return "model output failed schema validation: " + e.Reason
	}

	return fmt.Sprintf("model output failed schema validation: %s (payload snippet: %s)", e.Reason, e.Snippet)
}

// UpstreamError reports a transport, auth or status failure from a remote collaborator.
type UpstreamError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s upstream error (status %d): %v", e.Service, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s upstream error: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Publish sub-steps, in execution order.
const (
	PublishStepUpload = "upload"
	PublishStepSign   = "sign"
	PublishStepInsert = "insert"
)

// PublishError wraps the first failing publish sub-step.
type PublishError struct {
	Step string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed at %s: %v", e.Step, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsSchemaValidation reports whether err is, or wraps, a SchemaValidationError.
func IsSchemaValidation(err error) bool {
	var schemaErr *SchemaValidationError

	return errors.As(err, &schemaErr)
}
