// Package dialogue defines the two-speaker script model and the generator that produces it.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/book-expert/podcast-service/internal/core"
)

// Speaker tags a dialogue line.
type Speaker string

// The two speakers of every dialogue.
const (
	Speaker1 Speaker = "speaker-1"
	Speaker2 Speaker = "speaker-2"
)

// Valid reports whether s is one of the two known speakers.
func (s Speaker) Valid() bool {
	return s == Speaker1 || s == Speaker2
}

// Line is one spoken turn.
type Line struct {
	Text    string  `json:"text"`
	Speaker Speaker `json:"speaker"`
}

// Dialogue is the ordered script plus the model's scratchpad reasoning.
type Dialogue struct {
	Scratchpad string `json:"scratchpad"`
	Lines      []Line `json:"dialogue"`
}

// Characters returns the total length of all line texts.
func (d *Dialogue) Characters() int {
	total := 0
	for _, line := range d.Lines {
		total += len(line.Text)
	}

	return total
}

// Validate checks the structural invariants of a dialogue.
func (d *Dialogue) Validate() error {
	if d == nil || len(d.Lines) == 0 {
		return &core.SchemaValidationError{Reason: "dialogue has no lines", Snippet: ""}
	}

	for index, line := range d.Lines {
		if !line.Speaker.Valid() {
			return &core.SchemaValidationError{
				Reason:  fmt.Sprintf("line %d: unknown speaker %q", index, line.Speaker),
				Snippet: "",
			}
		}

		if strings.TrimSpace(line.Text) == "" {
			return &core.SchemaValidationError{
				Reason:  fmt.Sprintf("line %d: empty text", index),
				Snippet: "",
			}
		}
	}

	return nil
}
