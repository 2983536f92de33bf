package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/book-expert/podcast-service/internal/objectstore"
)

// InlineTextLimit is the largest text value kept inside a job record. Records are single
// key-value messages bounded by the server's max_payload.
const InlineTextLimit = 64 << 10

// Attachment names under jobs/<id>/.
const (
	attachmentOriginalText     = "original_text.txt"
	attachmentEditedTranscript = "edited_transcript.txt"
	attachmentSourceText       = "source_text.txt"
	attachmentTranscript       = "transcript.txt"
	attachmentDialogue         = "dialogue.json"
)

// Attachment errors.
var (
	ErrNoAttachmentStore = errors.New("job attachments require an attachment store")
	ErrInvalidAttachment = errors.New("invalid attachment reference")
)

// AttachmentKey returns the object key of a job attachment.
func AttachmentKey(jobID, name string) string {
	return "jobs/" + jobID + "/" + name
}

// offloadText stores text as an attachment when it is larger than InlineTextLimit and
// returns its reference. An empty reference means text stays inline.
func (c *Coordinator) offloadText(ctx context.Context, jobID, name string, data []byte) (string, error) {
	if len(data) <= InlineTextLimit || c.deps.Attachments == nil {
		return "", nil
	}

	key := AttachmentKey(jobID, name)

	err := c.deps.Attachments.Upload(ctx, key, data)
	if err != nil {
		return "", fmt.Errorf("failed to store attachment %s: %w", key, err)
	}

	return objectstore.Ref(key), nil
}

// loadText reads back an attachment written by offloadText.
func (c *Coordinator) loadText(ctx context.Context, ref string) (string, error) {
	key, ok := objectstore.ParseRef(ref)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAttachment, ref)
	}

	if c.deps.Attachments == nil {
		return "", ErrNoAttachmentStore
	}

	data, err := c.deps.Attachments.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to load attachment %s: %w", key, err)
	}

	return string(data), nil
}

// offloadParams moves oversized submission text out of the record before it is created.
func (c *Coordinator) offloadParams(ctx context.Context, record *Record) error {
	params := &record.Params

	ref, err := c.offloadText(ctx, record.ID, attachmentOriginalText, []byte(params.OriginalText))
	if err != nil {
		return err
	}

	if ref != "" {
		params.OriginalText = ""
		params.OriginalTextRef = ref
	}

	ref, err = c.offloadText(ctx, record.ID, attachmentEditedTranscript, []byte(params.EditedTranscript))
	if err != nil {
		return err
	}

	if ref != "" {
		params.EditedTranscript = ""
		params.EditedTranscriptRef = ref
	}

	return nil
}

// offloadResult moves oversized result text out of the record. A failed upload leaves the
// field inline; finish records the write failure if the record then does not fit.
func (c *Coordinator) offloadResult(ctx context.Context, jobID string, result *Result) {
	if result == nil {
		return
	}

	ref, err := c.offloadText(ctx, jobID, attachmentSourceText, []byte(result.OriginalText))
	if err != nil {
		c.log.Warn("Job %s: %v", jobID, err)
	} else if ref != "" {
		result.OriginalText = ""
		result.OriginalTextRef = ref
	}

	ref, err = c.offloadText(ctx, jobID, attachmentTranscript, []byte(result.Transcript))
	if err != nil {
		c.log.Warn("Job %s: %v", jobID, err)
	} else if ref != "" {
		result.Transcript = ""
		result.TranscriptRef = ref
	}

	if result.Dialogue == nil {
		return
	}

	encoded, err := json.Marshal(result.Dialogue)
	if err != nil {
		c.log.Warn("Job %s: failed to encode dialogue: %v", jobID, err)

		return
	}

	ref, err = c.offloadText(ctx, jobID, attachmentDialogue, encoded)
	if err != nil {
		c.log.Warn("Job %s: %v", jobID, err)
	} else if ref != "" {
		result.Dialogue = nil
		result.DialogueRef = ref
	}
}
