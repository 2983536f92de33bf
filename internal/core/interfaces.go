// Package core defines the collaborator interfaces and shared types for the podcast service.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
// Source documents staged by clients live here.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// TextExtractor turns a document reference into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, ref string) (string, error)
}

// ChatRequest is a single structured-output request to a language model.
type ChatRequest struct {
	Model        string
	APIKey       string
	SystemPrompt string
	UserPrompt   string
}

// ChatModel returns the raw JSON content produced by a language model.
type ChatModel interface {
	CompleteJSON(ctx context.Context, req ChatRequest) (string, error)
}

// SpeechRequest holds the parameters for synthesizing one piece of text.
type SpeechRequest struct {
	Model  string
	Voice  string
	Text   string
	APIKey string
}

// SpeechModel converts text to an encoded audio payload.
type SpeechModel interface {
	Speak(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// ArtifactStorage is the durable store for finished audio artifacts.
type ArtifactStorage interface {
	// Put stores data under key and returns a locator for the stored object.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Sign mints a retrieval URL for key that stays valid for ttl.
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// LibraryRecord describes one published artifact.
type LibraryRecord struct {
	ID          int64     `json:"id"`
	PodcastName string    `json:"podcast_name"`
	ObjectKey   string    `json:"object_key"`
	CDNURL      string    `json:"cdn_url"`
	ContentTags []string  `json:"content_tags"`
	CreatedAt   time.Time `json:"created_at"`
}

// MetadataStore persists library records.
type MetadataStore interface {
	Insert(ctx context.Context, record LibraryRecord) (LibraryRecord, error)
}
