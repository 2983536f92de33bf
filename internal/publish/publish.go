// Package publish moves an assembled artifact to durable storage, signs a retrieval URL and
// records it in the library.
package publish

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/assemble"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/google/uuid"
)

const (
	// DefaultURLTTL is the lifetime of the signed retrieval URL.
	DefaultURLTTL = 2 * time.Hour

	keyPrefix = "podcasts/"
	keySuffix = ".mp3"
)

// ErrNoArtifact is returned when Publish is called without audio.
var ErrNoArtifact = errors.New("artifact has no audio")

// Metadata is the caller-supplied description of the podcast.
type Metadata struct {
	Name        string
	ContentTags []string
}

// Record is what a publish produced. On failure it is filled up to the failing step, so
// ObjectKey is only set once the upload succeeded.
type Record struct {
	ObjectKey    string   `json:"object_key"`
	Locator      string   `json:"locator,omitempty"`
	RetrievalURL string   `json:"audio_url,omitempty"`
	CDNURL       string   `json:"cdn_url,omitempty"`
	Name         string   `json:"podcast_name"`
	ContentTags  []string `json:"content_tags,omitempty"`
	LibraryID    int64    `json:"library_id,omitempty"`
}

// Publisher runs the upload, sign and insert steps in order.
type Publisher struct {
	storage    core.ArtifactStorage
	library    core.MetadataStore
	log        *logger.Logger
	newKey     func() string
	cdnBaseURL string
	urlTTL     time.Duration
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithCDNBaseURL makes CDN URLs point at base instead of the storage locator.
func WithCDNBaseURL(base string) Option {
	return func(p *Publisher) {
		p.cdnBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithURLTTL overrides the lifetime of the signed URL.
func WithURLTTL(ttl time.Duration) Option {
	return func(p *Publisher) {
		if ttl > 0 {
			p.urlTTL = ttl
		}
	}
}

// WithKeyFunc overrides object key generation.
func WithKeyFunc(newKey func() string) Option {
	return func(p *Publisher) {
		if newKey != nil {
			p.newKey = newKey
		}
	}
}

// New creates a Publisher.
func New(storage core.ArtifactStorage, library core.MetadataStore, log *logger.Logger, opts ...Option) *Publisher {
	publisher := &Publisher{
		storage:    storage,
		library:    library,
		log:        log,
		newKey:     func() string { return keyPrefix + uuid.NewString() + keySuffix },
		cdnBaseURL: "",
		urlTTL:     DefaultURLTTL,
	}
	for _, opt := range opts {
		opt(publisher)
	}

	return publisher
}

// Publish uploads the artifact, signs a retrieval URL and inserts a library record.
// A failing step returns a *core.PublishError together with the record filled so far.
func (p *Publisher) Publish(ctx context.Context, artifact *assemble.Artifact, meta Metadata) (*Record, error) {
	if artifact == nil || len(artifact.Audio) == 0 {
		return nil, &core.PublishError{Step: core.PublishStepUpload, Err: ErrNoArtifact}
	}

	key := p.newKey()
	record := &Record{
		ObjectKey:    "",
		Locator:      "",
		RetrievalURL: "",
		CDNURL:       "",
		Name:         podcastName(meta.Name, key),
		ContentTags:  meta.ContentTags,
		LibraryID:    0,
	}

	locator, err := p.storage.Put(ctx, key, artifact.Audio)
	if err != nil {
		return record, &core.PublishError{Step: core.PublishStepUpload, Err: err}
	}

	record.ObjectKey = key
	record.Locator = locator
	record.CDNURL = p.cdnURL(key, locator)

	signed, err := p.storage.Sign(ctx, key, p.urlTTL)
	if err != nil {
		return record, &core.PublishError{Step: core.PublishStepSign, Err: err}
	}

	record.RetrievalURL = signed

	inserted, err := p.library.Insert(ctx, core.LibraryRecord{
		ID:          0,
		PodcastName: record.Name,
		ObjectKey:   key,
		CDNURL:      record.CDNURL,
		ContentTags: meta.ContentTags,
		CreatedAt:   time.Time{},
	})
	if err != nil {
		return record, &core.PublishError{Step: core.PublishStepInsert, Err: err}
	}

	record.LibraryID = inserted.ID

	p.log.Info("Published %s as library record %d", key, inserted.ID)

	return record, nil
}

func (p *Publisher) cdnURL(key, locator string) string {
	if p.cdnBaseURL == "" {
		return locator
	}

	return p.cdnBaseURL + "/" + key
}

func podcastName(name, key string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}

	return strings.TrimSuffix(path.Base(key), keySuffix)
}
