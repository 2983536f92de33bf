// Package objectstore stages source documents in a NATS JetStream object store bucket.
//
// Clients upload a document once and submit jobs with the returned object:// reference;
// the extractor resolves those references through Download. Job text too large for a job
// record is kept here as well, under jobs/<id>/.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// RefScheme prefixes references to documents staged in the bucket.
const RefScheme = "object://"

const documentKeyPrefix = "documents/"

// Static errors.
var (
	ErrNotFound  = errors.New("object not found")
	ErrEmptyName = errors.New("document name cannot be empty")
)

// NatsObjectStore implements core.ObjectStore using a NATS JetStream object store bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: "Source documents staged for podcast jobs.",
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves an object. A missing key wraps ErrNotFound.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", ErrNotFound, key, n.bucket)
		}

		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves an object under key.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// keySafeName replaces characters that are awkward in object keys and file names.
var keySafeName = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", "\"", "_", "\\", "_",
	"|", "_", "?", "_", "*", "_", " ", "_",
)

// Stage uploads a document under a fresh key derived from name and returns its reference.
func (n *NatsObjectStore) Stage(ctx context.Context, name string, data []byte) (string, error) {
	base := path.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == "/" {
		return "", ErrEmptyName
	}

	key := documentKeyPrefix + uuid.NewString() + "-" + keySafeName.Replace(base)

	err := n.Upload(ctx, key, data)
	if err != nil {
		return "", err
	}

	return Ref(key), nil
}

// Ref renders the reference for key.
func Ref(key string) string {
	return RefScheme + key
}

// ParseRef returns the object key of ref and whether ref points into the bucket.
func ParseRef(ref string) (string, bool) {
	key, found := strings.CutPrefix(strings.TrimSpace(ref), RefScheme)
	if !found || key == "" {
		return "", false
	}

	return key, true
}
