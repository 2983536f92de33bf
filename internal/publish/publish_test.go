package publish_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-service/internal/assemble"
	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	putErr  error
	signErr error
	puts    map[string][]byte
	ttl     time.Duration
}

func (f *fakeStorage) Put(_ context.Context, key string, data []byte) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}

	f.puts[key] = data

	return "https://bucket.s3.amazonaws.com/" + key, nil
}

func (f *fakeStorage) Sign(_ context.Context, key string, ttl time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}

	f.ttl = ttl

	return "https://bucket.s3.amazonaws.com/" + key + "?signed=1", nil
}

type fakeLibrary struct {
	err     error
	records []core.LibraryRecord
}

func (f *fakeLibrary) Insert(_ context.Context, record core.LibraryRecord) (core.LibraryRecord, error) {
	if f.err != nil {
		return core.LibraryRecord{}, f.err
	}

	record.ID = int64(len(f.records) + 1)
	f.records = append(f.records, record)

	return record, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "publish-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = log.Close()
	})

	return log
}

func artifact() *assemble.Artifact {
	return &assemble.Artifact{Path: "/tmp/x.mp3", Audio: []byte("mp3"), Transcript: "speaker-1: hi"}
}

func fixedKey() string {
	return "podcasts/fixed.mp3"
}

func TestPublish_Success(t *testing.T) {
	t.Parallel()

	storage := &fakeStorage{puts: map[string][]byte{}}
	library := &fakeLibrary{}
	publisher := publish.New(storage, library, newTestLogger(t),
		publish.WithKeyFunc(fixedKey),
		publish.WithCDNBaseURL("https://cdn.example.com/"),
	)

	record, err := publisher.Publish(context.Background(), artifact(), publish.Metadata{Name: "My Show", ContentTags: []string{"go"}})
	require.NoError(t, err)

	assert.Equal(t, "podcasts/fixed.mp3", record.ObjectKey)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/podcasts/fixed.mp3?signed=1", record.RetrievalURL)
	assert.Equal(t, "https://cdn.example.com/podcasts/fixed.mp3", record.CDNURL)
	assert.Equal(t, int64(1), record.LibraryID)
	assert.Equal(t, publish.DefaultURLTTL, storage.ttl)
	assert.Equal(t, []byte("mp3"), storage.puts["podcasts/fixed.mp3"])

	require.Len(t, library.records, 1)
	assert.Equal(t, "My Show", library.records[0].PodcastName)
	assert.Equal(t, "https://cdn.example.com/podcasts/fixed.mp3", library.records[0].CDNURL)
	assert.Equal(t, []string{"go"}, library.records[0].ContentTags)
}

func TestPublish_DefaultKeyAndName(t *testing.T) {
	t.Parallel()

	storage := &fakeStorage{puts: map[string][]byte{}}
	publisher := publish.New(storage, &fakeLibrary{}, newTestLogger(t))

	record, err := publisher.Publish(context.Background(), artifact(), publish.Metadata{})
	require.NoError(t, err)

	assert.Regexp(t, `^podcasts/[0-9a-f-]{36}\.mp3$`, record.ObjectKey)
	assert.Equal(t, record.Locator, record.CDNURL)
	assert.NotEmpty(t, record.Name)
	assert.NotContains(t, record.Name, ".mp3")
}

func TestPublish_InsertFailureKeepsURL(t *testing.T) {
	t.Parallel()

	storage := &fakeStorage{puts: map[string][]byte{}}
	publisher := publish.New(storage, &fakeLibrary{err: errors.New("db down")}, newTestLogger(t),
		publish.WithKeyFunc(fixedKey))

	record, err := publisher.Publish(context.Background(), artifact(), publish.Metadata{Name: "n"})

	var publishErr *core.PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.Equal(t, core.PublishStepInsert, publishErr.Step)

	require.NotNil(t, record)
	assert.NotEmpty(t, record.RetrievalURL)
	assert.Zero(t, record.LibraryID)
}

func TestPublish_StepFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		storage  *fakeStorage
		wantStep string
		wantURL  bool
		wantKey  string
	}{
		{
			name:     "upload",
			storage:  &fakeStorage{putErr: errors.New("no bucket"), puts: map[string][]byte{}},
			wantStep: core.PublishStepUpload,
			wantURL:  false,
			wantKey:  "",
		},
		{
			name:     "sign",
			storage:  &fakeStorage{signErr: errors.New("no creds"), puts: map[string][]byte{}},
			wantStep: core.PublishStepSign,
			wantURL:  false,
			wantKey:  "podcasts/fixed.mp3",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			library := &fakeLibrary{}
			publisher := publish.New(testCase.storage, library, newTestLogger(t), publish.WithKeyFunc(fixedKey))

			record, err := publisher.Publish(context.Background(), artifact(), publish.Metadata{Name: "n"})

			var publishErr *core.PublishError
			require.ErrorAs(t, err, &publishErr)
			assert.Equal(t, testCase.wantStep, publishErr.Step)
			assert.Equal(t, testCase.wantURL, record.RetrievalURL != "")
			assert.Equal(t, testCase.wantKey, record.ObjectKey)
			assert.Empty(t, library.records)
		})
	}
}

func TestPublish_RejectsEmptyArtifact(t *testing.T) {
	t.Parallel()

	publisher := publish.New(&fakeStorage{puts: map[string][]byte{}}, &fakeLibrary{}, newTestLogger(t))

	_, err := publisher.Publish(context.Background(), &assemble.Artifact{}, publish.Metadata{})
	require.ErrorIs(t, err, publish.ErrNoArtifact)
}
