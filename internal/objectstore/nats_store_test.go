package objectstore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server with JetStream for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		natsServer.Shutdown()
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	return natsServer, natsConnection
}

func newStore(t *testing.T) *objectstore.NatsObjectStore {
	t.Helper()

	_, natsConnection := StartTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "documents-test")
	require.NoError(t, err)

	return store
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()
	uploadData := []byte("hello world, this is a test")

	require.NoError(t, store.Upload(ctx, "my-test-object", uploadData))

	downloadData, err := store.Download(ctx, "my-test-object")
	require.NoError(t, err)
	assert.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_DownloadMissing(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, err := store.Download(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	_, natsConnection := StartTestServer(t)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "k", []byte("v")))

	second, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func TestNatsObjectStore_StageReturnsResolvableRef(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()

	ref, err := store.Stage(ctx, "/home/user/paper.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "object://documents/"))
	assert.True(t, strings.HasSuffix(ref, "-paper.pdf"))

	key, ok := objectstore.ParseRef(ref)
	require.True(t, ok)

	data, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = store.Stage(ctx, "  ", []byte("x"))
	require.ErrorIs(t, err, objectstore.ErrEmptyName)

	ref, err = store.Stage(ctx, "chapter 1: intro?.txt", []byte("text"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, "-chapter_1__intro_.txt"))
}

func TestParseRef(t *testing.T) {
	t.Parallel()

	key, ok := objectstore.ParseRef("object://documents/a.txt")
	assert.True(t, ok)
	assert.Equal(t, "documents/a.txt", key)

	_, ok = objectstore.ParseRef("https://example.com/a.txt")
	assert.False(t, ok)

	_, ok = objectstore.ParseRef("object://")
	assert.False(t, ok)
}
