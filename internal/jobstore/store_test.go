package jobstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/book-expert/podcast-service/internal/job"
	"github.com/book-expert/podcast-service/internal/jobstore"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deletableStore interface {
	job.Store
	Delete(ctx context.Context, id string) error
}

func startJetStream(t *testing.T) nats.JetStreamContext {
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

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func stores(t *testing.T) map[string]deletableStore {
	t.Helper()

	kvStore, err := jobstore.NewKVStore(startJetStream(t), "jobs_test", time.Hour)
	require.NoError(t, err)

	return map[string]deletableStore{
		"kv":     kvStore,
		"memory": jobstore.NewMemory(),
	}
}

func newRecord(id string) *job.Record {
	return &job.Record{
		ID:         id,
		Kind:       job.KindPodcast,
		State:      job.StatePending,
		CreatedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		StartedAt:  nil,
		FinishedAt: nil,
		Params:     job.Params{Files: []string{"a.pdf"}, PodcastName: "show"},
		Result:     nil,
		Error:      "",
	}
}

func TestStore_CreateGetUpdate(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Create(ctx, newRecord("job-1")))

			loaded, rev, err := store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, job.StatePending, loaded.State)
			assert.Equal(t, []string{"a.pdf"}, loaded.Params.Files)

			require.NoError(t, loaded.Transition(job.StateStarted, time.Now()))

			nextRev, err := store.Update(ctx, loaded, rev)
			require.NoError(t, err)
			assert.Greater(t, nextRev, rev)

			reloaded, reloadedRev, err := store.Get(ctx, "job-1")
			require.NoError(t, err)
			assert.Equal(t, job.StateStarted, reloaded.State)
			assert.NotNil(t, reloaded.StartedAt)
			assert.Equal(t, nextRev, reloadedRev)
		})
	}
}

func TestStore_StaleRevisionConflicts(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.Create(ctx, newRecord("job-2")))

			first, rev, err := store.Get(ctx, "job-2")
			require.NoError(t, err)

			second, _, err := store.Get(ctx, "job-2")
			require.NoError(t, err)

			require.NoError(t, first.Transition(job.StateStarted, time.Now()))
			_, err = store.Update(ctx, first, rev)
			require.NoError(t, err)

			require.NoError(t, second.Transition(job.StateStarted, time.Now()))
			_, err = store.Update(ctx, second, rev)
			require.ErrorIs(t, err, job.ErrConflict)

			require.ErrorIs(t, store.Create(ctx, newRecord("job-2")), job.ErrConflict)
		})
	}
}

func TestStore_MissingAndDeleted(t *testing.T) {
	t.Parallel()

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _, err := store.Get(ctx, "never-created")
			require.ErrorIs(t, err, job.ErrNotFound)

			require.NoError(t, store.Create(ctx, newRecord("job-3")))
			require.NoError(t, store.Delete(ctx, "job-3"))

			_, _, err = store.Get(ctx, "job-3")
			require.ErrorIs(t, err, job.ErrNotFound)
		})
	}
}

func TestNewKVStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	jetstreamContext := startJetStream(t)

	first, err := jobstore.NewKVStore(jetstreamContext, "jobs_shared", time.Hour)
	require.NoError(t, err)
	require.NoError(t, first.Create(context.Background(), newRecord("job-4")))

	second, err := jobstore.NewKVStore(jetstreamContext, "jobs_shared", 2*time.Hour)
	require.NoError(t, err)

	_, _, err = second.Get(context.Background(), "job-4")
	require.NoError(t, err)
}
