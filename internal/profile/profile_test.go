package profile_test

import (
	"testing"

	"github.com/book-expert/podcast-service/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin_ContainsPodcastProfile(t *testing.T) {
	t.Parallel()

	store := profile.Builtin()
	bundle := store.Lookup(profile.Podcast)

	assert.NotEmpty(t, bundle.Intro)
	assert.NotEmpty(t, bundle.TextInstructions)
	assert.NotEmpty(t, bundle.ScratchPad)
	assert.NotEmpty(t, bundle.Prelude)
	assert.NotEmpty(t, bundle.Dialog)
	assert.Equal(t, []profile.Key{profile.Lecture, profile.Podcast, profile.Summary}, store.Keys())
}

func TestLookup_UnknownProfileIsEmpty(t *testing.T) {
	t.Parallel()

	store := profile.Builtin()

	assert.Equal(t, profile.Bundle{}, store.Lookup("does-not-exist"))
	assert.False(t, store.Has("does-not-exist"))
}

func TestLookup_NormalizesKey(t *testing.T) {
	t.Parallel()

	store := profile.Builtin()

	assert.True(t, store.Has(" Podcast "))
	assert.Equal(t, store.Lookup(profile.Podcast), store.Lookup("PODCAST"))
}

func TestLoad_MissingFragmentsDefaultToEmpty(t *testing.T) {
	t.Parallel()

	store, err := profile.Load([]byte(`
[brief]
intro = "Keep it short."
`))
	require.NoError(t, err)

	bundle := store.Lookup("brief")
	assert.Equal(t, "Keep it short.", bundle.Intro)
	assert.Empty(t, bundle.TextInstructions)
	assert.Empty(t, bundle.ScratchPad)
	assert.Empty(t, bundle.Prelude)
	assert.Empty(t, bundle.Dialog)
}

func TestLoad_RejectsInvalidTOML(t *testing.T) {
	t.Parallel()

	_, err := profile.Load([]byte("[broken"))
	require.Error(t, err)
}

func TestLookup_NilStore(t *testing.T) {
	t.Parallel()

	var store *profile.Store

	assert.Equal(t, profile.Bundle{}, store.Lookup(profile.Podcast))
	assert.Nil(t, store.Keys())
}
