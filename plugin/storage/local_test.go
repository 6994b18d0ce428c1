package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(dir, "audio-cache", "http://localhost:8081/")
	require.NoError(t, err)
	assert.Equal(t, "audio-cache", store.Bucket())

	exists, err := store.Exists(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Download(ctx, "abc.mp3")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	require.NoError(t, store.Upload(ctx, "abc.mp3", []byte("first"), AudioContentType))
	// Objects are immutable.
	require.NoError(t, store.Upload(ctx, "abc.mp3", []byte("second"), AudioContentType))

	data, err := store.Download(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	exists, err = store.Exists(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = os.Stat(filepath.Join(dir, "storage", "audio-cache", "abc.mp3"))
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/audio/abc.mp3", store.PublicURL("abc.mp3"))

	entries, err := os.ReadDir(filepath.Join(dir, "storage", "audio-cache"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalRejectsInvalidKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir(), "audio-cache", "")
	require.NoError(t, err)

	for _, key := range []string{"", "../x.mp3", "a/../../x.mp3", "/abs.mp3", "a//b.mp3", "./a.mp3", `a\b.mp3`} {
		assert.ErrorIs(t, store.Upload(ctx, key, []byte("x"), ""), ErrInvalidKey, key)
		_, err := store.Download(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalNestedKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(dir, "audio-cache", "http://localhost:8081")
	require.NoError(t, err)

	require.NoError(t, store.Upload(ctx, "questions/q1.mp3", []byte("nested"), AudioContentType))
	data, err := store.Download(ctx, "questions/q1.mp3")
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))

	exists, err := store.Exists(ctx, "questions/q1.mp3")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = os.Stat(filepath.Join(dir, "storage", "audio-cache", "questions", "q1.mp3"))
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/audio/questions/q1.mp3", store.PublicURL("questions/q1.mp3"))

	entries, err := os.ReadDir(filepath.Join(dir, "storage", "audio-cache", "questions"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewObjectStore(t *testing.T) {
	store, err := NewObjectStore(&Config{Driver: DriverLocal, Bucket: "b", DataDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	store, err = NewObjectStore(&Config{Driver: DriverSupabase, Bucket: "b", BaseURL: "https://proj.supabase.co"})
	require.NoError(t, err)
	assert.IsType(t, &Supabase{}, store)

	_, err = NewObjectStore(&Config{Driver: DriverSupabase, Bucket: "b"})
	assert.Error(t, err)
	_, err = NewObjectStore(&Config{Driver: "s3", Bucket: "b"})
	assert.Error(t, err)
	_, err = NewObjectStore(&Config{Driver: DriverLocal, DataDir: t.TempDir()})
	assert.Error(t, err)
}
