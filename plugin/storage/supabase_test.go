package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage is an in-memory Supabase Storage endpoint.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func (f *fakeStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodHead && strings.HasPrefix(r.URL.Path, "/storage/v1/object/public/audio-cache/"):
		if _, ok := f.objects[strings.TrimPrefix(r.URL.Path, "/storage/v1/object/public/audio-cache/")]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case strings.HasPrefix(r.URL.Path, "/storage/v1/object/audio-cache/"):
		if r.Header.Get("Authorization") != "Bearer service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"invalid signature"}`)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/audio-cache/")
		switch r.Method {
		case http.MethodGet:
			data, ok := f.objects[key]
			if !ok {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"statusCode":"404","error":"not_found","message":"Object not found"}`)
				return
			}
			w.Write(data)
		case http.MethodPost:
			if r.Header.Get("x-upsert") != "false" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.uploads++
			if _, ok := f.objects[key]; ok {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, `{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`)
				return
			}
			data, _ := io.ReadAll(r.Body)
			f.objects[key] = data
			io.WriteString(w, `{"Key":"audio-cache/`+key+`"}`)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestSupabaseRoundTrip(t *testing.T) {
	fake := &fakeStorage{objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	defer server.Close()

	ctx := context.Background()
	store, err := NewSupabase(server.URL, "audio-cache", "service-key", server.Client())
	require.NoError(t, err)

	_, err = store.Download(ctx, "abc.mp3")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	exists, err := store.Exists(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Upload(ctx, "abc.mp3", []byte("mp3"), ""))
	require.NoError(t, store.Upload(ctx, "abc.mp3", []byte("mp3"), ""))
	assert.Equal(t, 2, fake.uploads)

	data, err := store.Download(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.Equal(t, "mp3", string(data))

	exists, err = store.Exists(ctx, "abc.mp3")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, server.URL+"/storage/v1/object/public/audio-cache/abc.mp3", store.PublicURL("abc.mp3"))
}

func TestSupabaseSurfacesAuthErrors(t *testing.T) {
	server := httptest.NewServer(&fakeStorage{objects: map[string][]byte{}})
	defer server.Close()

	store, err := NewSupabase(server.URL, "audio-cache", "wrong", server.Client())
	require.NoError(t, err)

	err = store.Upload(context.Background(), "abc.mp3", []byte("mp3"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid signature")

	_, err = store.Download(context.Background(), "abc.mp3")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}
