package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAssetURL(t *testing.T) {
	url, err := ResolveAssetURL("https://proj.supabase.co/", "abc123", "audio-cache")
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/audio-cache/abc123.mp3", url)

	_, err = ResolveAssetURL("  ", "abc123", "audio-cache")
	assert.Error(t, err)

	url, err = ResolveObjectURL("https://proj.supabase.co", "audio-cache", "questions/q1.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/audio-cache/questions/q1.mp3", url)
}

func TestAssetExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/present.mp3" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ctx := context.Background()
	assert.True(t, AssetExists(ctx, server.Client(), server.URL+"/present.mp3"))
	assert.False(t, AssetExists(ctx, server.Client(), server.URL+"/missing.mp3"))
	assert.False(t, AssetExists(ctx, server.Client(), "://bad-url"))

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()
	assert.False(t, AssetExists(ctx, nil, closedURL+"/x.mp3"))
}

func TestObjectKeyFromReference(t *testing.T) {
	tests := []struct {
		reference string
		key       string
		ok        bool
	}{
		{"abc.mp3", "abc.mp3", true},
		{"/abc.mp3", "abc.mp3", true},
		{"https://proj.supabase.co/storage/v1/object/public/audio-cache/abc.mp3", "abc.mp3", true},
		{"https://proj.supabase.co/storage/v1/object/public/other/abc.mp3", "", false},
		{"http://localhost:8081/audio/abc.mp3", "abc.mp3", true},
		{"/audio/abc.mp3", "abc.mp3", true},
		{"", "", false},
		{"   ", "", false},
		{"../secret", "", false},
		{"nested/abc.mp3", "nested/abc.mp3", true},
		{"https://proj.supabase.co/storage/v1/object/public/audio-cache/questions/q1.mp3", "questions/q1.mp3", true},
		{"http://localhost:8081/audio/emotions/happy.mp3", "emotions/happy.mp3", true},
		{"nested/../../secret", "", false},
		{"//abc.mp3", "", false},
	}
	for _, tt := range tests {
		key, ok := ObjectKeyFromReference(tt.reference, "audio-cache")
		assert.Equal(t, tt.ok, ok, tt.reference)
		assert.Equal(t, tt.key, key, tt.reference)
	}
}
