package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/server/service/audio"
	teststore "github.com/hrygo/speechcare/store/test"
)

func newTestProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := &profile.Profile{
		Mode:            "dev",
		Addr:            "127.0.0.1",
		Port:            0,
		Data:            t.TempDir(),
		Version:         "test",
		TTSProvider:     "elevenlabs",
		TTSCostPerKChar: 0.30,
		TTSRateLimit:    100,
		TTSRateBurst:    100,
	}
	p.ApplyDefaults()
	return p
}

func TestServerRoutes(t *testing.T) {
	ctx := context.Background()
	st := teststore.NewTestingStore(ctx, t)

	s, err := NewServer(ctx, newTestProfile(t), st, profile.StaticCredential(""))
	require.NoError(t, err)
	t.Cleanup(func() { s.audioCache.Close() })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	// Without a credential the request fails before any lookup.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tts", strings.NewReader(`{"text":"oi"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing API key")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "speechcare_resolve_requests_total")
}

func TestServerUsesRedisWhenConfigured(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	st := teststore.NewTestingStore(ctx, t)

	p := newTestProfile(t)
	p.RedisAddr = mr.Addr()
	s, err := NewServer(ctx, p, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.audioCache.Close() })

	assert.True(t, s.audioCache.Stats().L2Enabled)
}

func TestServerRejectsUnknownProvider(t *testing.T) {
	ctx := context.Background()
	st := teststore.NewTestingStore(ctx, t)

	p := newTestProfile(t)
	p.TTSProvider = "unknown"
	_, err := NewServer(ctx, p, st, nil)
	require.Error(t, err)
}

func TestShutdownDrainsResolver(t *testing.T) {
	ctx := context.Background()
	st := teststore.NewTestingStore(ctx, t)

	s, err := NewServer(ctx, newTestProfile(t), st, profile.StaticCredential("sk-test"))
	require.NoError(t, err)

	s.Shutdown(ctx)

	// No provider call or write-back starts once the store is closing.
	_, err = s.apiV1.Resolver.Resolve(ctx, &audio.ResolveRequest{Text: "oi"})
	assert.ErrorIs(t, err, audio.ErrDraining)
}

func TestStorageBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8081", storageBaseURL(&profile.Profile{Port: 8081}))
	assert.Equal(t, "https://care.example.com", storageBaseURL(&profile.Profile{InstanceURL: "https://care.example.com"}))
	assert.Equal(t, "https://proj.supabase.co", storageBaseURL(&profile.Profile{StorageDriver: "supabase", StorageURL: "https://proj.supabase.co"}))
}
