package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsSynthesize(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "sk-test", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()

	provider := NewElevenLabs(server.URL, server.Client())
	rc, err := provider.Synthesize(context.Background(), "sk-test", &Request{
		Text: "Olá",
		Voice: Voice{
			ID:           "voice-1",
			ModelID:      "eleven_multilingual_v2",
			OutputFormat: "mp3_44100_128",
			Settings:     VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, UseSpeakerBoost: true},
		},
	})
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio", string(data))

	assert.Equal(t, "Olá", gotBody["text"])
	assert.Equal(t, "eleven_multilingual_v2", gotBody["model_id"])
	settings := gotBody["voice_settings"].(map[string]any)
	assert.Equal(t, 0.5, settings["stability"])
	assert.Equal(t, 0.75, settings["similarity_boost"])
	assert.Equal(t, true, settings["use_speaker_boost"])
}

func TestElevenLabsDefaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/"+ElevenLabsDefaultVoice, r.URL.Path)
		assert.Equal(t, ElevenLabsDefaultFormat, r.URL.Query().Get("output_format"))
		w.Write([]byte("mp3"))
	}))
	defer server.Close()

	rc, err := NewElevenLabs(server.URL+"/", nil).Synthesize(context.Background(), "k", &Request{Text: "hi"})
	require.NoError(t, err)
	rc.Close()
}

func TestElevenLabsErrorCarriesStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"unauthorized json", http.StatusUnauthorized, `{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`, "Invalid API key"},
		{"rate limited plain", http.StatusTooManyRequests, "slow down", "slow down"},
		{"server error", http.StatusInternalServerError, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewElevenLabs(server.URL, server.Client()).Synthesize(context.Background(), "k", &Request{Text: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.status, StatusCodeOf(err))
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
			var synthErr *SynthesisError
			require.ErrorAs(t, err, &synthErr)
			assert.Equal(t, tt.message, synthErr.Message)
		})
	}
}

func TestElevenLabsValidation(t *testing.T) {
	provider := NewElevenLabs("http://127.0.0.1:1", nil)

	_, err := provider.Synthesize(context.Background(), "k", &Request{Text: "   "})
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = provider.Synthesize(context.Background(), "", &Request{Text: "hi"})
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.True(t, provider.RequiresKey())
}

func TestElevenLabsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewElevenLabs(url, nil).Synthesize(context.Background(), "k", &Request{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, 0, StatusCodeOf(err))
}
