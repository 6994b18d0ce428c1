// Package tts wraps the speech synthesis providers behind one interface.
package tts

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeout bounds a single synthesis HTTP call.
const DefaultTimeout = 60 * time.Second

// VoiceSettings are the prosody parameters sent with every request.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	UseSpeakerBoost bool
}

// Voice is the fixed voice configuration of a deployment. Callers cannot pick
// a voice per request.
type Voice struct {
	ID           string
	ModelID      string
	OutputFormat string
	Settings     VoiceSettings
}

// Request is one synthesis call.
type Request struct {
	Text  string
	Voice Voice
}

// Provider synthesizes speech. The returned reader streams MP3 bytes and must be closed.
type Provider interface {
	Name() string
	// RequiresKey reports whether Synthesize needs a non-empty apiKey.
	RequiresKey() bool
	Synthesize(ctx context.Context, apiKey string, req *Request) (io.ReadCloser, error)
}

// Config holds provider connection settings.
type Config struct {
	Provider string
	BaseURL  string
	Timeout  time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// NewProvider returns the provider named in config.
func NewProvider(config *Config) (Provider, error) {
	if config == nil {
		return nil, errors.New("tts config is nil")
	}
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	switch config.Provider {
	case ProviderElevenLabs:
		return NewElevenLabs(config.BaseURL, client), nil
	case ProviderOpenAI:
		return NewOpenAI(config.BaseURL, client), nil
	case ProviderEdge:
		return NewEdge(), nil
	default:
		return nil, errors.Errorf("unsupported tts provider %q", config.Provider)
	}
}

const (
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
	ProviderEdge       = "edge"
)
