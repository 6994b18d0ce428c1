package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

	ElevenLabsDefaultVoice  = "21m00Tcm4TlvDq8ikWAM"
	ElevenLabsDefaultModel  = "eleven_multilingual_v2"
	ElevenLabsDefaultFormat = "mp3_44100_128"
)

// ElevenLabs calls the ElevenLabs text-to-speech REST API.
type ElevenLabs struct {
	baseURL string
	client  *http.Client
}

func NewElevenLabs(baseURL string, client *http.Client) *ElevenLabs {
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &ElevenLabs{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (*ElevenLabs) Name() string {
	return ProviderElevenLabs
}

func (*ElevenLabs) RequiresKey() bool {
	return true
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id,omitempty"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, apiKey string, req *Request) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	voice := req.Voice
	if voice.ID == "" {
		voice.ID = ElevenLabsDefaultVoice
	}
	if voice.ModelID == "" {
		voice.ModelID = ElevenLabsDefaultModel
	}
	if voice.OutputFormat == "" {
		voice.OutputFormat = ElevenLabsDefaultFormat
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    req.Text,
		ModelID: voice.ModelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       voice.Settings.Stability,
			SimilarityBoost: voice.Settings.SimilarityBoost,
			Style:           voice.Settings.Style,
			UseSpeakerBoost: voice.Settings.UseSpeakerBoost,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, url.PathEscape(voice.ID), url.QueryEscape(voice.OutputFormat))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("xi-api-key", apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &SynthesisError{Provider: ProviderElevenLabs, Message: "request failed", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, e.handleError(resp)
	}
	return resp.Body, nil
}

func (*ElevenLabs) handleError(resp *http.Response) error {
	synthErr := &SynthesisError{Provider: ProviderElevenLabs, StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var errResp elevenLabsErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Detail.Message != "" {
		synthErr.Message = errResp.Detail.Message
	} else {
		synthErr.Message = strings.TrimSpace(string(raw))
	}
	return synthErr
}
