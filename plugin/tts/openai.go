package tts

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

const (
	OpenAIDefaultVoice = "alloy"
	OpenAIDefaultModel = "tts-1"
)

// OpenAI synthesizes through the OpenAI-compatible speech endpoint.
type OpenAI struct {
	baseURL string
	client  *http.Client
}

func NewOpenAI(baseURL string, client *http.Client) *OpenAI {
	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (*OpenAI) Name() string {
	return ProviderOpenAI
}

func (*OpenAI) RequiresKey() bool {
	return true
}

func (o *OpenAI) Synthesize(ctx context.Context, apiKey string, req *Request) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	// The key can rotate between calls, so the client is built per request.
	config := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	if o.client != nil {
		config.HTTPClient = o.client
	}
	client := openai.NewClientWithConfig(config)

	voice := req.Voice
	if voice.ID == "" {
		voice.ID = OpenAIDefaultVoice
	}
	if voice.ModelID == "" {
		voice.ModelID = OpenAIDefaultModel
	}

	resp, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(voice.ModelID),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice.ID),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, &SynthesisError{Provider: ProviderOpenAI, StatusCode: openAIStatusCode(err), Cause: err}
	}
	return resp, nil
}

func openAIStatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
