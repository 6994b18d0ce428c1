package tts

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
)

const EdgeDefaultVoice = "pt-BR-FranciscaNeural"

// Edge uses the Microsoft Edge read-aloud service. It needs no credential.
type Edge struct{}

func NewEdge() *Edge {
	return &Edge{}
}

func (*Edge) Name() string {
	return ProviderEdge
}

func (*Edge) RequiresKey() bool {
	return false
}

func (*Edge) Synthesize(ctx context.Context, _ string, req *Request) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	voice := req.Voice.ID
	if voice == "" {
		voice = EdgeDefaultVoice
	}

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(voice))
	if err != nil {
		return nil, &SynthesisError{Provider: ProviderEdge, Message: "failed to create session", Cause: err}
	}
	ch, err := comm.Stream()
	if err != nil {
		return nil, &SynthesisError{Provider: ProviderEdge, Message: "failed to start stream", Cause: err}
	}

	var buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			// Drain so the producer goroutine can exit.
			go func() {
				for range ch {
				}
			}()
			return nil, errors.Wrap(ctx.Err(), "edge synthesis canceled")
		default:
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}
	if buf.Len() == 0 {
		return nil, &SynthesisError{Provider: ProviderEdge, Cause: ErrNoAudio}
	}
	return io.NopCloser(&buf), nil
}
