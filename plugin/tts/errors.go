package tts

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyText is returned when attempting to synthesize empty text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrMissingCredential is returned when a provider that needs a key gets none.
	ErrMissingCredential = errors.New("missing provider credential")

	// ErrNoAudio is returned when a provider answers successfully with an empty body.
	ErrNoAudio = errors.New("provider returned no audio")
)

// SynthesisError is a failed provider call. StatusCode is the upstream HTTP
// status, zero when the request never got a response.
type SynthesisError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *SynthesisError) Error() string {
	msg := e.Provider + " synthesis failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// StatusCodeOf returns the upstream status carried by err, or zero.
func StatusCodeOf(err error) int {
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		return synthErr.StatusCode
	}
	return 0
}
