package tts

import (
	"bytes"
	"time"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
)

// ProbeDuration decodes the MP3 frame index and returns the playback length.
func ProbeDuration(data []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(err, "failed to decode mp3")
	}
	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		return 0, errors.New("invalid mp3 sample rate")
	}
	// Decoded output is 16-bit stereo: 4 bytes per sample frame.
	samples := decoder.Length() / 4
	return time.Duration(samples) * time.Second / time.Duration(sampleRate), nil
}
