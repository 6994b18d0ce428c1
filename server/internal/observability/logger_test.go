package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	reqCtx := NewRequestContextWithID(logger, "req-1", "/api/tts")
	reqCtx.Info("resolved", slog.String(LogFieldCacheStatus, "HIT-CACHE"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[LogFieldRequestID])
	assert.Equal(t, "/api/tts", entry[LogFieldRoute])
	assert.Equal(t, "HIT-CACHE", entry[LogFieldCacheStatus])
}

func TestRequestContextRoundTrip(t *testing.T) {
	reqCtx := NewRequestContext(nil, "/api/tts")
	assert.NotEmpty(t, reqCtx.RequestID)

	ctx := WithRequestContext(context.Background(), reqCtx)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, reqCtx, got)
	assert.NotNil(t, LoggerFromContext(ctx))

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
}

func TestNewLogger(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "speechcare.log")
	logger, closer, err := NewLogger(LogConfig{Level: "debug", JSON: true, File: file})
	require.NoError(t, err)
	logger.Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, _, err = NewLogger(LogConfig{Level: "verbose"})
	assert.Error(t, err)
}
