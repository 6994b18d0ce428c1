package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/speechcare/server/internal/observability"
	"github.com/hrygo/speechcare/server/service/audio"
)

const (
	HeaderCacheStatus = "X-Cache-Status"
	HeaderContentHash = "X-Content-Hash"

	maxRequestBytes = 64 << 10
)

// synthesizeRequest keeps fields untyped so a non-string text is reported as a
// validation error rather than a decode error.
type synthesizeRequest struct {
	Text       any `json:"text"`
	QuestionID any `json:"questionId"`
	EmotionID  any `json:"emotionId"`
}

// Synthesize returns MP3 audio for the requested text.
// POST /api/tts
func (s *APIV1Service) Synthesize(c echo.Context) error {
	reqCtx := observability.NewRequestContextWithID(slog.Default(), c.Response().Header().Get(echo.HeaderXRequestID), c.Path())
	ctx := observability.WithRequestContext(c.Request().Context(), reqCtx)

	var body synthesizeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(c.Response(), c.Request().Body, maxRequestBytes))
	if err := decoder.Decode(&body); err != nil {
		reqCtx.Warn("invalid tts request body", slog.String("error", err.Error()))
		return badRequest(c, "Invalid request body")
	}

	text, ok := body.Text.(string)
	if !ok {
		return badRequest(c, audio.MsgTextRequired)
	}
	questionID, ok := optionalString(body.QuestionID)
	if !ok {
		return badRequest(c, "questionId must be a string")
	}
	emotionID, ok := optionalString(body.EmotionID)
	if !ok {
		return badRequest(c, "emotionId must be a string")
	}

	result, err := s.Resolver.Resolve(ctx, &audio.ResolveRequest{
		Text:   text,
		Entity: audio.EntityFromIDs(questionID, emotionID),
	})
	if err != nil {
		reqCtx.Warn("tts request failed",
			slog.String("error", err.Error()),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
		)
		return s.errorResponse(c, err)
	}

	reqCtx.Info("tts request served",
		slog.String(observability.LogFieldCacheStatus, result.CacheStatus),
		slog.String(observability.LogFieldHash, result.Hash),
		slog.Int("bytes", len(result.Audio)),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
	)

	header := c.Response().Header()
	header.Set(echo.HeaderContentLength, strconv.Itoa(len(result.Audio)))
	header.Set(HeaderCacheStatus, result.CacheStatus)
	header.Set(HeaderContentHash, result.Hash)
	return c.Blob(http.StatusOK, result.ContentType, result.Audio)
}

func optionalString(v any) (string, bool) {
	if v == nil {
		return "", true
	}
	s, ok := v.(string)
	return s, ok
}
