package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/plugin/storage"
	"github.com/hrygo/speechcare/server/finops"
	svcerrors "github.com/hrygo/speechcare/server/internal/errors"
	authmw "github.com/hrygo/speechcare/server/middleware"
	"github.com/hrygo/speechcare/server/service/audio"
	"github.com/hrygo/speechcare/server/stats"
	"github.com/hrygo/speechcare/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// filterBatchSize is how many assets a filtered listing reads per store query.
var filterBatchSize = maxPageSize

type APIV1Service struct {
	Profile     *profile.Profile
	Store       *store.Store
	Resolver    *audio.Resolver
	Objects     storage.ObjectStore
	CostMonitor *finops.CostMonitor
	Stats       *stats.Collector
	RateLimiter *authmw.RateLimiter
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, resolver *audio.Resolver, objects storage.ObjectStore) *APIV1Service {
	return &APIV1Service{
		Profile:     profile,
		Store:       store,
		Resolver:    resolver,
		Objects:     objects,
		CostMonitor: finops.NewCostMonitor(store, profile.TTSCostPerKChar),
		RateLimiter: authmw.NewRateLimiter(profile.TTSRateLimit, profile.TTSRateBurst),
	}
}

// Register mounts the HTTP API on echoServer.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	auth := authmw.BearerAuth(s.Profile.JWTSecret)

	echoServer.GET("/healthz", s.Healthz)
	echoServer.GET("/audio/*", s.GetAudioFile)

	ttsGroup := echoServer.Group("/api", middleware.CORS())
	ttsGroup.POST("/tts", s.Synthesize, auth, authmw.RateLimit(s.RateLimiter))

	apiGroup := echoServer.Group("/api/v1", middleware.CORS(), auth)
	apiGroup.GET("/audio-assets", s.ListAudioAssets)
	apiGroup.GET("/audio-assets/:hash", s.GetAudioAsset)

	apiGroup.POST("/questions", s.CreateQuestion)
	apiGroup.GET("/questions", s.ListQuestions)
	apiGroup.GET("/questions/:id", s.GetQuestion)
	apiGroup.DELETE("/questions/:id", s.DeleteQuestion)
	apiGroup.DELETE("/questions/:id/audio", s.ClearQuestionAudio)

	apiGroup.POST("/emotion-cards", s.CreateEmotionCard)
	apiGroup.GET("/emotion-cards", s.ListEmotionCards)
	apiGroup.GET("/emotion-cards/:id", s.GetEmotionCard)
	apiGroup.DELETE("/emotion-cards/:id", s.DeleteEmotionCard)
	apiGroup.DELETE("/emotion-cards/:id/audio", s.ClearEmotionCardAudio)

	apiGroup.GET("/usage", s.GetUsageReport)
	apiGroup.GET("/stats", s.GetStats)
}

// Healthz reports liveness.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}

// errorResponse writes err as {error, details?}. Details are only exposed outside prod.
func (s *APIV1Service) errorResponse(c echo.Context, err error) error {
	svcErr, ok := svcerrors.As(err)
	if !ok {
		svcErr = svcerrors.Internal("Internal server error", err)
	}
	status := svcErr.HTTPStatus()
	return c.JSON(status, svcErr.ResponseBody(status >= http.StatusInternalServerError && s.Profile.IsDev()))
}

func badRequest(c echo.Context, msg string) error {
	err := svcerrors.InvalidArgument(msg)
	return c.JSON(err.HTTPStatus(), err.ResponseBody(false))
}

func notFound(c echo.Context, msg string) error {
	err := svcerrors.NotFound(msg)
	return c.JSON(err.HTTPStatus(), err.ResponseBody(false))
}

// parsePagination reads limit and offset query parameters.
func parsePagination(c echo.Context) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
