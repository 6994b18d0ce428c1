package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/plugin/storage"
	"github.com/hrygo/speechcare/plugin/tts"
	"github.com/hrygo/speechcare/server/finops"
	"github.com/hrygo/speechcare/server/internal/observability"
	apiv1 "github.com/hrygo/speechcare/server/router/api/v1"
	"github.com/hrygo/speechcare/server/service/audio"
	"github.com/hrygo/speechcare/server/stats"
	"github.com/hrygo/speechcare/server/timezone"
	"github.com/hrygo/speechcare/store"
	"github.com/hrygo/speechcare/store/cache"
)

const (
	// writeTimeout leaves room for a full synthesis round trip.
	writeTimeout    = audio.SynthesisTimeout + 15*time.Second
	readTimeout     = 15 * time.Second
	pruneInterval   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	listener   net.Listener
	apiV1      *apiv1.APIV1Service
	audioCache *cache.TieredCache
	metrics    *observability.Metrics
	stats      *stats.Collector

	runnerCancel context.CancelFunc
}

// NewServer wires the resolver and HTTP routes. credential is read on every
// synthesis; nil falls back to the profile's environment keys.
func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, credential profile.CredentialFunc) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
		metrics: observability.NewMetrics(),
	}
	if credential == nil {
		credential = profile.Credential()
	}

	provider, err := tts.NewProvider(&tts.Config{
		Provider: profile.TTSProvider,
		BaseURL:  profile.TTSBaseURL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create tts provider")
	}

	objects, err := storage.NewObjectStore(&storage.Config{
		Driver:     profile.StorageDriver,
		Bucket:     profile.StorageBucket,
		DataDir:    profile.Data,
		BaseURL:    storageBaseURL(profile),
		ServiceKey: profile.StorageServiceKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object store")
	}

	tieredConfig := cache.DefaultTieredConfig()
	tieredConfig.L1MaxItems = profile.CacheMaxItems
	tieredConfig.L1TTL = profile.CacheTTL
	if profile.IsRedisEnabled() {
		redisConfig := cache.DefaultRedisConfig()
		redisConfig.Addr = profile.RedisAddr
		redisConfig.Password = profile.RedisPassword
		redisConfig.DB = profile.RedisDB
		redisCache, err := cache.NewRedisCache(ctx, redisConfig)
		if err != nil {
			// The object store still serves every hit, so run without L2.
			slog.Warn("redis unavailable, audio cache runs in memory only", "addr", profile.RedisAddr, "error", err)
		} else {
			tieredConfig.L2 = redisCache
		}
	}
	s.audioCache = cache.NewTieredCache(tieredConfig)

	costMonitor := finops.NewCostMonitor(store, profile.TTSCostPerKChar)
	resolver, err := audio.NewResolver(&audio.Config{
		Provider:          provider,
		Credential:        credential,
		CredentialEnvKeys: profile.CredentialEnvKeys(),
		Voice: tts.Voice{
			ID:           profile.TTSVoiceID,
			ModelID:      profile.TTSModelID,
			OutputFormat: profile.TTSOutputFormat,
			Settings: tts.VoiceSettings{
				Stability:       profile.TTSStability,
				SimilarityBoost: profile.TTSSimilarityBoost,
				Style:           profile.TTSStyle,
				UseSpeakerBoost: profile.TTSSpeakerBoost,
			},
		},
		Store:   store,
		Objects: objects,
		Cache:   s.audioCache,
		Usage:   costMonitor,
		Metrics: s.metrics,
	})
	if err != nil {
		s.audioCache.Close()
		return nil, errors.Wrap(err, "failed to create audio resolver")
	}

	s.stats = stats.NewCollector(store, s.audioCache, s.metrics)
	location, err := timezone.ParseTimezone(profile.Timezone)
	if err != nil {
		slog.Warn("invalid timezone, statistics use UTC", "timezone", profile.Timezone, "error", err)
	}
	s.stats.SetLocation(location)

	s.apiV1 = apiv1.NewAPIV1Service(profile, store, resolver, objects)
	s.apiV1.CostMonitor = costMonitor
	s.apiV1.Stats = s.stats

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.RequestID())
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				observability.LogFieldRequestID, v.RequestID,
				observability.LogFieldDuration, v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	s.echoServer = echoServer

	registry := s.metrics.Registry()
	echoServer.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	s.apiV1.Register(echoServer)

	slog.Info("speechcare server configured",
		"mode", profile.Mode,
		observability.LogFieldProvider, provider.Name(),
		"storage", profile.StorageDriver,
		"bucket", objects.Bucket(),
		"redis", tieredConfig.L2 != nil,
		"auth", profile.IsAuthEnabled(),
	)
	return s, nil
}

// storageBaseURL returns the address audio links are built from.
func storageBaseURL(profile *profile.Profile) string {
	switch {
	case profile.StorageDriver == storage.DriverSupabase:
		return profile.StorageURL
	case profile.InstanceURL != "":
		return profile.InstanceURL
	}
	host := profile.Addr
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, profile.Port)
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.listener = listener

	runnerCtx, cancel := context.WithCancel(ctx)
	s.runnerCancel = cancel
	s.stats.Start(runnerCtx)
	s.apiV1.RateLimiter.StartPruning(runnerCtx, pruneInterval)

	go func() {
		httpServer := &http.Server{
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		}
		s.echoServer.Listener = listener
		if err := s.echoServer.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.Info("speechcare server started", "address", listener.Addr().String())
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	parent := ctx
	ctx, cancel := context.WithTimeout(parent, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")

	if s.runnerCancel != nil {
		s.runnerCancel()
	}
	s.stats.Stop()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	// Detached syntheses may still be writing back to the store.
	drainCtx, drainCancel := context.WithTimeout(parent, audio.SynthesisTimeout)
	defer drainCancel()
	if err := s.apiV1.Resolver.Drain(drainCtx); err != nil {
		slog.Error("failed to drain audio resolver", "error", err)
	}
	if err := s.audioCache.Close(); err != nil {
		slog.Error("failed to close audio cache", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("speechcare stopped properly")
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// ConfigureLogger installs the process logger described by profile. JSON
// output is used outside dev mode. The returned closer flushes the log file.
func ConfigureLogger(profile *profile.Profile) (io.Closer, error) {
	logger, closer, err := observability.NewLogger(observability.LogConfig{
		Level: profile.LogLevel,
		JSON:  !profile.IsDev(),
		File:  profile.LogFile,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}
