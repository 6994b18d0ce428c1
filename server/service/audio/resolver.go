// Package audio resolves a phrase to MP3 audio, preferring stored audio over
// a billable synthesis call.
package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/plugin/storage"
	"github.com/hrygo/speechcare/plugin/tts"
	"github.com/hrygo/speechcare/server/finops"
	svcerrors "github.com/hrygo/speechcare/server/internal/errors"
	"github.com/hrygo/speechcare/server/internal/observability"
	"github.com/hrygo/speechcare/store"
	"github.com/hrygo/speechcare/store/cache"
)

// Cache statuses reported in X-Cache-Status.
const (
	CacheStatusHitDatabase = "HIT-DATABASE"
	CacheStatusHitCache    = "HIT-CACHE"
	CacheStatusGenerated   = "GENERATED"
)

const (
	// SynthesisTimeout bounds one provider call including write-back.
	SynthesisTimeout = 55 * time.Second
	// MaxTextLength is the longest accepted text in runes.
	MaxTextLength = 5000

	ContentType = "audio/mpeg"

	MsgTextRequired    = "Text is required and must be a string"
	MsgMissingAPIKey   = "Server configuration error: Missing API key"
	MsgSynthesisFailed = "Failed to generate speech"

	linkTimeout = 5 * time.Second

	stageEntity      = "entity"
	stageContentHash = "content_hash"
)

// EntityRef names a question or emotion card whose stored audio is tried first.
type EntityRef struct {
	Kind store.EntityKind
	ID   string
}

// EntityFromIDs builds the lookup entity from request ids. A question id wins
// over an emotion card id; nil when both are empty.
func EntityFromIDs(questionID, emotionID string) *EntityRef {
	if questionID = strings.TrimSpace(questionID); questionID != "" {
		return &EntityRef{Kind: store.EntityKindQuestion, ID: questionID}
	}
	if emotionID = strings.TrimSpace(emotionID); emotionID != "" {
		return &EntityRef{Kind: store.EntityKindEmotionCard, ID: emotionID}
	}
	return nil
}

type ResolveRequest struct {
	Text   string
	Entity *EntityRef
}

type ResolveResult struct {
	Audio       []byte
	ContentType string
	CacheStatus string
	Hash        string
	ObjectKey   string
}

// EntityStore is the part of the store the resolver reads and writes.
type EntityStore interface {
	GetAudioReference(ctx context.Context, kind store.EntityKind, id string) (string, error)
	SetAudioReference(ctx context.Context, kind store.EntityKind, id, reference string) error
	UpsertAudioAsset(ctx context.Context, upsert *store.AudioAsset) (*store.AudioAsset, error)
}

// UsageRecorder receives one record per provider call.
type UsageRecorder interface {
	Record(ctx context.Context, record *finops.UsageRecord) (*store.TTSUsage, error)
}

// Config wires the resolver. Cache, Usage and Metrics are optional.
type Config struct {
	Provider tts.Provider
	// Credential is read on every synthesis so a rotated key takes effect immediately.
	Credential        profile.CredentialFunc
	CredentialEnvKeys []string
	Voice             tts.Voice

	Store   EntityStore
	Objects storage.ObjectStore
	Cache   *cache.TieredCache
	Usage   UsageRecorder
	Metrics *observability.Metrics

	SynthesisTimeout time.Duration
}

// Resolver serves audio from stored references, then the content-hash cache,
// and synthesizes on a miss.
type Resolver struct {
	provider          tts.Provider
	credential        profile.CredentialFunc
	credentialEnvKeys []string
	voice             tts.Voice

	store   EntityStore
	objects storage.ObjectStore
	cache   *cache.TieredCache
	usage   UsageRecorder
	metrics *observability.Metrics

	timeout time.Duration
	flights singleflight.Group

	// mu guards draining. Provider calls and their write-backs are tracked in
	// inflight so shutdown can wait for them.
	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// ErrDraining is returned for syntheses started after Drain.
var ErrDraining = errors.New("resolver is shutting down")

func NewResolver(config *Config) (*Resolver, error) {
	if config == nil {
		return nil, errors.New("resolver config is nil")
	}
	if config.Provider == nil {
		return nil, errors.New("resolver requires a tts provider")
	}
	if config.Store == nil {
		return nil, errors.New("resolver requires a store")
	}
	if config.Objects == nil {
		return nil, errors.New("resolver requires an object store")
	}

	r := &Resolver{
		provider:          config.Provider,
		credential:        config.Credential,
		credentialEnvKeys: config.CredentialEnvKeys,
		voice:             config.Voice,
		store:             config.Store,
		objects:           config.Objects,
		cache:             config.Cache,
		usage:             config.Usage,
		metrics:           config.Metrics,
		timeout:           config.SynthesisTimeout,
	}
	if r.credential == nil {
		r.credential = profile.StaticCredential("")
	}
	if r.metrics == nil {
		r.metrics = observability.NewMetrics()
	}
	if r.timeout <= 0 {
		r.timeout = SynthesisTimeout
	}
	return r, nil
}

// Metrics returns the collector the resolver reports to.
func (r *Resolver) Metrics() *observability.Metrics {
	return r.metrics
}

// Resolve returns the audio for req.Text. Errors are *errors.ServiceError.
func (r *Resolver) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResult, error) {
	start := time.Now()
	result, err := r.resolve(ctx, req)
	if err != nil {
		code := svcerrors.GetCodeFromError(err, svcerrors.ErrCodeInternal)
		r.metrics.RecordFailure(string(code), time.Since(start))
		return nil, err
	}
	r.metrics.RecordResolve(result.CacheStatus, time.Since(start))
	return result, nil
}

func (r *Resolver) resolve(ctx context.Context, req *ResolveRequest) (*ResolveResult, error) {
	logger := observability.LoggerFromContext(ctx)

	if req == nil || strings.TrimSpace(req.Text) == "" {
		return nil, svcerrors.InvalidArgument(MsgTextRequired)
	}
	textLen := utf8.RuneCountInString(req.Text)
	if textLen > MaxTextLength {
		return nil, svcerrors.InvalidArgument(fmt.Sprintf("Text must be at most %d characters", MaxTextLength)).
			WithContext(observability.LogFieldTextLen, textLen)
	}

	apiKey := r.credential()
	if apiKey == "" && r.provider.RequiresKey() {
		logger.Error("tts provider credential is missing",
			observability.LogFieldProvider, r.provider.Name(),
			"env", profile.MaskedEnvPresence(r.credentialEnvKeys...),
		)
		return nil, svcerrors.Configuration(MsgMissingAPIKey)
	}

	hash := ComputeContentHash(req.Text)
	hashKey := storage.ObjectKey(hash)
	logger = logger.With(observability.LogFieldHash, hash)

	needsLink := false
	if req.Entity != nil && req.Entity.ID != "" {
		data, key, link := r.lookupEntity(ctx, logger, req.Entity)
		if data != nil {
			return &ResolveResult{
				Audio:       data,
				ContentType: ContentType,
				CacheStatus: CacheStatusHitDatabase,
				Hash:        hash,
				ObjectKey:   key,
			}, nil
		}
		needsLink = link
	}

	data, err := r.fetchObject(ctx, hashKey)
	switch {
	case err == nil:
		if needsLink {
			r.link(ctx, logger, req.Entity, hashKey)
		}
		return &ResolveResult{
			Audio:       data,
			ContentType: ContentType,
			CacheStatus: CacheStatusHitCache,
			Hash:        hash,
			ObjectKey:   hashKey,
		}, nil
	case errors.Is(err, storage.ErrObjectNotFound):
		logger.Debug("content hash miss")
	case ctx.Err() != nil:
		return nil, svcerrors.FromContext(ctx.Err())
	default:
		r.degraded(logger, stageContentHash, err)
	}

	generated, err := r.synthesize(ctx, logger, hash, req.Text, apiKey)
	if err != nil {
		return nil, err
	}
	if needsLink && generated.stored {
		r.link(ctx, logger, req.Entity, hashKey)
	}
	return &ResolveResult{
		Audio:       generated.audio,
		ContentType: ContentType,
		CacheStatus: CacheStatusGenerated,
		Hash:        hash,
		ObjectKey:   hashKey,
	}, nil
}

// lookupEntity tries the entity's stored reference. needsLink reports that the
// entity exists with an empty reference. A non-empty reference is never
// replaced, even when it cannot be read.
func (r *Resolver) lookupEntity(ctx context.Context, logger *slog.Logger, entity *EntityRef) (data []byte, key string, needsLink bool) {
	logger = logger.With("entity_kind", entity.Kind, "entity_id", entity.ID)

	reference, err := r.store.GetAudioReference(ctx, entity.Kind, entity.ID)
	if errors.Is(err, store.ErrEntityNotFound) {
		logger.Warn("audio entity not found, using content hash")
		return nil, "", false
	}
	if err != nil {
		r.degraded(logger, stageEntity, err)
		return nil, "", false
	}
	if reference == "" {
		return nil, "", true
	}

	key, ok := storage.ObjectKeyFromReference(reference, r.objects.Bucket())
	if !ok {
		r.degraded(logger, stageEntity, errors.Errorf("unresolvable audio reference %q", reference))
		return nil, "", false
	}
	data, err = r.fetchObject(ctx, key)
	if err != nil {
		r.degraded(logger, stageEntity, err)
		return nil, "", false
	}
	return data, key, false
}

// fetchObject reads key through the tiered cache, filling it on an object store hit.
func (r *Resolver) fetchObject(ctx context.Context, key string) ([]byte, error) {
	if r.cache != nil {
		if data, ok := r.cache.Get(ctx, key); ok {
			return data, nil
		}
	}
	data, err := r.objects.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.Wrapf(storage.ErrObjectNotFound, "empty object %s", key)
	}
	if r.cache != nil {
		r.cache.Set(ctx, key, data)
	}
	return data, nil
}

type synthesis struct {
	audio  []byte
	stored bool
}

// synthesize runs at most one provider call per hash. The call is detached
// from the caller's cancellation; the caller stops waiting when ctx ends.
func (r *Resolver) synthesize(ctx context.Context, logger *slog.Logger, hash, text, apiKey string) (*synthesis, error) {
	leader := false
	ch := r.flights.DoChan(hash, func() (any, error) {
		leader = true
		if !r.track() {
			return nil, svcerrors.Internal(MsgSynthesisFailed, ErrDraining)
		}
		defer r.inflight.Done()

		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.generate(flightCtx, logger, hash, text, apiKey)
	})

	select {
	case res := <-ch:
		if !leader {
			r.metrics.RecordCoalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*synthesis), nil
	case <-ctx.Done():
		return nil, svcerrors.FromContext(ctx.Err())
	}
}

func (r *Resolver) track() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return false
	}
	r.inflight.Add(1)
	return true
}

// Drain stops new provider calls and waits until running ones, including
// their write-backs, finish or ctx ends.
func (r *Resolver) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for in-flight syntheses")
	}
}

func (r *Resolver) generate(ctx context.Context, logger *slog.Logger, hash, text, apiKey string) (*synthesis, error) {
	start := time.Now()
	data, err := r.callProvider(ctx, text, apiKey)
	latency := time.Since(start)

	r.metrics.RecordProviderCall(r.provider.Name(), utf8.RuneCountInString(text), latency, err)
	r.recordUsage(ctx, logger, hash, text, latency, err == nil)

	if err != nil {
		if ctxErr := svcerrors.FromContext(ctx.Err()); ctxErr != nil {
			logger.Error("speech synthesis timed out", "error", err, observability.LogFieldDuration, latency.Milliseconds())
			ctxErr.Cause = err
			return nil, ctxErr
		}
		logger.Error("speech synthesis failed",
			observability.LogFieldProvider, r.provider.Name(),
			"upstream_status", tts.StatusCodeOf(err),
			"error", err,
		)
		return nil, svcerrors.ProviderFailed(MsgSynthesisFailed, err)
	}

	logger.Info("speech synthesized",
		observability.LogFieldProvider, r.provider.Name(),
		"bytes", len(data),
		observability.LogFieldDuration, latency.Milliseconds(),
	)
	return &synthesis{audio: data, stored: r.writeBack(ctx, logger, hash, data)}, nil
}

func (r *Resolver) callProvider(ctx context.Context, text, apiKey string) ([]byte, error) {
	body, err := r.provider.Synthesize(ctx, apiKey, &tts.Request{Text: text, Voice: r.voice})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read synthesized audio")
	}
	if len(data) == 0 {
		return nil, tts.ErrNoAudio
	}
	return data, nil
}

// writeBack persists generated audio. Failures are logged only; the return
// value reports whether the object store now holds the audio.
func (r *Resolver) writeBack(ctx context.Context, logger *slog.Logger, hash string, data []byte) bool {
	key := storage.ObjectKey(hash)
	if r.cache != nil {
		r.cache.Set(ctx, key, data)
	}

	if err := r.objects.Upload(ctx, key, data, ContentType); err != nil {
		logger.Warn("failed to store generated audio", "key", key, "error", err)
		return false
	}

	var durationMs int64
	if duration, err := tts.ProbeDuration(data); err == nil {
		durationMs = duration.Milliseconds()
	} else {
		logger.Debug("failed to probe audio duration", "error", err)
	}

	if _, err := r.store.UpsertAudioAsset(ctx, &store.AudioAsset{
		Hash:        hash,
		Bucket:      r.objects.Bucket(),
		ObjectKey:   key,
		Size:        int64(len(data)),
		ContentType: ContentType,
		DurationMs:  durationMs,
		Provider:    r.provider.Name(),
		VoiceID:     r.voice.ID,
		ModelID:     r.voice.ModelID,
	}); err != nil {
		logger.Warn("failed to record audio asset", "error", err)
	}
	return true
}

func (r *Resolver) recordUsage(ctx context.Context, logger *slog.Logger, hash, text string, latency time.Duration, success bool) {
	if r.usage == nil {
		return
	}
	if _, err := r.usage.Record(ctx, &finops.UsageRecord{
		Provider:  r.provider.Name(),
		ModelID:   r.voice.ModelID,
		Hash:      hash,
		Text:      text,
		LatencyMs: latency.Milliseconds(),
		Success:   success,
	}); err != nil {
		logger.Warn("failed to record synthesis usage", "error", err)
	}
}

// link points the entity at key. It outlives the caller's cancellation.
func (r *Resolver) link(ctx context.Context, logger *slog.Logger, entity *EntityRef, key string) {
	linkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), linkTimeout)
	defer cancel()

	if err := r.store.SetAudioReference(linkCtx, entity.Kind, entity.ID, key); err != nil {
		logger.Warn("failed to link entity audio",
			"entity_kind", entity.Kind,
			"entity_id", entity.ID,
			"error", err,
		)
		return
	}
	logger.Info("linked entity audio", "entity_kind", entity.Kind, "entity_id", entity.ID, "key", key)
}

// degraded records a lookup failure that falls through to the next tier.
func (r *Resolver) degraded(logger *slog.Logger, stage string, err error) {
	r.metrics.RecordDegradedLookup(stage)
	logger.Warn("audio cache lookup degraded",
		"stage", stage,
		observability.LogFieldErrorCode, svcerrors.ErrCodeCacheLookupFailed,
		"error", err,
	)
}
