package audio

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/plugin/storage"
	"github.com/hrygo/speechcare/plugin/tts"
	"github.com/hrygo/speechcare/server/finops"
	svcerrors "github.com/hrygo/speechcare/server/internal/errors"
	"github.com/hrygo/speechcare/store"
	"github.com/hrygo/speechcare/store/cache"
	"github.com/hrygo/speechcare/store/test"
)

type fixture struct {
	store    *store.Store
	provider *fakeProvider
	objects  *fakeObjects
	cache    *cache.TieredCache
	resolver *Resolver
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    test.NewTestingStore(ctx, t),
		provider: newFakeProvider(),
		objects:  newFakeObjects(),
		cache:    cache.NewTieredCache(nil),
	}
	t.Cleanup(func() { f.cache.Close() })

	config := &Config{
		Provider:          f.provider,
		Credential:        profile.StaticCredential("sk-test"),
		CredentialEnvKeys: []string{"ELEVENLABS_API_KEY"},
		Voice:             tts.Voice{ID: "voice-1", ModelID: "eleven_multilingual_v2"},
		Store:             f.store,
		Objects:           f.objects,
		Cache:             f.cache,
		Usage:             finops.NewCostMonitor(f.store, 0.30),
	}
	for _, opt := range opts {
		opt(config)
	}
	resolver, err := NewResolver(config)
	require.NoError(t, err)
	f.resolver = resolver
	return f
}

func requireCode(t *testing.T, err error, code svcerrors.ErrorCode) *svcerrors.ServiceError {
	t.Helper()
	require.Error(t, err)
	svcErr, ok := svcerrors.As(err)
	require.True(t, ok, "expected ServiceError, got %v", err)
	require.Equal(t, code, svcErr.Code)
	return svcErr
}

func TestComputeContentHash(t *testing.T) {
	// sha256("hello")
	const helloHash = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	assert.Equal(t, helloHash, ComputeContentHash("hello"))
	assert.Equal(t, helloHash, ComputeContentHash("  HeLLo \n"))
	assert.NotEqual(t, helloHash, ComputeContentHash("hello!"))
	assert.Len(t, ComputeContentHash("Olá"), 64)
	assert.Equal(t, ComputeContentHash("OLÁ"), ComputeContentHash("olá"))
}

func TestEntityFromIDs(t *testing.T) {
	assert.Nil(t, EntityFromIDs("", " "))
	assert.Equal(t, &EntityRef{Kind: store.EntityKindQuestion, ID: "q1"}, EntityFromIDs("q1", "e1"))
	assert.Equal(t, &EntityRef{Kind: store.EntityKindEmotionCard, ID: "e1"}, EntityFromIDs("", "e1"))
}

func TestNewResolverValidation(t *testing.T) {
	_, err := NewResolver(nil)
	assert.Error(t, err)
	_, err = NewResolver(&Config{Store: failingEntityStore{}, Objects: newFakeObjects()})
	assert.Error(t, err)
	_, err = NewResolver(&Config{Provider: newFakeProvider(), Objects: newFakeObjects()})
	assert.Error(t, err)
	_, err = NewResolver(&Config{Provider: newFakeProvider(), Store: failingEntityStore{}})
	assert.Error(t, err)
}

func TestResolveRejectsInvalidText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: text})
		svcErr := requireCode(t, err, svcerrors.ErrCodeInvalidArgument)
		assert.Equal(t, MsgTextRequired, svcErr.Message)
		assert.Equal(t, http.StatusBadRequest, svcErr.HTTPStatus())
	}

	long := make([]rune, MaxTextLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: string(long)})
	requireCode(t, err, svcerrors.ErrCodeInvalidArgument)

	_, err = f.resolver.Resolve(ctx, nil)
	requireCode(t, err, svcerrors.ErrCodeInvalidArgument)

	assert.Zero(t, f.provider.Calls())
	assert.Equal(t, int64(5), f.resolver.Metrics().Snapshot().RequestFailed)
}

func TestResolveMissingCredential(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Credential = profile.StaticCredential("") })
	ctx := context.Background()
	_, err := f.store.CreateQuestion(ctx, &store.Question{ID: "q1", Text: "Olá", AudioURL: "stored.mp3"})
	require.NoError(t, err)
	f.objects.put("stored.mp3", []byte("stored"))

	_, err = f.resolver.Resolve(ctx, &ResolveRequest{Text: "Olá", Entity: EntityFromIDs("q1", "")})
	svcErr := requireCode(t, err, svcerrors.ErrCodeConfiguration)
	assert.Equal(t, MsgMissingAPIKey, svcErr.Message)
	assert.Equal(t, http.StatusInternalServerError, svcErr.HTTPStatus())
	assert.Zero(t, f.provider.Calls())
	assert.Zero(t, f.objects.downloads)
}

func TestResolveKeylessProvider(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Credential = nil })
	f.provider.requiresKey = false

	result, err := f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Bom dia"})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, []string{""}, f.provider.keys)
}

func TestResolveCredentialRotation(t *testing.T) {
	credential := &profile.ReloadableCredential{}
	f := newFixture(t, func(c *Config) { c.Credential = credential.Func() })
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Oi"})
	requireCode(t, err, svcerrors.ErrCodeConfiguration)

	credential.Set("sk-rotated")
	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Oi"})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, []string{"sk-rotated"}, f.provider.keys)
}

func TestResolveEntityHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreateQuestion(ctx, &store.Question{ID: "q1", Text: "Como você está?", AudioURL: "stored.mp3"})
	require.NoError(t, err)
	_, err = f.store.CreateEmotionCard(ctx, &store.EmotionCard{
		ID:       "e1",
		Label:    "Feliz",
		AudioURL: "https://proj.supabase.co/storage/v1/object/public/audio-cache/happy.mp3",
	})
	require.NoError(t, err)
	f.objects.put("stored.mp3", []byte("question-audio"))
	f.objects.put("happy.mp3", []byte("happy-audio"))

	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Como você está?", Entity: EntityFromIDs("q1", "e1")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitDatabase, result.CacheStatus)
	assert.Equal(t, "question-audio", string(result.Audio))
	assert.Equal(t, ContentType, result.ContentType)
	assert.Equal(t, ComputeContentHash("Como você está?"), result.Hash)

	result, err = f.resolver.Resolve(ctx, &ResolveRequest{Text: "Feliz", Entity: EntityFromIDs("", "e1")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitDatabase, result.CacheStatus)
	assert.Equal(t, "happy-audio", string(result.Audio))
	assert.Equal(t, "happy.mp3", result.ObjectKey)

	assert.Zero(t, f.provider.Calls())
}

func TestResolveGeneratesAndWritesBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreateQuestion(ctx, &store.Question{ID: "q1", Text: "Você quer água?"})
	require.NoError(t, err)

	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Você quer água?", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, "generated-mp3", string(result.Audio))
	assert.Equal(t, 1, f.provider.Calls())
	assert.Equal(t, []string{"sk-test"}, f.provider.keys)

	hash := ComputeContentHash("Você quer água?")
	key := storage.ObjectKey(hash)
	stored, ok := f.objects.get(key)
	require.True(t, ok)
	assert.Equal(t, "generated-mp3", string(stored))

	question, err := f.store.GetQuestion(ctx, &store.FindQuestion{ID: stringPtr("q1")})
	require.NoError(t, err)
	assert.Equal(t, key, question.AudioURL)

	asset, err := f.store.GetAudioAsset(ctx, &store.FindAudioAsset{Hash: &hash})
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, key, asset.ObjectKey)
	assert.Equal(t, "audio-cache", asset.Bucket)
	assert.Equal(t, "fake", asset.Provider)
	assert.Equal(t, "voice-1", asset.VoiceID)
	assert.Equal(t, int64(len("generated-mp3")), asset.Size)

	usages, err := f.store.ListTTSUsage(ctx, &store.FindTTSUsage{})
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.True(t, usages[0].Success)
	assert.Equal(t, hash, usages[0].Hash)

	// The entity now resolves from its stored reference.
	result, err = f.resolver.Resolve(ctx, &ResolveRequest{Text: "Você quer água?", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitDatabase, result.CacheStatus)
	assert.Equal(t, 1, f.provider.Calls())
}

func TestResolveSecondRequestHitsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Estou com fome"})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, first.CacheStatus)

	second, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "  ESTOU com fome "})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitCache, second.CacheStatus)
	assert.Equal(t, first.Audio, second.Audio)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, 1, f.provider.Calls())

	snapshot := f.resolver.Metrics().Snapshot()
	assert.Equal(t, int64(1), snapshot.ByCacheStatus[CacheStatusGenerated])
	assert.Equal(t, int64(1), snapshot.ByCacheStatus[CacheStatusHitCache])
}

func TestResolveHitCacheFromObjectStore(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Cache = nil })
	ctx := context.Background()
	_, err := f.store.CreateEmotionCard(ctx, &store.EmotionCard{ID: "e1", Label: "Triste"})
	require.NoError(t, err)
	hash := ComputeContentHash("Triste")
	f.objects.put(storage.ObjectKey(hash), []byte("existing"))

	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Triste", Entity: EntityFromIDs("", "e1")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitCache, result.CacheStatus)
	assert.Equal(t, "existing", string(result.Audio))
	assert.Zero(t, f.provider.Calls())

	// An empty entity reference is linked to the content-hash object.
	card, err := f.store.GetEmotionCard(ctx, &store.FindEmotionCard{ID: stringPtr("e1")})
	require.NoError(t, err)
	assert.Equal(t, storage.ObjectKey(hash), card.AudioURL)
}

func TestResolveBrokenReferenceFallsThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreateQuestion(ctx, &store.Question{ID: "q1", Text: "Tchau", AudioURL: "deleted.mp3"})
	require.NoError(t, err)

	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Tchau", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, int64(1), f.resolver.Metrics().Snapshot().DegradedLookups)

	// The existing reference is left for an operator to repair.
	reference, err := f.store.GetAudioReference(ctx, store.EntityKindQuestion, "q1")
	require.NoError(t, err)
	assert.Equal(t, "deleted.mp3", reference)
}

func TestResolveForeignReferenceIsKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const foreign = "https://proj.supabase.co/storage/v1/object/public/other-bucket/q1.mp3"
	_, err := f.store.CreateQuestion(ctx, &store.Question{ID: "q1", Text: "Até logo", AudioURL: foreign})
	require.NoError(t, err)

	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Até logo", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, int64(1), f.resolver.Metrics().Snapshot().DegradedLookups)

	reference, err := f.store.GetAudioReference(ctx, store.EntityKindQuestion, "q1")
	require.NoError(t, err)
	assert.Equal(t, foreign, reference)
}

func TestResolveNestedReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreateQuestion(ctx, &store.Question{
		ID:       "q1",
		Text:     "Quer brincar?",
		AudioURL: "https://proj.supabase.co/storage/v1/object/public/audio-cache/questions/q1.mp3",
	})
	require.NoError(t, err)
	_, err = f.store.CreateEmotionCard(ctx, &store.EmotionCard{ID: "e1", Label: "Bravo", AudioURL: "emotions/angry.mp3"})
	require.NoError(t, err)
	f.objects.put("questions/q1.mp3", []byte("recorded-by-therapist"))
	f.objects.put("emotions/angry.mp3", []byte("angry-audio"))

	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Quer brincar?", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitDatabase, result.CacheStatus)
	assert.Equal(t, "questions/q1.mp3", result.ObjectKey)
	assert.Equal(t, "recorded-by-therapist", string(result.Audio))

	result, err = f.resolver.Resolve(ctx, &ResolveRequest{Text: "Bravo", Entity: EntityFromIDs("", "e1")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitDatabase, result.CacheStatus)
	assert.Equal(t, "emotions/angry.mp3", result.ObjectKey)

	assert.Zero(t, f.provider.Calls())
	assert.Zero(t, f.resolver.Metrics().Snapshot().DegradedLookups)
}

func TestResolveSeesReferenceChangedOutsideProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.CreateQuestion(ctx, &store.Question{ID: "q1", Text: "Bom dia", AudioURL: "old.mp3"})
	require.NoError(t, err)
	f.objects.put("old.mp3", []byte("old-audio"))
	f.objects.put("new.mp3", []byte("new-audio"))

	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Bom dia", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, "old-audio", string(result.Audio))

	// Another writer updates the row directly, bypassing this store's cache.
	reference := "new.mp3"
	_, err = f.store.GetDriver().UpdateQuestion(ctx, &store.UpdateQuestion{ID: "q1", AudioURL: &reference})
	require.NoError(t, err)

	result, err = f.resolver.Resolve(ctx, &ResolveRequest{Text: "Bom dia", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusHitDatabase, result.CacheStatus)
	assert.Equal(t, "new.mp3", result.ObjectKey)
	assert.Equal(t, "new-audio", string(result.Audio))
}

func TestResolveUnknownEntityUsesContentHash(t *testing.T) {
	f := newFixture(t)

	result, err := f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Sim", Entity: EntityFromIDs("missing", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Zero(t, f.resolver.Metrics().Snapshot().DegradedLookups)
}

func TestResolveEntityLookupErrorFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.resolver.store = failingEntityStore{EntityStore: f.store}

	result, err := f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Não", Entity: EntityFromIDs("q1", "")})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, int64(1), f.resolver.Metrics().Snapshot().DegradedLookups)
}

func TestResolveStorageOutageStillGenerates(t *testing.T) {
	f := newFixture(t)
	f.objects.downloadErr = errors.New("connection refused")
	f.objects.uploadErr = errors.New("connection refused")

	result, err := f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Ajuda"})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, int64(1), f.resolver.Metrics().Snapshot().DegradedLookups)

	asset, err := f.store.GetAudioAsset(context.Background(), &store.FindAudioAsset{Hash: &result.Hash})
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestResolveProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.err = &tts.SynthesisError{Provider: "fake", StatusCode: http.StatusUnauthorized, Message: "invalid api key"}
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Obrigado"})
	svcErr := requireCode(t, err, svcerrors.ErrCodeProviderFailed)
	assert.Equal(t, MsgSynthesisFailed, svcErr.Message)
	assert.Contains(t, svcErr.Details(), "status 401")
	assert.Equal(t, http.StatusUnauthorized, tts.StatusCodeOf(err))
	assert.Zero(t, f.objects.uploads)

	usages, err := f.store.ListTTSUsage(ctx, &store.FindTTSUsage{})
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.False(t, usages[0].Success)
	assert.Zero(t, usages[0].Cost)

	// Failures are not cached.
	f.provider.err = nil
	result, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Obrigado"})
	require.NoError(t, err)
	assert.Equal(t, CacheStatusGenerated, result.CacheStatus)
	assert.Equal(t, 2, f.provider.Calls())
}

func TestResolveEmptyAudioIsProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.audio = nil

	_, err := f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Vazio"})
	svcErr := requireCode(t, err, svcerrors.ErrCodeProviderFailed)
	assert.ErrorIs(t, svcErr, tts.ErrNoAudio)
}

func TestResolveCoalescesConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	f.provider.delay = 200 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	results := make([]*ResolveResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Quero brincar"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "generated-mp3", string(results[i].Audio))
		assert.Contains(t, []string{CacheStatusGenerated, CacheStatusHitCache}, results[i].CacheStatus)
	}
	assert.Equal(t, 1, f.provider.Calls())
}

func TestResolveCallerCancellationDoesNotAbortSynthesis(t *testing.T) {
	f := newFixture(t)
	f.provider.release = make(chan struct{})
	f.provider.started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Vamos embora"})
		done <- err
	}()

	<-f.provider.started
	cancel()
	err := <-done
	requireCode(t, err, svcerrors.ErrCodeContextCanceled)

	close(f.provider.release)
	hash := ComputeContentHash("Vamos embora")
	require.Eventually(t, func() bool {
		asset, err := f.store.GetAudioAsset(context.Background(), &store.FindAudioAsset{Hash: &hash})
		return err == nil && asset != nil
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := f.objects.get(storage.ObjectKey(hash))
	assert.True(t, ok)
}

func TestResolveSynthesisTimeout(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SynthesisTimeout = 50 * time.Millisecond })
	f.provider.release = make(chan struct{})
	defer close(f.provider.release)

	_, err := f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Demora"})
	svcErr := requireCode(t, err, svcerrors.ErrCodeTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, svcErr.HTTPStatus())
}

func TestDrainWaitsForDetachedSynthesis(t *testing.T) {
	f := newFixture(t)
	f.provider.release = make(chan struct{})
	f.provider.started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.resolver.Resolve(ctx, &ResolveRequest{Text: "Até amanhã"})
		done <- err
	}()
	<-f.provider.started
	cancel()
	requireCode(t, <-done, svcerrors.ErrCodeContextCanceled)

	short, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	assert.Error(t, f.resolver.Drain(short))

	drained := make(chan error, 1)
	go func() { drained <- f.resolver.Drain(context.Background()) }()
	close(f.provider.release)
	require.NoError(t, <-drained)

	// The write-back completed before Drain returned.
	hash := ComputeContentHash("Até amanhã")
	asset, err := f.store.GetAudioAsset(context.Background(), &store.FindAudioAsset{Hash: &hash})
	require.NoError(t, err)
	assert.NotNil(t, asset)

	_, err = f.resolver.Resolve(context.Background(), &ResolveRequest{Text: "Nova frase"})
	requireCode(t, err, svcerrors.ErrCodeInternal)
	assert.ErrorIs(t, err, ErrDraining)
	assert.Equal(t, 1, f.provider.Calls())
}

func stringPtr(s string) *string {
	return &s
}
