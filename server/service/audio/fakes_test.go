package audio

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/plugin/storage"
	"github.com/hrygo/speechcare/plugin/tts"
	"github.com/hrygo/speechcare/store"
)

type fakeProvider struct {
	requiresKey bool
	audio       []byte
	err         error
	delay       time.Duration
	// release, when set, blocks Synthesize until closed or ctx ends.
	release chan struct{}
	started chan struct{}

	mu    sync.Mutex
	calls int
	keys  []string
	texts []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{requiresKey: true, audio: []byte("generated-mp3")}
}

func (*fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) RequiresKey() bool { return p.requiresKey }

func (p *fakeProvider) Synthesize(ctx context.Context, apiKey string, req *tts.Request) (io.ReadCloser, error) {
	p.mu.Lock()
	p.calls++
	p.keys = append(p.keys, apiKey)
	p.texts = append(p.texts, req.Text)
	p.mu.Unlock()

	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return io.NopCloser(bytes.NewReader(p.audio)), nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeObjects struct {
	mu          sync.Mutex
	objects     map[string][]byte
	downloadErr error
	uploadErr   error
	downloads   int
	uploads     int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (*fakeObjects) Bucket() string { return "audio-cache" }

func (o *fakeObjects) Download(_ context.Context, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.downloads++
	if o.downloadErr != nil {
		return nil, o.downloadErr
	}
	data, ok := o.objects[key]
	if !ok {
		return nil, errors.Wrapf(storage.ErrObjectNotFound, "key %s", key)
	}
	return data, nil
}

func (o *fakeObjects) Upload(_ context.Context, key string, data []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uploads++
	if o.uploadErr != nil {
		return o.uploadErr
	}
	if _, ok := o.objects[key]; !ok {
		o.objects[key] = data
	}
	return nil
}

func (o *fakeObjects) Exists(_ context.Context, key string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok, nil
}

func (*fakeObjects) PublicURL(key string) string {
	return "https://proj.supabase.co/storage/v1/object/public/audio-cache/" + key
}

func (o *fakeObjects) put(key string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
}

func (o *fakeObjects) get(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	return data, ok
}

// failingEntityStore fails every reference lookup.
type failingEntityStore struct {
	EntityStore
}

func (failingEntityStore) GetAudioReference(context.Context, store.EntityKind, string) (string, error) {
	return "", errors.New("database is locked")
}
