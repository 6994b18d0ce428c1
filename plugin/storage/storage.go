// Package storage stores synthesized audio objects, addressed by object key
// inside a single bucket.
package storage

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	DriverLocal    = "local"
	DriverSupabase = "supabase"

	// AudioContentType is the content type of every stored object.
	AudioContentType = "audio/mpeg"

	defaultTimeout = 30 * time.Second
)

var (
	// ErrObjectNotFound is returned by Download when the key is absent.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys that are empty, absolute or escape the bucket.
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStore is a bucket of immutable objects. Upload of an existing key is
// not an error and leaves the stored object untouched.
type ObjectStore interface {
	Bucket() string
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	// PublicURL returns the address clients can fetch the object from.
	PublicURL(key string) string
}

// Config holds the object store settings.
type Config struct {
	Driver string
	Bucket string
	// DataDir is the root of the local driver.
	DataDir string
	// BaseURL is the Supabase project URL, or the instance URL for the local driver.
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewObjectStore returns the store named by config.Driver.
func NewObjectStore(config *Config) (ObjectStore, error) {
	if config == nil {
		return nil, errors.New("storage config is nil")
	}
	if config.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	switch config.Driver {
	case DriverLocal, "":
		return NewLocal(config.DataDir, config.Bucket, config.BaseURL)
	case DriverSupabase:
		client := config.HTTPClient
		if client == nil {
			timeout := config.Timeout
			if timeout <= 0 {
				timeout = defaultTimeout
			}
			client = &http.Client{Timeout: timeout}
		}
		return NewSupabase(config.BaseURL, config.Bucket, config.ServiceKey, client)
	default:
		return nil, errors.Errorf("unsupported storage driver %q", config.Driver)
	}
}

// validateKey accepts relative slash-separated keys such as "questions/q1.mp3".
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsAny(key, "\\\x00") {
		return errors.Wrapf(ErrInvalidKey, "key %q", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return errors.Wrapf(ErrInvalidKey, "key %q", key)
		}
	}
	return nil
}
