package storage

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	objectKeyExt     = ".mp3"
	publicObjectPath = "/storage/v1/object/public/"
	localObjectPath  = "/audio/"
)

// ObjectKey is the key an asset with the given content hash is stored under.
func ObjectKey(hash string) string {
	return hash + objectKeyExt
}

// ResolveAssetURL builds the public URL of a content-hash asset. It performs
// no network access.
func ResolveAssetURL(baseURL, hash, bucket string) (string, error) {
	return ResolveObjectURL(baseURL, bucket, ObjectKey(hash))
}

// ResolveObjectURL builds the public URL of any key in bucket.
func ResolveObjectURL(baseURL, bucket, key string) (string, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return "", errors.New("storage base url is not configured")
	}
	return baseURL + publicObjectPath + bucket + "/" + key, nil
}

// AssetExists reports whether a HEAD request to assetURL answers with a 2xx.
// Any request or transport failure counts as absent.
func AssetExists(ctx context.Context, client *http.Client, assetURL string) bool {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, assetURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ObjectKeyFromReference extracts the object key from a stored audio reference.
// A reference is a bare key, a public object URL or a local /audio/ path.
func ObjectKeyFromReference(reference, bucket string) (string, bool) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", false
	}

	path := reference
	if strings.Contains(reference, "://") {
		u, err := url.Parse(reference)
		if err != nil {
			return "", false
		}
		path = u.Path
	}

	switch {
	case strings.Contains(path, publicObjectPath):
		rest := path[strings.Index(path, publicObjectPath)+len(publicObjectPath):]
		objectBucket, key, ok := strings.Cut(rest, "/")
		if !ok || (bucket != "" && objectBucket != bucket) {
			return "", false
		}
		path = key
	case strings.HasPrefix(path, localObjectPath):
		path = strings.TrimPrefix(path, localObjectPath)
	default:
		path = strings.TrimPrefix(path, "/")
	}

	if validateKey(path) != nil {
		return "", false
	}
	return path, true
}
