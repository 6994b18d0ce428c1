package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Local keeps objects as files under <dataDir>/storage/<bucket>.
type Local struct {
	bucket  string
	root    string
	baseURL string
}

func NewLocal(dataDir, bucket, baseURL string) (*Local, error) {
	if dataDir == "" {
		return nil, errors.New("local storage requires a data directory")
	}
	root, err := filepath.Abs(filepath.Join(dataDir, "storage", bucket))
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve storage directory")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage directory %s", root)
	}
	return &Local{
		bucket:  bucket,
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (l *Local) Bucket() string {
	return l.bucket
}

// objectPath maps key to a file under root. Keys may name subdirectories but
// never leave root.
func (l *Local) objectPath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(l.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, l.root+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrInvalidKey, "key %q escapes the bucket", key)
	}
	return path, nil
}

func (l *Local) Download(_ context.Context, key string) ([]byte, error) {
	path, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrObjectNotFound, "key %s", key)
		}
		return nil, errors.Wrapf(err, "failed to read object %s", key)
	}
	return data, nil
}

// Upload writes through a temp file and rename so readers never see a partial object.
func (l *Local) Upload(_ context.Context, key string, data []byte, _ string) error {
	path, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for object %s", key)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "failed to write object %s", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "failed to close object %s", key)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "failed to store object %s", key)
	}
	return nil
}

func (l *Local) Exists(_ context.Context, key string) (bool, error) {
	path, err := l.objectPath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to stat object %s", key)
}

// PublicURL points at the /audio/ route that serves local objects.
func (l *Local) PublicURL(key string) string {
	return l.baseURL + localObjectPath + key
}
