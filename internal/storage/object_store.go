package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var ErrObjectNotFound = errors.New("object not found")

const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

type Object struct {
	Key  string
	URL  string
	Size int64
}

// ObjectStore holds uploaded media and generated images. Every stored object
// has a durable URL that can later be read back through URLFetcher.
type ObjectStore interface {
	Provider() string

	PutObject(ctx context.Context, key, contentType string, data []byte) (Object, error)

	GetObject(ctx context.Context, key string) ([]byte, error)

	DeleteObject(ctx context.Context, key string) error

	// KeyForURL reports the key of an object of this store given its URL.
	KeyForURL(url string) (string, bool)
}

func ObjectKey(folder, filename string) string {
	return path.Join(strings.Trim(folder, "/"), path.Base(filename))
}

// Uploader adapts an ObjectStore to the folder/filename upload used for
// generated images.
type Uploader struct {
	Store ObjectStore
}

func (u Uploader) Upload(ctx context.Context, folder, filename, contentType string, data []byte) (string, error) {
	obj, err := u.Store.PutObject(ctx, ObjectKey(folder, filename), contentType, data)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}

func keyUnder(base, url string) (string, bool) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if base == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}
