package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalObjectStore keeps objects on disk under baseDir. Objects are served by
// the API under baseURL.
type LocalObjectStore struct {
	baseDir string
	baseURL string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir, baseURL string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", baseDir, err)
	}

	return &LocalObjectStore{baseDir: baseDir, baseURL: baseURL}, nil
}

func (s *LocalObjectStore) Provider() string {
	return ProviderLocal
}

func (s *LocalObjectStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalObjectStore) fullpath(key string) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if path != s.baseDir && !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes storage directory", key)
	}
	return path, nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, key, contentType string, data []byte) (Object, error) {
	path, err := s.fullpath(key)
	if err != nil {
		return Object{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return Object{}, fmt.Errorf("failed to create directory for %s/%s: %w", s.baseDir, key, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return Object{}, fmt.Errorf("failed to write file %s/%s: %w", s.baseDir, key, err)
	}

	return Object{Key: key, URL: joinURL(s.baseURL, key), Size: int64(len(data))}, nil
}

func (s *LocalObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	path, err := s.fullpath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to read file %s/%s: %w", s.baseDir, key, err)
	}
	return data, nil
}

func (s *LocalObjectStore) DeleteObject(ctx context.Context, key string) error {
	path, err := s.fullpath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s/%s: %w", s.baseDir, key, err)
	}
	return nil
}

func (s *LocalObjectStore) KeyForURL(url string) (string, bool) {
	return keyUnder(s.baseURL, url)
}
