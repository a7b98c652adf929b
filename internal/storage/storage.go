// Package storage publishes stored artifacts to durable storage.
//
// The local backend keeps files on disk under a root directory, which may be
// the media directory itself. The S3 backend uploads them to a bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"
)

// Backend stores objects under slash-separated keys.
type Backend interface {
	Name() string
	Put(ctx context.Context, key, localPath string) error
	Delete(ctx context.Context, key string) error
}

// Publisher pushes artifacts under the media root to a backend, keyed by
// their path relative to the root.
type Publisher struct {
	backend Backend
	root    string
}

// NewPublisher returns a Publisher for files under mediaRoot.
func NewPublisher(backend Backend, mediaRoot string) *Publisher {
	return &Publisher{backend: backend, root: filepath.Clean(mediaRoot)}
}

// Backend returns the name of the backend in use.
func (p *Publisher) Backend() string {
	return p.backend.Name()
}

// Key returns the object key of path.
func (p *Publisher) Key(path string) (string, error) {
	rel, err := filepath.Rel(p.root, filepath.Clean(path))
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the media root", path)
	}
	return filepath.ToSlash(rel), nil
}

// Publish puts every path and returns their keys. It stops at the first
// failure; keys already published are returned with the error.
func (p *Publisher) Publish(ctx context.Context, paths []string) ([]string, error) {
	keys := make([]string, 0, len(paths))
	for _, path := range paths {
		key, err := p.Key(path)
		if err != nil {
			return keys, err
		}
		err = p.backend.Put(ctx, key, path)
		p.record(err)
		if err != nil {
			return keys, fmt.Errorf("publish %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	logging.Debug("published %d artifacts to %s", len(keys), p.backend.Name())
	return keys, nil
}

// Unpublish deletes keys, continuing past failures.
func (p *Publisher) Unpublish(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := p.backend.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("unpublish %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) record(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoragePublishTotal.WithLabelValues(p.backend.Name(), status).Inc()
}
