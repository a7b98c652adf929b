package handlers

import (
	"context"
	"time"

	"media-ingest/internal/database"
	"media-ingest/internal/ingest"
	"media-ingest/internal/limits"
	"media-ingest/internal/metrics"
)

// Ingester runs uploads through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, up ingest.Upload) (*ingest.Outcome, error)
	Policy() *limits.Policy
}

// Store is the read side of the upload registry.
type Store interface {
	GetUploadBySlug(ctx context.Context, slug string) (*database.Upload, error)
	FindByChecksum(ctx context.Context, checksum string) ([]*database.Upload, error)
	GetStats() metrics.Stats
	Ping(ctx context.Context) error
}

var (
	_ Ingester = (*ingest.Pipeline)(nil)
	_ Store    = (*database.Database)(nil)
)

type Handlers struct {
	ingester  Ingester
	store     Store
	startTime time.Time
}

func New(ing Ingester, store Store) *Handlers {
	return &Handlers{
		ingester:  ing,
		store:     store,
		startTime: time.Now(),
	}
}
