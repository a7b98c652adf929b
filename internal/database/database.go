package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"
)

const (
	// defaultTimeout bounds every registry query.
	defaultTimeout = 5 * time.Second

	maxOpenConns = 10
	maxIdleConns = 5
)

// Database is the upload registry. Writes are serialised by mu; SQLite in WAL
// mode lets reads run beside them.
type Database struct {
	db *sql.DB
	mu sync.RWMutex

	statsMu sync.RWMutex
	stats   metrics.Stats
}

// New opens the registry file at path, creating it and its schema when
// needed. The parent directory must exist.
func New(ctx context.Context, path string) (*Database, error) {
	logging.Info("opening upload registry %s", path)
	checkPermissions(path)

	db, err := sql.Open("sqlite3", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{db: db}
	if err := d.Ping(ctx); err != nil {
		d.closeAfter("ping")
		return nil, fmt.Errorf("connect to registry: %w", err)
	}
	if err := d.initialize(ctx); err != nil {
		d.closeAfter("schema setup")
		return nil, fmt.Errorf("create registry schema: %w", err)
	}
	return d, nil
}

// dataSourceName enables WAL with a busy timeout so concurrent writers wait
// instead of failing with "database is locked".
func dataSourceName(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}

func (d *Database) closeAfter(step string) {
	if err := d.db.Close(); err != nil {
		logging.Error("close registry after failed %s: %v", step, err)
	}
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS uploads (
		id TEXT PRIMARY KEY,
		field TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		slug TEXT NOT NULL UNIQUE COLLATE NOCASE,
		path TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		extension TEXT NOT NULL,
		motion_type TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		duration REAL NOT NULL DEFAULT 0,
		fps REAL NOT NULL DEFAULT 0,
		has_audio INTEGER NOT NULL DEFAULT 0,
		original_file_name TEXT NOT NULL DEFAULT '',
		original_extension TEXT NOT NULL DEFAULT '',
		original_exif_orientation INTEGER NOT NULL DEFAULT 0,
		alternates TEXT NOT NULL DEFAULT '[]',
		artifacts TEXT NOT NULL DEFAULT '[]',
		checksum TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_field ON uploads(field);
	CREATE INDEX IF NOT EXISTS idx_uploads_motion_type ON uploads(motion_type);
	CREATE INDEX IF NOT EXISTS idx_uploads_checksum ON uploads(checksum);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks that the database answers.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// recordQuery feeds the query counters; call it deferred with the named error.
func recordQuery(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(op, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// checkPermissions warns about registry files the process cannot write.
// SQLite reports these only on the first write, long after startup.
func checkPermissions(path string) {
	dir := filepath.Dir(path)
	probe, err := os.CreateTemp(dir, ".registry-probe-*")
	if err != nil {
		logging.Warn("registry directory %s is not writable: %v", dir, err)
		return
	}
	probe.Close()
	_ = os.Remove(probe.Name())

	for _, suffix := range []string{"", "-wal", "-shm"} {
		info, err := os.Stat(path + suffix)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("registry file %s is read-only (mode %v); inserts will fail", path+suffix, info.Mode())
		}
	}
}
