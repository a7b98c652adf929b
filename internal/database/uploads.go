package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"
	"media-ingest/internal/naming"
)

var (
	// ErrNotFound is returned when no upload matches.
	ErrNotFound = errors.New("upload not found")
	// ErrNameTaken is returned when an insert or rename loses a race for a
	// file name or slug.
	ErrNameTaken = errors.New("upload name already taken")
)

const uploadColumns = `id, field, title, file_name, slug, path, mime_type, extension, motion_type,
	file_size, width, height, duration, fps, has_audio, original_file_name, original_extension,
	original_exif_orientation, alternates, artifacts, checksum, created_at`

// IsUnique reports whether name is free as both a file name and a slug,
// ignoring case. A name held by the upload exemptID counts as free.
func (d *Database) IsUnique(ctx context.Context, name, exemptID string) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("is_unique", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM uploads
		WHERE (file_name = ? OR slug = ?) AND id != ?
	`, name, naming.Slug(name), exemptID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// InsertUpload stores u. CreatedAt is set when zero. A lost name race
// returns ErrNameTaken.
func (d *Database) InsertUpload(ctx context.Context, u *Upload) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_upload", start, err) }()

	if u.Slug == "" {
		u.Slug = naming.Slug(u.FileName)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}

	alternates, err := json.Marshal(nonNil(u.Alternates))
	if err != nil {
		return fmt.Errorf("encode alternates: %w", err)
	}
	artifacts, err := json.Marshal(nonNil(u.Artifacts))
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `INSERT INTO uploads (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Field, u.Title, u.FileName, u.Slug, u.Path, u.MimeType, u.Extension, u.MotionType,
		u.FileSize, u.Width, u.Height, u.Duration, u.FPS, u.HasAudio, u.OriginalFileName,
		u.OriginalExtension, u.OriginalEXIFOrientation, string(alternates), string(artifacts),
		u.Checksum, u.CreatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		logging.Debug("insert of %q lost a name race: %v", u.FileName, err)
		err = ErrNameTaken
	}
	return err
}

// GetUpload returns the upload with the given id.
func (d *Database) GetUpload(ctx context.Context, id string) (*Upload, error) {
	return d.getUpload(ctx, "get_upload", "id = ?", id)
}

// GetUploadBySlug returns the upload whose slug matches, ignoring case.
func (d *Database) GetUploadBySlug(ctx context.Context, slug string) (*Upload, error) {
	return d.getUpload(ctx, "get_upload_by_slug", "slug = ?", slug)
}

// FindByChecksum returns the uploads whose received bytes had checksum,
// oldest first.
func (d *Database) FindByChecksum(ctx context.Context, checksum string) ([]*Upload, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_by_checksum", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE checksum = ? ORDER BY created_at, id`, checksum)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		var u *Upload
		if u, err = scanUpload(rows); err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	err = rows.Err()
	return uploads, err
}

func (d *Database) getUpload(ctx context.Context, op, where string, arg any) (*Upload, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(op, start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE `+where, arg)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// DeleteUpload removes the upload record. A missing record is not an error.
func (d *Database) DeleteUpload(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_upload", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM uploads WHERE id = ?", id)
	return err
}

// RefreshStats recounts stored uploads by motion type.
func (d *Database) RefreshStats(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("refresh_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT motion_type, COUNT(*) FROM uploads GROUP BY motion_type")
	if err != nil {
		return err
	}
	defer rows.Close()

	var stats metrics.Stats
	for rows.Next() {
		var motion string
		var count int
		if err = rows.Scan(&motion, &count); err != nil {
			return err
		}
		stats.TotalUploads += count
		switch motion {
		case "image":
			stats.TotalImages = count
		case "video":
			stats.TotalVideos = count
		}
	}
	if err = rows.Err(); err != nil {
		return err
	}

	d.statsMu.Lock()
	d.stats = stats
	d.statsMu.Unlock()
	return nil
}

// GetStats implements metrics.StatsSource. It refreshes the counts and
// falls back to the last known values when the query fails.
func (d *Database) GetStats() metrics.Stats {
	if err := d.RefreshStats(context.Background()); err != nil {
		logging.Warn("failed to refresh upload stats: %v", err)
	}
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*Upload, error) {
	var u Upload
	var alternates, artifacts string
	var created int64
	err := row.Scan(
		&u.ID, &u.Field, &u.Title, &u.FileName, &u.Slug, &u.Path, &u.MimeType, &u.Extension,
		&u.MotionType, &u.FileSize, &u.Width, &u.Height, &u.Duration, &u.FPS, &u.HasAudio,
		&u.OriginalFileName, &u.OriginalExtension, &u.OriginalEXIFOrientation,
		&alternates, &artifacts, &u.Checksum, &created,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(alternates), &u.Alternates); err != nil {
		return nil, fmt.Errorf("decode alternates of %s: %w", u.ID, err)
	}
	if err := json.Unmarshal([]byte(artifacts), &u.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts of %s: %w", u.ID, err)
	}
	if len(u.Alternates) == 0 {
		u.Alternates = nil
	}
	u.CreatedAt = time.Unix(created, 0)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
