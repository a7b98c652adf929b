package transcoder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"media-ingest/internal/filesystem"
	"media-ingest/internal/logging"
)

// stagingDirName holds in-progress outputs inside a collection directory.
const stagingDirName = ".staging"

type placement struct {
	staged string
	final  string
}

// staging collects every output of one job under scratch names. Nothing
// outside the staging directory changes until commit.
type staging struct {
	dir        string
	placements []placement
	removals   []string
}

func newStaging(collectionDir string) (*staging, error) {
	dir := filepath.Join(collectionDir, stagingDirName, uuid.NewString())
	if err := filesystem.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &staging{dir: dir}, nil
}

// path returns a fresh scratch path with extension ext.
func (s *staging) path(ext string) string {
	return filepath.Join(s.dir, uuid.NewString()+ext)
}

// place schedules staged to be moved to final on commit. A later placement
// for the same final path replaces an earlier one.
func (s *staging) place(staged, final string) {
	for i, p := range s.placements {
		if p.final == final {
			s.placements[i].staged = staged
			return
		}
	}
	s.placements = append(s.placements, placement{staged: staged, final: final})
}

// remove schedules final to be deleted on commit.
func (s *staging) remove(final string) {
	s.removals = append(s.removals, final)
}

func (s *staging) placed(final string) bool {
	for _, p := range s.placements {
		if p.final == final {
			return true
		}
	}
	return false
}

// commit moves every staged output into place, applies removals and deletes
// the staging directory. It returns the final paths that were written.
func (s *staging) commit() ([]string, error) {
	defer s.rollback()

	written := make([]string, 0, len(s.placements))
	for _, p := range s.placements {
		if err := filesystem.ReplaceFile(p.staged, p.final); err != nil {
			return written, fmt.Errorf("commit %s: %w", filepath.Base(p.final), err)
		}
		written = append(written, p.final)
	}
	for _, path := range s.removals {
		if s.placed(path) {
			continue
		}
		if err := filesystem.RemoveIfExists(path); err != nil {
			return written, fmt.Errorf("remove replaced file: %w", err)
		}
	}
	return written, nil
}

// rollback discards everything staged.
func (s *staging) rollback() {
	if err := os.RemoveAll(s.dir); err != nil {
		logging.Warn("failed to remove staging directory %s: %v", s.dir, err)
	}
	// Succeeds only once no other job is staging in the collection.
	_ = os.Remove(filepath.Dir(s.dir))
}
