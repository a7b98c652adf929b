package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"media-ingest/internal/filesystem"
)

// Local stores objects as files under Root.
type Local struct {
	Root string
}

// NewLocal returns a local backend rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: filepath.Clean(root)}
}

// Name implements Backend.
func (l *Local) Name() string { return "local" }

func (l *Local) path(key string) string {
	return filepath.Join(l.Root, filepath.FromSlash(key))
}

// Put implements Backend. A file that already lives at its key is left alone.
func (l *Local) Put(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := l.path(key)
	if filepath.Clean(localPath) == dst {
		return nil
	}
	if err := filesystem.EnsureDir(filepath.Dir(dst)); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// Delete implements Backend.
func (l *Local) Delete(ctx context.Context, key string) error {
	return filesystem.RemoveIfExists(l.path(key))
}
