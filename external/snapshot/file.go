package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/foxseedlab/modbot/internal/snapshot"
)

// FileBackend writes the snapshot to path and keeps older revisions next to
// it as name_2.ext, name_3.ext and so on.
type FileBackend struct {
	path string
	keep int
}

func NewFileBackend(path string, keep int) *FileBackend {
	return &FileBackend{path: path, keep: keep}
}

func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	doc, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, err
	}
	return doc, nil
}

func (b *FileBackend) Save(_ context.Context, doc []byte) error {
	if err := b.rotate(); err != nil {
		return err
	}
	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := tmp.Write(doc); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path)
}

func (b *FileBackend) rotate() error {
	for n := b.keep; n >= 2; n-- {
		src := b.revisionPath(n - 1)
		if err := copyFile(src, b.revisionPath(n)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to rotate %s: %w", src, err)
		}
	}
	return nil
}

// revisionPath returns the path of the n-th newest revision; 1 is current.
func (b *FileBackend) revisionPath(n int) string {
	if n <= 1 {
		return b.path
	}
	ext := filepath.Ext(b.path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(b.path, ext), n, ext)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
