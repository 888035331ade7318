package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotArchived is returned when a key has no stored object.
	ErrNotArchived = errors.New("storage: object not archived")
	// ErrInvalidKey rejects keys that are absolute or escape the archive root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Archive keeps content-addressed export files on disk. Keys are slash
// separated paths relative to the base directory; an object is never rewritten
// once stored because its key already names its content.
type Archive struct {
	baseDir string
	now     func() time.Time
}

// NewArchive ensures the base directory exists and returns a handle.
func NewArchive(baseDir string) (*Archive, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export archive: %w", err)
	}
	return &Archive{baseDir: baseDir, now: time.Now}, nil
}

// Put stores data under key. It reports false without touching the disk when
// the key already exists.
func (a *Archive) Put(key string, data []byte) (bool, error) {
	path, err := a.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("prepare archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return false, fmt.Errorf("create archive object: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return false, fmt.Errorf("write archive object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("write archive object: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("commit archive object: %w", err)
	}
	return true, nil
}

// Open returns a read-only handle for a stored object.
func (a *Archive) Open(key string) (*os.File, error) {
	path, err := a.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotArchived, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive object: %w", err)
	}
	return file, nil
}

// Prune removes objects last written more than maxAge ago and returns their keys.
func (a *Archive) Prune(maxAge time.Duration) ([]string, error) {
	cutoff := a.now().Add(-maxAge)
	removed := make([]string, 0)
	err := filepath.WalkDir(a.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		rel, err := filepath.Rel(a.baseDir, path)
		if err != nil {
			rel = path
		}
		removed = append(removed, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prune export archive: %w", err)
	}
	return removed, nil
}

func (a *Archive) resolve(key string) (string, error) {
	if key == "" || filepath.IsAbs(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(a.baseDir, clean), nil
}
