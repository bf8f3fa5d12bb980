package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrEmpty is returned by ReadAll before the first successful Write.
var ErrEmpty = errors.New("feed cache is empty")

// File is a disk-backed holder for the last rendered feed.
//
// Writes go to a temp file in the same directory which is then renamed over
// the target, so a concurrent reader sees either the previous complete
// document or the new one.
type File struct {
	path string
}

// NewFile creates a cache backed by path. The directory is created on the
// first Write.
func NewFile(path string) *File {
	if path == "" {
		// Callers should set this explicitly; fall back to a relative
		// path so development runs work without /tmp.
		path = "./var/notioncal.ics"
	}
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Exists reports whether a document has been written.
func (f *File) Exists() bool {
	info, err := os.Stat(f.path)
	return err == nil && info.Mode().IsRegular()
}

// ReadAll returns the cached document.
func (f *File) ReadAll() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrEmpty
		}
		return "", fmt.Errorf("read feed cache: %w", err)
	}
	return string(data), nil
}

// Write fully replaces the cached document.
func (f *File) Write(doc string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".notioncal-feed-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp feed: %w", err)
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error; after a successful rename
	// this is a no-op.
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp feed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp feed: %w", err)
	}
	// Feeds are served publicly anyway; keep them world readable.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp feed: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace feed: %w", err)
	}
	return nil
}
