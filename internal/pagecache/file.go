package pagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileStore keeps one file per key under dir. The file's modification time
// is the page's LastWrite.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, FileName(key))
}

// Get reads the page for key. A missing file is ErrMiss.
func (s *FileStore) Get(key string) (Page, error) {
	path := s.path(key)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Page{}, ErrMiss
	}
	if err != nil {
		return Page{}, err
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// removed by a concurrent sweep between Stat and ReadFile
		return Page{}, ErrMiss
	}
	if err != nil {
		return Page{}, err
	}
	return Page{Key: key, Content: string(content), LastWrite: info.ModTime()}, nil
}

// Set overwrites the file for key and stamps it with page.LastWrite.
func (s *FileStore) Set(key string, page Page) error {
	path := s.path(key)
	if err := os.WriteFile(path, []byte(page.Content), 0o644); err != nil {
		return err
	}
	if page.LastWrite.IsZero() {
		return nil
	}
	return os.Chtimes(path, page.LastWrite, page.LastWrite)
}

// Erase removes the file for key. Erasing an absent key is not an error.
func (s *FileStore) Erase(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Clear removes every cached page but keeps the directory.
func (s *FileStore) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sweep removes every file last written before expiredBefore. Files that
// disappear while the sweep runs are skipped.
func (s *FileStore) Sweep(expiredBefore time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(expiredBefore) {
			continue
		}
		err = os.Remove(filepath.Join(s.dir, entry.Name()))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
