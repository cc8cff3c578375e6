// Package documents manages the files behind document records: disk
// storage for uploads and downloads, and the scheduled job that expires
// documents past their expiry date.
package documents

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kidega/apartments/pkg/storage"
)

// FileStore persists uploaded files under a root directory. Files are
// named by uuid so original names never collide or escape the root.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Save streams an upload to disk and returns the stored path and size.
// A failed write removes the partial file before returning.
func (fs *FileStore) Save(src io.Reader, originalName string) (path string, size int64, err error) {
	name := uuid.NewString() + filepath.Ext(originalName)
	path = filepath.Join(fs.root, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create document file: %w", err)
	}

	size, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write document file: %w", err)
	}
	return path, size, nil
}

// Open returns a reader over a stored file. A missing file maps to
// storage.ErrNotFound so handlers can answer 404.
func (fs *FileStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open document file: %w", err)
	}
	return f, nil
}

// Remove deletes a stored file. Removing a file that is already gone is
// not an error.
func (fs *FileStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove document file: %w", err)
	}
	return nil
}
