package documents

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/storage"
)

func TestSaveAndOpen(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	path, size, err := fs.Save(strings.NewReader("lease agreement"), "lease.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len("lease agreement")), size)
	assert.Equal(t, ".pdf", filepath.Ext(path))

	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "lease agreement", string(data))
}

func TestOpenMissingFile(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Open(filepath.Join(t.TempDir(), "gone.pdf"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// failingReader errors midway through a copy.
type failingReader struct{ reads int }

func (f *failingReader) Read(p []byte) (int, error) {
	f.reads++
	if f.reads > 1 {
		return 0, errors.New("disk unplugged")
	}
	copy(p, "partial")
	return len("partial"), nil
}

func TestSaveCleansUpPartialWrite(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileStore(root)
	require.NoError(t, err)

	_, _, err = fs.Save(&failingReader{}, "doc.pdf")
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file must be removed")
}

func TestRemove(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	path, _, err := fs.Save(strings.NewReader("x"), "a.txt")
	require.NoError(t, err)

	require.NoError(t, fs.Remove(path))
	require.NoError(t, fs.Remove(path), "double remove is fine")
}

// recordingRepo counts expiry calls.
type recordingRepo struct {
	storage.DocumentRepository
	expired int64
	err     error
}

func (r *recordingRepo) ExpireDocuments(ctx context.Context, now time.Time) (int64, error) {
	return r.expired, r.err
}

func TestExpiryJobRun(t *testing.T) {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	job := NewExpiryJob(&recordingRepo{expired: 2}, logger, metrics)
	job.Run()

	job = NewExpiryJob(&recordingRepo{err: errors.New("db down")}, logger, metrics)
	job.Run() // must not panic
}
