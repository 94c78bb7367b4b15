package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores the ledger as a JSON file.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger file path is empty")
	}
	return &FileBackend{Path: path}, nil
}

// Read implements Backend.
func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, &BackendError{Op: "read", Backend: b.Describe(), Err: err}
	}
	return data, nil
}

// Write replaces the file atomically via a temp file in the same directory.
func (b *FileBackend) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.Path)+".*")
	if err != nil {
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		_ = os.Remove(tmpName)
		return &BackendError{Op: "write", Backend: b.Describe(), Err: err}
	}
	return nil
}

// Describe implements Backend.
func (b *FileBackend) Describe() string {
	return "file:" + b.Path
}
