package pallium

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SnapshotStore persists encoded detector snapshots under caller-chosen
// names. Implementations exist for the local filesystem, SQLite, and S3.
// Stores handle opaque bytes; compression is part of the snapshot encoding
// and encryption, when wanted, is applied by the caller via Encryptor.
type SnapshotStore interface {
	// Save writes a snapshot under the given name, replacing any previous
	// snapshot with that name.
	Save(ctx context.Context, name string, data []byte) error

	// Load reads a snapshot. It returns ErrSnapshotNotFound when the name
	// is unknown.
	Load(ctx context.Context, name string) ([]byte, error)

	// List returns all stored snapshot names in lexical order.
	List(ctx context.Context) ([]string, error)

	// Delete removes a snapshot. Deleting an unknown name is not an error.
	Delete(ctx context.Context, name string) error

	// Close releases any resources.
	Close() error
}

// FileStore implements SnapshotStore on the local filesystem, one file per
// snapshot.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file-based snapshot store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	absDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot directory: %w", err)
	}
	return &FileStore{baseDir: filepath.Clean(absDir)}, nil
}

// safePath validates and returns a path inside the base directory,
// rejecting names that would traverse out of it.
func (f *FileStore) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("snapshot name must not be empty")
	}
	joined := filepath.Join(f.baseDir, filepath.Clean(name)+".snap")
	if !strings.HasPrefix(joined, f.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("snapshot name %q escapes the store directory", name)
	}
	return joined, nil
}

func (f *FileStore) Save(ctx context.Context, name string, data []byte) error {
	path, err := f.safePath(name)
	if err != nil {
		return newSnapshotError("file", "save", name, err)
	}

	// Write-then-rename keeps a crash from leaving a torn snapshot behind.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return newSnapshotError("file", "save", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return newSnapshotError("file", "save", name, err)
	}
	return nil
}

func (f *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	path, err := f.safePath(name)
	if err != nil {
		return nil, newSnapshotError("file", "load", name, err)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, newSnapshotError("file", "load", name, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, newSnapshotError("file", "load", name, err)
	}
	return data, nil
}

func (f *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, newSnapshotError("file", "list", "", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".snap"))
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileStore) Delete(ctx context.Context, name string) error {
	path, err := f.safePath(name)
	if err != nil {
		return newSnapshotError("file", "delete", name, err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return newSnapshotError("file", "delete", name, err)
	}
	return nil
}

func (f *FileStore) Close() error {
	return nil
}
