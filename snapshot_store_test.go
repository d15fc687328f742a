package pallium

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pallium-ai/pallium/internal/testutil"
)

// storeContract runs the SnapshotStore behavior shared by every backend.
func storeContract(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}

	if err := store.Save(ctx, "daily", []byte("payload-1")); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save(ctx, "weekly", []byte("payload-2")); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := store.Load(ctx, "daily")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !bytes.Equal(data, []byte("payload-1")) {
		t.Errorf("loaded %q, want %q", data, "payload-1")
	}

	// Save replaces existing snapshots.
	if err := store.Save(ctx, "daily", []byte("payload-3")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	data, err = store.Load(ctx, "daily")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("payload-3")) {
		t.Errorf("overwrite not visible, loaded %q", data)
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(names) != 2 || names[0] != "daily" || names[1] != "weekly" {
		t.Errorf("expected [daily weekly], got %v", names)
	}

	if err := store.Delete(ctx, "daily"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "daily"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound after delete, got %v", err)
	}
	// Deleting an unknown name is not an error.
	if err := store.Delete(ctx, "daily"); err != nil {
		t.Errorf("idempotent delete failed: %v", err)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	storeContract(t, store)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, name := range []string{"", "../evil", "../../etc/passwd"} {
		if err := store.Save(ctx, name, []byte("x")); err == nil {
			t.Errorf("expected error for name %q", name)
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	store, err := NewSQLiteStore(DefaultSQLiteStoreConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	storeContract(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(DefaultSQLiteStoreConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "durable", []byte("survives")); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(DefaultSQLiteStoreConfig(path))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reopened.Close() }()
	data, err := reopened.Load(ctx, "durable")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("survives")) {
		t.Errorf("loaded %q after reopen", data)
	}
}

func TestFileStoreDetectorRoundTrip(t *testing.T) {
	cfg := testConfig()
	d := trainedDetector(t, cfg)
	data, err := d.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, "trained", data); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(ctx, "trained")
	if err != nil {
		t.Fatal(err)
	}
	restored, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.Restore(loaded); err != nil {
		t.Fatalf("restore from file store failed: %v", err)
	}

	input := testutil.SparseInput(cfg.InputSize, 16, 1)
	if _, err := restored.Compute(input, false); err != nil {
		t.Fatal(err)
	}
}
