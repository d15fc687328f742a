// Package testutil provides shared test helpers for internal Pallium packages.
package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// TempSnapshotPath returns a temporary directory and snapshot file path
// suitable for tests. The directory is automatically cleaned up when the
// test completes.
func TempSnapshotPath(t *testing.T) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "test.snap")
	return dir, path
}

// MustNotExist asserts that the file does not exist.
func MustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected %s to not exist", path)
	}
}

// SparseInput builds an input vector of the given width with count active
// bits chosen deterministically from the seed.
func SparseInput(width, count int, seed int64) []byte {
	input := make([]byte, width)
	rng := rand.New(rand.NewSource(seed))
	for _, idx := range rng.Perm(width)[:count] {
		input[idx] = 1
	}
	return input
}
