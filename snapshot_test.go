package pallium

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pallium-ai/pallium/internal/testutil"
)

func trainedDetector(t *testing.T, cfg Config) *Detector {
	t.Helper()
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	inputs := [][]byte{
		testutil.SparseInput(cfg.InputSize, 16, 1),
		testutil.SparseInput(cfg.InputSize, 16, 2),
	}
	for cycle := 0; cycle < 20; cycle++ {
		for _, input := range inputs {
			if _, err := d.Compute(input, true); err != nil {
				t.Fatal(err)
			}
		}
	}
	return d
}

func TestSnapshotRoundTrip(t *testing.T) {
	cfg := testConfig()
	d := trainedDetector(t, cfg)
	before := d.Metrics()

	data, err := d.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, snapshotMagic) {
		t.Fatal("snapshot missing magic header")
	}

	restored, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := restored.Restore(data); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	after := restored.Metrics()
	if after.TotalProcessed != before.TotalProcessed {
		t.Errorf("processed count not restored: %d vs %d",
			after.TotalProcessed, before.TotalProcessed)
	}
	if after.HistorySize != before.HistorySize {
		t.Errorf("window fill not restored: %d vs %d",
			after.HistorySize, before.HistorySize)
	}
	if after.RollingMean != before.RollingMean {
		t.Errorf("rolling mean not restored: %v vs %v",
			after.RollingMean, before.RollingMean)
	}
	if restored.tm.SegmentCount() != d.tm.SegmentCount() {
		t.Errorf("segment count not restored: %d vs %d",
			restored.tm.SegmentCount(), d.tm.SegmentCount())
	}

	// The restored detector carries the learned sequence: after a priming
	// step the trained transition is predicted again.
	a := testutil.SparseInput(cfg.InputSize, 16, 1)
	b := testutil.SparseInput(cfg.InputSize, 16, 2)
	if _, err := restored.Compute(a, false); err != nil {
		t.Fatal(err)
	}
	score, err := restored.Compute(b, false)
	if err != nil {
		t.Fatal(err)
	}
	if score > 0.3 {
		t.Errorf("restored detector should predict the trained transition, got score %v", score)
	}
}

func TestSnapshotRestoreDeterministic(t *testing.T) {
	cfg := testConfig()
	d := trainedDetector(t, cfg)
	data, err := d.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	r1, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := r1.Restore(data); err != nil {
		t.Fatal(err)
	}
	if err := r2.Restore(data); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		input := testutil.SparseInput(cfg.InputSize, 16, int64(i%3))
		s1, err := r1.Compute(input, true)
		if err != nil {
			t.Fatal(err)
		}
		s2, err := r2.Compute(input, true)
		if err != nil {
			t.Fatal(err)
		}
		if s1 != s2 {
			t.Fatalf("step %d: restored detectors diverged: %v vs %v", i, s1, s2)
		}
	}
}

func TestSnapshotRestoreRejectsGarbage(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{'P', 'A'}},
		{"wrong magic", []byte("XXXX\x01abcdef")},
		{"bad version", append(append([]byte(nil), snapshotMagic...), 99, 1, 2, 3)},
		{"corrupt payload", append(append([]byte(nil), snapshotMagic...), snapshotVersion, 0xff, 0xff, 0xff)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := d.Restore(tc.data); !errors.Is(err, ErrSnapshotFormat) {
				t.Errorf("expected ErrSnapshotFormat, got %v", err)
			}
		})
	}
}

func TestSnapshotRestoreRejectsTopologyMismatch(t *testing.T) {
	d := trainedDetector(t, testConfig())
	data, err := d.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	other := testConfig()
	other.InputSize = 256
	other.ColumnCount = 256
	mismatched, err := New(other)
	if err != nil {
		t.Fatal(err)
	}
	if err := mismatched.Restore(data); !errors.Is(err, ErrSnapshotFormat) {
		t.Errorf("expected ErrSnapshotFormat for topology mismatch, got %v", err)
	}
}

func TestSnapshotRestoreRejectsTamperedState(t *testing.T) {
	d := trainedDetector(t, testConfig())

	// Rebuild a snapshot document with an out-of-range permanence and make
	// sure validation rejects it before any state is replaced.
	d.sp.permanences[0][0] = 1.0
	good, err := d.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Restore(good); err != nil {
		t.Fatalf("valid snapshot should restore: %v", err)
	}

	d.sp.permanences[0][0] = 2.0
	bad, err := d.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	victim, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := victim.Restore(bad); !errors.Is(err, ErrSnapshotFormat) {
		t.Errorf("expected ErrSnapshotFormat for out-of-range permanence, got %v", err)
	}
}
