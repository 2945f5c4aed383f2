package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vidupe/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(path string, gen uint64) *types.FingerprintEntry {
	var digest types.ContentFingerprint
	copy(digest[:], path) // deterministic, distinct per path
	return &types.FingerprintEntry{
		Record: types.FileRecord{
			Path:    path,
			Size:    int64(len(path)),
			ModTime: time.Unix(1700000000, 0),
		},
		Content:    digest,
		Generation: gen,
	}
}

func TestPutBatchAndGet(t *testing.T) {
	s := openTestStore(t)

	entries := []*types.FingerprintEntry{
		testEntry("/media/a.mp4", 1),
		testEntry("/media/b.mp4", 1),
	}
	if err := s.PutBatch(entries); err != nil {
		t.Fatalf("PutBatch() failed: %v", err)
	}

	got, found, err := s.Get("/media/a.mp4")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !found {
		t.Fatal("Get() found=false, want true")
	}
	if got.Record.Path != "/media/a.mp4" || got.Record.Size != int64(len("/media/a.mp4")) {
		t.Errorf("Get() record = %+v", got.Record)
	}
	if got.Content != entries[0].Content {
		t.Errorf("Get() digest mismatch")
	}
	if got.Generation != 1 {
		t.Errorf("Get() generation = %d, want 1", got.Generation)
	}

	_, found, err = s.Get("/media/missing.mp4")
	if err != nil {
		t.Fatalf("Get() missing failed: %v", err)
	}
	if found {
		t.Error("Get() missing found=true, want false")
	}
}

func TestPutBatchUpsertsSamePath(t *testing.T) {
	s := openTestStore(t)

	first := testEntry("/media/a.mp4", 1)
	second := testEntry("/media/a.mp4", 2)
	second.Record.Size = 999

	if err := s.PutBatch([]*types.FingerprintEntry{first}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutBatch([]*types.FingerprintEntry{second}); err != nil {
		t.Fatal(err)
	}

	n, err := s.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("Len() = %d, want 1 (no two entries per path)", n)
	}

	got, _, _ := s.Get("/media/a.mp4")
	if got.Record.Size != 999 || got.Generation != 2 {
		t.Errorf("upsert did not replace entry: %+v", got)
	}
}

func TestPerceptualFingerprintRoundTrip(t *testing.T) {
	s := openTestStore(t)

	entry := testEntry("/media/v.mp4", 1)
	entry.Frames = types.PerceptualFingerprint{
		bytes.Repeat([]byte{7}, types.FrameDigestSize),
		bytes.Repeat([]byte{9}, types.FrameDigestSize),
	}
	if err := s.PutBatch([]*types.FingerprintEntry{entry}); err != nil {
		t.Fatal(err)
	}

	got, _, err := s.Get("/media/v.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Frames) != 2 {
		t.Fatalf("Frames len = %d, want 2", len(got.Frames))
	}
	if !bytes.Equal(got.Frames[1], entry.Frames[1]) {
		t.Error("frame digest corrupted in round trip")
	}
}

func TestForEachVisitsAll(t *testing.T) {
	s := openTestStore(t)

	paths := []string{"/a", "/b", "/c"}
	for _, p := range paths {
		if err := s.PutBatch([]*types.FingerprintEntry{testEntry(p, 1)}); err != nil {
			t.Fatal(err)
		}
	}

	var visited []string
	err := s.ForEach(func(e *types.FingerprintEntry) error {
		visited = append(visited, e.Record.Path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(visited) != len(paths) {
		t.Fatalf("ForEach visited %d entries, want %d", len(visited), len(paths))
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)

	for _, p := range []string{"/a", "/b", "/c"} {
		if err := s.PutBatch([]*types.FingerprintEntry{testEntry(p, 1)}); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.Prune([]string{"/a", "/c", "/not-there"})
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Prune() removed %d, want 2", removed)
	}

	if _, found, _ := s.Get("/b"); !found {
		t.Error("Prune() removed an entry it should have kept")
	}
	if _, found, _ := s.Get("/a"); found {
		t.Error("Prune() kept an entry it should have removed")
	}
}

func TestDeletePath(t *testing.T) {
	s := openTestStore(t)

	if err := s.PutBatch([]*types.FingerprintEntry{testEntry("/a", 1)}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePath("/a"); err != nil {
		t.Fatalf("DeletePath() failed: %v", err)
	}
	if _, found, _ := s.Get("/a"); found {
		t.Error("entry still present after DeletePath()")
	}
	if err := s.DeletePath("/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeletePath() on missing path = %v, want ErrNotFound", err)
	}
}

func TestRenamePath(t *testing.T) {
	s := openTestStore(t)

	entry := testEntry("/old.mp4", 3)
	if err := s.PutBatch([]*types.FingerprintEntry{entry}); err != nil {
		t.Fatal(err)
	}

	if err := s.RenamePath("/old.mp4", "/new.mp4"); err != nil {
		t.Fatalf("RenamePath() failed: %v", err)
	}

	if _, found, _ := s.Get("/old.mp4"); found {
		t.Error("old key still present after rename")
	}
	got, found, _ := s.Get("/new.mp4")
	if !found {
		t.Fatal("new key missing after rename")
	}
	if got.Record.Path != "/new.mp4" {
		t.Errorf("embedded record path = %q, want /new.mp4", got.Record.Path)
	}
	if got.Content != entry.Content || got.Generation != 3 {
		t.Error("rename lost fingerprint data")
	}

	if err := s.RenamePath("/old.mp4", "/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RenamePath() on missing path = %v, want ErrNotFound", err)
	}
}

func TestGenerationMonotonic(t *testing.T) {
	s := openTestStore(t)

	gen, err := s.Generation()
	if err != nil || gen != 0 {
		t.Fatalf("Generation() = %d, %v, want 0, nil", gen, err)
	}

	for want := uint64(1); want <= 3; want++ {
		got, err := s.NextGeneration()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("NextGeneration() = %d, want %d", got, want)
		}
	}
}

func TestOpenResetDiscardsEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutBatch([]*types.FingerprintEntry{testEntry("/a", 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.NextGeneration(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	if n, _ := s.Len(); n != 0 {
		t.Errorf("Len() after reset = %d, want 0", n)
	}
	if gen, _ := s.Generation(); gen != 0 {
		t.Errorf("Generation() after reset = %d, want 0", gen)
	}
}

func TestWriterFlushBoundaries(t *testing.T) {
	s := openTestStore(t)
	w := s.NewWriter(2)

	// Three entries with batch size two: one full batch flushes on Add,
	// the odd entry only on the final Flush.
	for _, p := range []string{"/a", "/b", "/c"} {
		if err := w.Add(testEntry(p, 1)); err != nil {
			t.Fatalf("Add(%s) failed: %v", p, err)
		}
	}

	if w.Written() != 2 {
		t.Errorf("Written() before final flush = %d, want 2", w.Written())
	}
	if n, _ := s.Len(); n != 2 {
		t.Errorf("Len() before final flush = %d, want 2", n)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
	if w.Written() != 3 {
		t.Errorf("Written() = %d, want 3", w.Written())
	}
	if n, _ := s.Len(); n != 3 {
		t.Errorf("Len() after flush = %d, want 3", n)
	}

	// Idempotent on empty buffer.
	if err := w.Flush(); err != nil {
		t.Fatalf("empty Flush() failed: %v", err)
	}
}
