package storage

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/iconidentify/wadh/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestFolder_Prepare(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "addons")
	f := NewFolder(dir, testLogger())

	if removed, err := f.Prepare(true); err != nil || removed != 0 {
		t.Fatalf("Prepare() on missing folder = %d, %v", removed, err)
	}

	for _, name := range []string{"a-1.zip", "B-2.ZIP", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.zip"), 0o755); err != nil {
		t.Fatal(err)
	}

	if removed, err := f.Prepare(false); err != nil || removed != 0 {
		t.Fatalf("Prepare(false) = %d, %v", removed, err)
	}

	removed, err := f.Prepare(true)
	if err != nil {
		t.Fatalf("Prepare(true) error = %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("remaining entries = %d, want notes.txt and sub.zip", len(entries))
	}
}

func TestFolder_FreeSpace(t *testing.T) {
	f := NewFolder(t.TempDir(), testLogger())

	free, err := f.FreeSpace()
	if err != nil {
		t.Fatalf("FreeSpace() error = %v", err)
	}
	if free == 0 {
		t.Error("FreeSpace() = 0")
	}

	if err := f.EnsureFreeSpace(0); err != nil {
		t.Errorf("EnsureFreeSpace(0) error = %v", err)
	}
	if err := f.EnsureFreeSpace(math.MaxUint64); !errors.Is(err, domain.ErrInsufficientSpace) {
		t.Errorf("EnsureFreeSpace(max) error = %v", err)
	}

	missing := NewFolder(filepath.Join(t.TempDir(), "missing"), testLogger())
	if _, err := missing.FreeSpace(); err == nil {
		t.Error("FreeSpace() on missing folder should fail")
	}
}

func TestChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.zip")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	sum, size, err := Checksum(path)
	if err != nil {
		t.Fatalf("Checksum() error = %v", err)
	}
	// BLAKE2b-256 of the empty input.
	const want = "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"
	if sum != want || size != 0 {
		t.Errorf("Checksum() = %s, %d", sum, size)
	}

	if _, _, err := Checksum(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Checksum() on missing file should fail")
	}
}
