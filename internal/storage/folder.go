// Package storage manages the download folder.
package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/iconidentify/wadh/internal/domain"
)

var errNotDir = errors.New("not a directory")

// Folder is a download destination.
type Folder struct {
	path   string
	logger *slog.Logger
}

// NewFolder creates a Folder for path.
func NewFolder(path string, logger *slog.Logger) *Folder {
	return &Folder{path: path, logger: logger}
}

// Path returns the folder path.
func (f *Folder) Path() string {
	return f.path
}

// Prepare creates the folder and, if clean is set, removes archives left by
// earlier runs. It returns the number of removed files.
func (f *Folder) Prepare(clean bool) (int, error) {
	if err := os.MkdirAll(f.path, 0o755); err != nil {
		return 0, fmt.Errorf("create download folder: %w", err)
	}
	if !clean {
		return 0, nil
	}

	entries, err := os.ReadDir(f.path)
	if err != nil {
		return 0, fmt.Errorf("read download folder: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			continue
		}
		if err := os.Remove(filepath.Join(f.path, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}

	if removed > 0 {
		f.logger.Info("removed archives from download folder", "folder", f.path, "count", removed)
	}
	return removed, nil
}

// FreeSpace returns the bytes available to the current user in the folder.
func (f *Folder) FreeSpace() (uint64, error) {
	free, err := freeDiskSpace(f.path)
	if err != nil {
		return 0, fmt.Errorf("stat download folder: %w", err)
	}
	return free, nil
}

// EnsureFreeSpace fails with domain.ErrInsufficientSpace if fewer than min
// bytes are available. A zero min disables the check.
func (f *Folder) EnsureFreeSpace(min uint64) error {
	if min == 0 {
		return nil
	}
	free, err := f.FreeSpace()
	if err != nil {
		return err
	}
	if free < min {
		return fmt.Errorf("%w: %d bytes free, %d required", domain.ErrInsufficientSpace, free, min)
	}
	return nil
}

// Checksum returns the hex BLAKE2b-256 digest of the file at path and its size.
func Checksum(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, file)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
