package files

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DiskStore keeps file contents on the local filesystem. Stored names are
// opaque identifiers chosen by the caller; display names never touch the
// disk.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the storage directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("files: create storage dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// SaveResult describes a completed write.
type SaveResult struct {
	Size     int64
	Checksum string
}

// Save streams the reader to disk under storageName, hashing on the fly.
// The write goes to a temp file, is fsynced, then renamed into place so a
// crashed upload never leaves a partial object behind.
func (s *DiskStore) Save(storageName string, reader io.Reader) (*SaveResult, error) {
	fullPath := filepath.Join(s.dir, storageName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("files: create temp file: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("files: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("files: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("files: close: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("files: rename: %w", err)
	}
	return &SaveResult{Size: size, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Open returns the stored content for reading. The caller closes it.
func (s *DiskStore) Open(storageName string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, storageName))
}

// Remove deletes the stored content. A missing object is not an error: the
// sweep may race a manual delete.
func (s *DiskStore) Remove(storageName string) error {
	err := os.Remove(filepath.Join(s.dir, storageName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("files: remove %s: %w", storageName, err)
	}
	return nil
}

// CleanFilename normalizes a client-supplied display name: NFC so the same
// name uploaded from different platforms compares equal, path separators
// stripped, length capped.
func CleanFilename(name string) string {
	name = norm.NFC.String(name)
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}
	return name
}
