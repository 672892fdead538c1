package securestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/attestify/keybox-provisioner/interfaces"
)

// FileStore persists records as individual files under a base directory.
// The directory is created 0700 and records are written 0600; credential
// material never gets group or world bits. Writes go through a temp file
// and rename, so a crashed write leaves the previous record intact.
type FileStore struct {
	baseDir string
	log     *slog.Logger
}

// NewFileStore creates a file-backed record store rooted at baseDir,
// creating the directory if needed.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, log: log}, nil
}

func (b *FileStore) WriteRecord(_ context.Context, name string, data []byte) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	path := b.recordPath(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit record: %w", err)
	}

	b.log.Debug("Stored record", slog.String("path", path), slog.Int("size", len(data)))
	return nil
}

func (b *FileStore) ReadRecord(_ context.Context, name string) ([]byte, error) {
	if err := validateRecordName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.recordPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return data, nil
}

func (b *FileStore) DeleteRecord(_ context.Context, name string) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	err := os.Remove(b.recordPath(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (b *FileStore) recordPath(name string) string {
	return filepath.Join(b.baseDir, name)
}
