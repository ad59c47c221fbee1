package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

var ErrInvalidKey = errors.New("storage key escapes storage root")

// SharedDiskStorage keeps attachments under a directory that may be a network
// mount shared by several tracker replicas.
type SharedDiskStorage struct {
	root string
}

func NewSharedDisk(root string) Storage {
	slog.Info("attachments stored on shared disk", "root", root)
	return &SharedDiskStorage{root: root}
}

func (s *SharedDiskStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *SharedDiskStorage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, key)
	}
	if err != nil {
		slog.Error("unable to open attachment", "key", key, "error", err)
		return nil, fmt.Errorf("unable to open %v: %w", key, err)
	}
	return file, nil
}

// Write streams into a temp file next to the destination and renames it in
// place, so readers never observe a partially written attachment.
func (s *SharedDiskStorage) Write(ctx context.Context, key string, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0777); err != nil {
		slog.Error("unable to create attachment dir", "dir", dir, "error", err)
		return fmt.Errorf("unable to create directory for %v: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		slog.Error("unable to create temp file", "dir", dir, "error", err)
		return fmt.Errorf("unable to stage %v: %w", key, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		slog.Error("attachment write interrupted", "key", key, "error", err)
		return fmt.Errorf("unable to write %v: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to flush %v: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		slog.Error("unable to move attachment into place", "key", key, "error", err)
		return fmt.Errorf("unable to commit %v: %w", key, err)
	}
	return nil
}

func (s *SharedDiskStorage) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(path); err != nil {
		slog.Error("unable to remove attachment", "key", key, "error", err)
		return fmt.Errorf("unable to delete %v: %w", key, err)
	}

	// Prune directories left empty, stopping at the root. os.Remove refuses
	// non-empty directories so this never touches sibling submissions.
	for dir := filepath.Dir(path); dir != s.root && strings.HasPrefix(dir, s.root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

func (s *SharedDiskStorage) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}

	switch _, err := os.Stat(path); {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		slog.Error("unable to stat attachment", "key", key, "error", err)
		return false, fmt.Errorf("unable to check %v: %w", key, err)
	}
}

func (s *SharedDiskStorage) Usage() (UsageStats, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(s.root, &fs); err != nil {
		slog.Error("statfs failed on attachment root", "root", s.root, "error", err)
		return UsageStats{}, fmt.Errorf("unable to read disk usage: %w", err)
	}

	blockSize := uint64(fs.Bsize)
	return UsageStats{
		TotalBytes: fs.Blocks * blockSize,
		FreeBytes:  fs.Bavail * blockSize,
	}, nil
}

func (s *SharedDiskStorage) Location() string {
	return s.root
}
