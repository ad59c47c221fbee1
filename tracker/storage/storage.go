package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found in storage")

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Storage holds attachment payloads. Keys are slash separated relative paths.
type Storage interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	Write(ctx context.Context, key string, data io.Reader) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Usage reports capacity of the backing store. Backends without a
	// meaningful limit report zero total bytes.
	Usage() (UsageStats, error)

	Location() string
}
