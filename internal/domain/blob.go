package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter writes an object to blob storage under the given key.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// BlobReader retrieves and enumerates archived objects.
type BlobReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Archiver exports terminal operation records to blob storage for retention.
type Archiver interface {
	ArchiveOperations(ctx context.Context) (archived int, err error)
}
