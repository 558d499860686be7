package media

import (
	"context"
	"io"
)

// Asset describes a stored attachment blob.
type Asset struct {
	Name      string `json:"name"`
	Mime      string `json:"mime,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
}

// IngestInput carries the data needed to store a new attachment.
type IngestInput struct {
	// Reader provides the raw bytes; caller is responsible for closing.
	Reader       io.Reader
	OriginalName string
	Mime         string
	// MaxBytes overrides the service limit when positive.
	MaxBytes int64
}

// StorageProvider abstracts blob storage operations.
type StorageProvider interface {
	Put(ctx context.Context, key string, reader io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat returns the stored size of key.
	Stat(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}
