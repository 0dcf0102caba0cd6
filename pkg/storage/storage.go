// Package storage defines the durable object store used for subscriber files.
package storage

import (
	"context"
	"io"
	"time"
)

// Object describes a stored blob.
type Object struct {
	Key  string
	URL  string
	Size int64
}

// ObjectStore is implemented by the S3-compatible bucket client and by Memory.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}
