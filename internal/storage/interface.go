package storage

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by Get and Stat when no object exists under the key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore defines the object storage operations the job lifecycle needs.
// Keys are bucket-relative; the bucket is fixed per store.
type ObjectStore interface {
	// Put writes data under key, replacing any existing object, and returns the key.
	Put(ctx context.Context, key string, data []byte, metadata map[string]string) (string, error)

	// Get returns the bytes stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Stat asks the backend for the object under key and returns its size.
	Stat(ctx context.Context, key string) (int64, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error

	// URLFor returns a time-limited URL granting read access to key. Signing
	// is local and does not check that the object exists.
	URLFor(ctx context.Context, key string, ttl time.Duration) (string, error)

	// EnsureBucket creates the bucket if it doesn't exist.
	EnsureBucket(ctx context.Context) error
}

// ResultKey is the deterministic object key of a job's result artifact.
// Retries of the same job overwrite the same key.
func ResultKey(jobID, artifact string) string {
	return "results/" + jobID + "/" + artifact
}
