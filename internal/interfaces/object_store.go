package interfaces

import "context"

// ObjectStore is the blob storage used for raw disclosure documents.
// Implementations exist for the local filesystem and for S3-compatible
// services.
type ObjectStore interface {
	// Exists reports whether an object is already stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Put stores data under key and returns the stored location.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get retrieves the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
}
