package adapter

import "context"

// BlobStore is the operator owned object storage sink.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete is best effort and ignores URLs the store does not own.
	Delete(ctx context.Context, url string) error
	Owns(url string) bool
}

// BlobStoreSource yields the store for the current settings, or nil when
// object storage is disabled.
type BlobStoreSource interface {
	Current(ctx context.Context) (BlobStore, error)
}

// ImageRelocator copies provider hosted images into the blob store. The
// result always has the same length and order as urls.
type ImageRelocator interface {
	Relocate(ctx context.Context, prefix string, urls []string) []string
}
