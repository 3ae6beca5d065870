package adapter

import "context"

// BlobStorage is the hex port for object storage.
type BlobStorage interface {
	// Upload stores data at bucket/path and returns its public URL. Access
	// policy on the path prefix is enforced by the backend.
	Upload(ctx context.Context, bucket, path, contentType string, data []byte) (publicURL string, err error)
	Remove(ctx context.Context, bucket, path string) error
}
