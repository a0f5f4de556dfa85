package azure

import "context"

// ImageStorage defines the blob operations used to archive prescription images.
// The in-memory MockBlobStorageClient satisfies it for tests and local runs.
type ImageStorage interface {
	UploadImage(ctx context.Context, blobName string, data []byte, contentType string) (string, error)
	DownloadImage(ctx context.Context, blobName string) ([]byte, error)
}

var (
	_ ImageStorage = (*BlobStorageClient)(nil)
	_ ImageStorage = (*MockBlobStorageClient)(nil)
)
