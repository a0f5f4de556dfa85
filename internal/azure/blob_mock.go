package azure

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MockBlobStorageClient is an in-memory ImageStorage used by tests and by
// local runs without an Azure account.
type MockBlobStorageClient struct {
	Storage map[string][]byte
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMockBlobStorageClient creates a new in-memory image store
func NewMockBlobStorageClient(logger *zap.Logger) *MockBlobStorageClient {
	return &MockBlobStorageClient{
		Storage: make(map[string][]byte),
		logger:  logger,
	}
}

// UploadImage stores a copy of data under blobName
func (c *MockBlobStorageClient) UploadImage(ctx context.Context, blobName string, data []byte, contentType string) (string, error) {
	if blobName == "" {
		return "", fmt.Errorf("blob name is required")
	}

	c.mu.Lock()
	c.Storage[blobName] = bytes.Clone(data)
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug("mock: image archived",
			zap.String("blob_name", blobName),
			zap.String("content_type", contentType),
			zap.Int("size_bytes", len(data)),
		)
	}

	return blobName, nil
}

// DownloadImage returns a copy of the stored image
func (c *MockBlobStorageClient) DownloadImage(ctx context.Context, blobName string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, exists := c.Storage[blobName]
	if !exists {
		return nil, fmt.Errorf("blob not found: %s", blobName)
	}

	return bytes.Clone(data), nil
}

// ListBlobs returns all blob names in storage, sorted
func (c *MockBlobStorageClient) ListBlobs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	blobs := make([]string, 0, len(c.Storage))
	for name := range c.Storage {
		blobs = append(blobs, name)
	}
	sort.Strings(blobs)

	return blobs
}
