package s3client

import (
	"context"
	"testing"
)

// TestClient creates an S3 client backed by gofakes3 for testing.
// The test server is automatically cleaned up when the test completes.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()

	c, stop, err := NewInMemory(context.Background(), bucketName)
	if err != nil {
		t.Fatalf("failed to start fake S3: %v", err)
	}
	t.Cleanup(stop)
	return c
}
