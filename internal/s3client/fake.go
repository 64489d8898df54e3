package s3client

import (
	"context"
	"fmt"
	"net/http/httptest"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// NewInMemory starts an in-process S3 server backed by memory and returns a
// client for bucketName on it. Used by --no-s3. Call stop to shut the server
// down; objects do not survive it.
func NewInMemory(ctx context.Context, bucketName string) (c *Client, stop func(), err error) {
	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())

	sdkConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local-key", "local-secret", ""),
		),
	)
	if err != nil {
		ts.Close()
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(ts.URL)
		o.UsePathStyle = true // Required for gofakes3
	})

	c = NewFromS3Client(s3Client, bucketName)
	if err := c.CreateBucket(ctx); err != nil {
		ts.Close()
		return nil, nil, err
	}
	return c, ts.Close, nil
}
