// Package uploader implements the Uploader (spec §4.5): it drains the
// upload-file queue, ships each closed CSV window to the configured
// object-store bucket, and enforces a consecutive/cumulative error
// budget before exiting fatally.
package uploader

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ObjectStore uploads local files to an S3-compatible bucket using the
// default AWS credential chain (spec §4.5: "using default credentials").
type S3ObjectStore struct {
	client *s3.Client
}

// NewS3ObjectStore resolves the default AWS config for region and builds
// the backing client.
func NewS3ObjectStore(ctx context.Context, region string) (*S3ObjectStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("uploader: load AWS config: %w", err)
	}

	return &S3ObjectStore{client: s3.NewFromConfig(cfg)}, nil
}

// Upload implements ports.ObjectStore.
func (s *S3ObjectStore) Upload(ctx context.Context, bucket, objectKey, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("uploader: open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(objectKey),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("uploader: put object %q: %w", objectKey, err)
	}
	return nil
}
