package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// GCSStore uploads backups to a Google Cloud Storage bucket. Authentication
// uses Application Default Credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCSStore initializes the GCS client and verifies the bucket is
// reachable, so misconfiguration fails at startup rather than at the first
// job completion.
func NewGCSStore(ctx context.Context, bucket string, logger *zap.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close gcs client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}
	return &GCSStore{client: client, bucket: bucket, logger: logger}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Save uploads the batch as a JSONL object and returns its gs:// URI.
func (s *GCSStore) Save(ctx context.Context, jobID string, posts []archiver.Post) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job id is required")
	}
	payload, err := encodeJSONL(posts)
	if err != nil {
		return "", err
	}
	object := fmt.Sprintf("backups/%s.jsonl", jobID)
	wc := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if _, err := wc.Write(payload); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			s.logger.Warn("close gcs writer after write failure", zap.Error(closeErr))
		}
		return "", fmt.Errorf("write gcs object %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("finalize gcs object %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
