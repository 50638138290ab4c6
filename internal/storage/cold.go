package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/audit-ledger/backend/internal/config"
	"github.com/audit-ledger/backend/internal/retention"
)

// S3ColdStore writes expired entries to the 7-year archive bucket.
// Writes are full-object overwrites under a deterministic key, so
// at-least-once redelivery of the same notification is harmless.
type S3ColdStore struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

func NewS3ColdStore(cfg *config.Config, log *zap.Logger) *S3ColdStore {
	opts := s3.Options{
		Region: cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.S3KeyID, cfg.S3Secret, "",
		),
		UsePathStyle: cfg.S3UsePathStyle,
	}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", cfg.S3Endpoint))
	}

	return &S3ColdStore{
		client: s3.New(opts),
		bucket: cfg.S3Bucket,
		log:    log,
	}
}

// Put writes one archived entry. The storage class targets rare,
// latency-tolerant retrieval; object-lock compliance retention keeps
// the copy immutable for the full cold horizon.
func (s *S3ColdStore) Put(ctx context.Context, key string, body []byte) error {
	retainUntil := retention.ColdRetainUntil(time.Now().UTC())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:                    aws.String(s.bucket),
		Key:                       aws.String(key),
		Body:                      bytes.NewReader(body),
		ContentType:               aws.String("application/json"),
		StorageClass:              types.StorageClassGlacierIr,
		ObjectLockMode:            types.ObjectLockModeCompliance,
		ObjectLockRetainUntilDate: aws.Time(retainUntil),
	})
	if err != nil {
		return fmt.Errorf("put cold object %q: %w", key, err)
	}
	return nil
}
