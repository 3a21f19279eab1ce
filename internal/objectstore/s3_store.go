// Package objectstore wraps the S3 operations used for queue-message
// overflow and overflowed compilation results.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API is the subset of the S3 client Store depends on.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store performs JSON put/get against a single S3 bucket.
type Store struct {
	client API
	bucket string
}

// NewStore builds a Store backed by the provided S3 client and bucket.
func NewStore(client API, bucket string) *Store {
	if client == nil {
		panic("objectstore: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("objectstore: bucket cannot be empty")
	}
	return &Store{client: client, bucket: bucket}
}

// PutJSON uploads data at key with content-type application/json and the
// supplied string metadata.
func (s *Store) PutJSON(ctx context.Context, key string, data []byte, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// GetJSON fetches the object at key and JSON-decodes it into out.
func (s *Store) GetJSON(ctx context.Context, key string, out interface{}) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("objectstore: get %s/%s: %w", s.bucket, key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("objectstore: read %s/%s: %w", s.bucket, key, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("objectstore: decode %s/%s: %w", s.bucket, key, err)
	}
	return nil
}
