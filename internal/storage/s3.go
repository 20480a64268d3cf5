package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// s3Attempts is the number of tries per operation.
const s3Attempts = 4

// S3Config configures S3Storage.
type S3Config struct {
	Region string

	// Endpoint is a custom endpoint (MinIO, LocalStack). It implies
	// path-style addressing.
	Endpoint string

	// Prefix is prepended to every key, so several deployments can share
	// a bucket.
	Prefix string
}

// S3Storage keeps objects in an S3 bucket.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	prefix   string
	attempts int
	backoff  time.Duration
}

// NewS3Storage creates an S3 storage using the default AWS credential chain.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	s := NewS3StorageWithClient(client, bucket)
	s.prefix = normalizePrefix(cfg.Prefix)
	return s, nil
}

// NewS3StorageWithClient wraps an already configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string) *S3Storage {
	return &S3Storage{
		client:   client,
		bucket:   bucket,
		attempts: s3Attempts,
		backoff:  100 * time.Millisecond,
	}
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func (s *S3Storage) objectKey(key string) *string {
	return aws.String(s.prefix + key)
}

// Put uploads data to key.
func (s *S3Storage) Put(ctx context.Context, key string, data []byte) error {
	err := s.retry(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           s.objectKey(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String("text/csv"),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrUploadFailed, key, err)
	}
	return nil
}

// Get downloads the object at key.
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.retry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.objectKey(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, ErrObjectNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: get %s: %v", ErrDownloadFailed, key, err)
	}
}

// Delete removes the object at key.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	err := s.retry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.objectKey(key),
		})
		return err
	})
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("%w: delete %s: %v", ErrDeleteFailed, key, err)
	}
	return nil
}

// Exists reports whether an object is stored at key.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	err := s.retry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    s.objectKey(key),
		})
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("head %s: %w", key, err)
	}
}

// List returns the keys under prefix, without the storage prefix, in
// lexical order.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: s.objectKey(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// isNotFound reports whether err is an S3 missing-object error. HeadObject
// reports NotFound, GetObject NoSuchKey.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

// retry runs op up to s.attempts times with doubling backoff. Missing
// objects are reported as ErrObjectNotFound without retrying.
func (s *S3Storage) retry(ctx context.Context, op func() error) error {
	var err error
	wait := s.backoff
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrObjectNotFound) || isNotFound(err) {
			return ErrObjectNotFound
		}
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}
