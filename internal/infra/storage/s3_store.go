package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"uniai-studio/internal/domain/model"
	"uniai-studio/internal/domain/ports/adapter"
)

var _ adapter.BlobStore = (*S3Store)(nil)

// objectAPI is the slice of the S3 client the store needs.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store writes objects to an S3 compatible endpoint with path style
// addressing. Public URLs have the form <base>/<bucket>/<key>.
type S3Store struct {
	api     objectAPI
	bucket  string
	baseURL string
	timeout time.Duration
}

func NewS3Store(s model.StorageSettings, timeout time.Duration) *S3Store {
	region := s.Region
	if region == "" {
		region = "us-east-1"
	}
	base := endpointURL(s.Endpoint)
	client := s3.New(s3.Options{
		Region:                     region,
		BaseEndpoint:               aws.String(base),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
	return newS3Store(client, s.Bucket, base, timeout)
}

func newS3Store(api objectAPI, bucket, baseURL string, timeout time.Duration) *S3Store {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &S3Store{api: api, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// endpointURL accepts host[:port] or a full URL.
func endpointURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

func (s *S3Store) prefix() string { return s.baseURL + "/" + s.bucket + "/" }

func (s *S3Store) PublicURL(key string) string { return s.prefix() + key }

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

func (s *S3Store) Owns(url string) bool {
	return strings.HasPrefix(url, s.prefix())
}

func (s *S3Store) Delete(ctx context.Context, url string) error {
	if !s.Owns(url) {
		return nil
	}
	key := strings.TrimPrefix(url, s.prefix())
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
