// Package storage stores photos and knowledge base files in an
// S3-compatible bucket. Keys are bucket-prefixed paths: a random name
// plus a timestamp, no dedup and no reference counting.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Key prefixes standing in for the two original buckets.
const (
	PrefixInspectionPhotos = "inspection-photos"
	PrefixKnowledgeBase    = "knowledge-base"
)

type Storage struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

func New() (*Storage, error) {
	endpoint := os.Getenv("AWS_ENDPOINT_URL_S3")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	bucket := os.Getenv("BUCKET_NAME")

	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("missing S3 configuration")
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &Storage{client: client, bucket: bucket, endpoint: endpoint}, nil
}

// Upload stores a file under prefix and returns its key and public URL.
func (s *Storage) Upload(ctx context.Context, prefix string, file io.Reader, contentType, ext string) (key, url string, err error) {
	key = fmt.Sprintf("%s/%d-%s%s", prefix, time.Now().UnixMilli(), uuid.New().String(), ext)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", err
	}

	return key, s.PublicURL(key), nil
}

// PublicURL returns the public URL for a stored key.
func (s *Storage) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
}

// Download fetches an object's contents.
func (s *Storage) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete removes a file from storage.
func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
