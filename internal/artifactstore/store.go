// Package artifactstore persists finished audio artifacts in S3 or an S3-compatible store
// and mints presigned retrieval URLs for them.
package artifactstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/book-expert/podcast-service/internal/core"
)

const contentTypeMPEG = "audio/mpeg"

var _ core.ArtifactStorage = (*Store)(nil)

// Store implements core.ArtifactStorage on S3.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	endpoint  string
	pathStyle bool
}

// New creates a Store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		pathStyle: cfg.ForcePathStyle,
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}

	return awsCfg, nil
}

// Put uploads data under key as audio/mpeg and returns the object's public locator.
func (s *Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeMPEG),
	})
	if err != nil {
		return "", s.wrapError("put", key, err)
	}

	return s.Locator(key), nil
}

// Sign returns a presigned GET URL for key valid for ttl.
func (s *Store) Sign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", s.wrapError("presign", key, err)
	}

	return request.URL, nil
}

// Locator renders the unsigned URL of key.
func (s *Store) Locator(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()

	if s.endpoint == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, escaped)
	}

	if s.pathStyle {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped)
	}

	endpoint, err := url.Parse(s.endpoint)
	if err != nil || endpoint.Host == "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, escaped)
	}

	return fmt.Sprintf("%s://%s.%s/%s", endpoint.Scheme, s.bucket, endpoint.Host, escaped)
}
