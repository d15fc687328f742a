package pallium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3StoreConfig configures the S3 snapshot store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // For S3-compatible services (MinIO, etc.)
	// AccessKeyID for authentication. Prefer IAM roles, instance profiles,
	// or environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
	// instead of setting these directly. DO NOT commit credentials to
	// source control.
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // Key prefix for all snapshot objects
	UsePathStyle    bool   // Use path-style addressing

	// MaxRetries is the max attempt count for S3 operations (default: 3).
	MaxRetries int
}

// S3Store implements SnapshotStore on S3 or S3-compatible object storage.
type S3Store struct {
	client  *s3.Client
	config  S3StoreConfig
	retryer *Retryer
}

// NewS3Store creates an S3-backed snapshot store.
func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 snapshot store: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	retryCfg := DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.MaxRetries
	retryCfg.RetryIf = IsRetryable

	return &S3Store{
		client:  s3.NewFromConfig(awsCfg, s3Opts...),
		config:  cfg,
		retryer: NewRetryer(retryCfg),
	}, nil
}

func (s *S3Store) key(name string) string {
	return s.config.Prefix + name + ".snap"
}

func (s *S3Store) Save(ctx context.Context, name string, data []byte) error {
	if name == "" {
		return newSnapshotError("s3", "save", name, errors.New("snapshot name must not be empty"))
	}
	result := s.retryer.Do(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(s.key(name)),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if result.LastErr != nil {
		return newSnapshotError("s3", "save", name, result.LastErr)
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	result := s.retryer.Do(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(s.key(name)),
		})
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if result.LastErr != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(result.LastErr, &nsk) {
			return nil, newSnapshotError("s3", "load", name, ErrSnapshotNotFound)
		}
		return nil, newSnapshotError("s3", "load", name, result.LastErr)
	}
	return data, nil
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.config.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, newSnapshotError("s3", "list", "", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(*obj.Key, s.config.Prefix)
			if !strings.HasSuffix(key, ".snap") {
				continue
			}
			names = append(names, strings.TrimSuffix(key, ".snap"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Store) Delete(ctx context.Context, name string) error {
	result := s.retryer.Do(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(s.key(name)),
		})
		return err
	})
	if result.LastErr != nil {
		return newSnapshotError("s3", "delete", name, result.LastErr)
	}
	return nil
}

func (s *S3Store) Close() error {
	return nil
}
