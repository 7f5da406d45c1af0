package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/movingbox/storemigrate/internal/errors"
)

// checksumMetadataKey is the object metadata key holding the hex SHA-256.
const checksumMetadataKey = "sha256"

// S3Config configures an S3-compatible target (AWS S3 or MinIO).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional; custom endpoint such as MinIO
	AccessKeyID     string // optional; falls back to the default credentials chain
	SecretAccessKey string
	PathStyle       bool
	Prefix          string // prepended to every key

	// HTTPClient replaces the SDK transport; tests use it to stub S3.
	HTTPClient *http.Client
}

// S3Target uploads archived files to one bucket.
type S3Target struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Target creates an S3 target from cfg.
func NewS3Target(ctx context.Context, cfg S3Config) (*S3Target, error) {
	if cfg.Bucket == "" {
		return nil, errors.Newf("s3 bucket required").
			Component("archive").
			Category(errors.CategoryConfiguration).
			Build()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
		// plain signed payloads work against every S3-compatible server
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &S3Target{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Name returns the s3:// URL of the bucket and prefix.
func (t *S3Target) Name() string {
	if t.prefix == "" {
		return "s3://" + t.bucket
	}
	return "s3://" + t.bucket + "/" + t.prefix
}

// Key returns the object key used for key.
func (t *S3Target) Key(key string) string {
	if t.prefix == "" {
		return key
	}
	return path.Join(t.prefix, key)
}

// Upload puts body into the bucket.
func (t *S3Target) Upload(ctx context.Context, key string, body io.ReadSeeker, size int64, checksum string) error {
	objectKey := t.Key(key)
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(objectKey),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
		Metadata:      map[string]string{checksumMetadataKey: checksum},
	})
	if err != nil {
		return errors.New(err).
			Component("archive").
			Category(errors.CategoryNetwork).
			Context("operation", "s3_put_object").
			Context("target", t.Name()).
			Context("key", objectKey).
			Build()
	}
	return nil
}
