package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/spec-kit/ticket-workflow/internal/config"
)

// putObject is a seam for tests.
var putObject = func(ctx context.Context, client *s3.Client, in *s3.PutObjectInput) error {
	_, err := client.PutObject(ctx, in)
	return err
}

// S3 stores objects in an S3-compatible bucket (AWS or MinIO).
type S3 struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// NewS3 builds a client from static credentials when given, otherwise from the
// default AWS credential chain.
func NewS3(ctx context.Context, cfg config.StorageConfig) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{client: client, bucket: cfg.Bucket, publicBase: publicBase(cfg)}, nil
}

func publicBase(cfg config.StorageConfig) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

func (s *S3) Upload(ctx context.Context, objectPath, contentType string, body []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return putObject(ctx, s.client, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectPath),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
}

func (s *S3) PublicURL(objectPath string) string {
	return s.publicBase + "/" + objectPath
}
