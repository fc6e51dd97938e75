package uploader

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config describes an S3-compatible object store (AWS S3, Cloudflare R2,
// MinIO). Endpoint is the custom base URL; empty means stock AWS.
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Putter implements ObjectPutter against an S3-compatible bucket.
type S3Putter struct {
	client *s3.Client
	bucket string
}

// NewS3Putter builds the SDK client. Static credentials take precedence over
// the default chain when provided.
func NewS3Putter(ctx context.Context, cfg S3Config) (*S3Putter, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
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

	return &S3Putter{client: client, bucket: cfg.Bucket}, nil
}

func (p *S3Putter) Put(ctx context.Context, task Task, body io.Reader) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(p.bucket),
		Key:          aws.String(task.RemoteKey),
		Body:         body,
		ContentType:  aws.String(task.ContentType),
		CacheControl: aws.String(task.CacheControl),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", task.RemoteKey, err)
	}
	return nil
}
