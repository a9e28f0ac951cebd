package devlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marba/synapse/internal/utils"
)

// S3Config configures an S3-compatible bucket such as Cloudflare R2.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads rotated logs to a bucket under a dated, content-addressed key.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("archive credentials are required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newS3Archiver(client, cfg.Bucket, cfg.Prefix, time.Now), nil
}

func newS3Archiver(client objectPutter, bucket, prefix string, now func() time.Time) *S3Archiver {
	if prefix == "" {
		prefix = "browser-logs"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, now: now}
}

// Archive uploads data; identical contents map to the same key.
func (a *S3Archiver) Archive(ctx context.Context, name string, data []byte) error {
	key := a.objectKey(name, data)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (a *S3Archiver) objectKey(name string, data []byte) string {
	return path.Join(a.prefix, a.now().UTC().Format("2006/01/02"), utils.ShortDigest(data, 16)+"-"+name)
}
