package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// S3Config holds S3-compatible bucket settings.
// Embed this in your app config for env parsing with caarlos0/env.
type S3Config struct {
	Bucket    string `env:"ATTACHMENTS_S3_BUCKET"`
	AccessKey string `env:"ATTACHMENTS_S3_ACCESS_KEY"`
	SecretKey string `env:"ATTACHMENTS_S3_SECRET_KEY"`
	Endpoint  string `env:"ATTACHMENTS_S3_ENDPOINT"`
	Region    string `env:"ATTACHMENTS_S3_REGION" envDefault:"us-east-1"`
	Prefix    string `env:"ATTACHMENTS_S3_PREFIX"`
	MaxSize   int64  `env:"ATTACHMENTS_MAX_SIZE" envDefault:"26214400"`
	PathStyle bool   `env:"ATTACHMENTS_S3_PATH_STYLE" envDefault:"false"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// S3 reads attachments from an S3-compatible bucket.
type S3 struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3 creates an S3 source with static credentials.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrInvalidConfig
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}

	client := s3.New(s3.Options{}, func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		}
	})

	return &S3{client: client, cfg: cfg}, nil
}

// Fetch downloads the object at key, relative to the configured prefix.
func (s *S3) Fetch(ctx context.Context, key string) (mailer.Attachment, error) {
	full := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		return mailer.Attachment{}, wrapS3Error(err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > s.cfg.MaxSize {
		return mailer.Attachment{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, key, *out.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, s.cfg.MaxSize+1))
	if err != nil {
		return mailer.Attachment{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > s.cfg.MaxSize {
		return mailer.Attachment{}, fmt.Errorf("%w: %s", ErrTooLarge, key)
	}

	return build(key, data, aws.ToString(out.ContentType)), nil
}

func (s *S3) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.cfg.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + key
}

// wrapS3Error maps SDK errors to the package sentinels. The SDK error is
// formatted with %v so callers match on sentinels only.
func wrapS3Error(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrFetchFailed, err)
}
