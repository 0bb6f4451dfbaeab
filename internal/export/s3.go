package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/nhle/mailkeep/internal/config"
)

// S3Mirror uploads downloaded mails to an S3 bucket, keyed by their
// mailbox-relative path. A custom endpoint and path-style addressing
// support S3-compatible stores like MinIO.
type S3Mirror struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// NewS3Mirror builds a mirror from cfg. Static credentials are used when
// an access key is configured; otherwise the default AWS credential chain
// applies.
func NewS3Mirror(ctx context.Context, cfg config.S3Config, log zerolog.Logger) (*S3Mirror, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Mirror{client: client, bucket: cfg.Bucket, log: log}, nil
}

// Put uploads data under key.
func (m *S3Mirror) Put(key string, data []byte) error {
	_, err := m.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	m.log.Debug().Str("bucket", m.bucket).Str("key", key).Msg("mirrored mail")
	return nil
}
