package publish

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/df07/go-terrain-marcher/pkg/config"
)

// UploadTimeout bounds a single upload
const UploadTimeout = 30 * time.Second

// S3Sink uploads artifacts to an S3 compatible bucket
type S3Sink struct {
	client    s3iface.S3API
	bucket    string
	publicURL string
}

// NewS3Sink creates a session from the snapshot configuration. Static credentials
// are used when given, otherwise the SDK's default chain applies.
func NewS3Sink(cfg config.SnapshotConfig) (*S3Sink, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.Endpoint != ""),
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return NewS3SinkWithClient(s3.New(sess), cfg.Bucket, cfg.PublicURL), nil
}

// NewS3SinkWithClient wraps an existing client
func NewS3SinkWithClient(client s3iface.S3API, bucket, publicURL string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, publicURL: publicURL}
}

// Publish implements Sink. The returned location is a public URL when one is
// configured and an s3:// URI otherwise.
func (s *S3Sink) Publish(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, UploadTimeout)
	defer cancel()

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	if s.publicURL != "" {
		return s.publicURL + "/" + key, nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
