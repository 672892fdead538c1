package securestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/attestify/keybox-provisioner/interfaces"
)

// S3Store keeps records as private objects in an S3 bucket or an
// S3-compatible service such as MinIO.
type S3Store struct {
	client *s3.S3
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Store creates an S3-backed record store. Empty credentials fall back
// to the SDK's default chain; a non-empty endpoint switches to path-style
// addressing for S3-compatible services.
func NewS3Store(bucket, prefix, region, endpoint, accessKey, accessSecret string, log *slog.Logger) (*S3Store, error) {
	config := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		config.Endpoint = aws.String(endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && accessSecret != "" {
		config.Credentials = credentials.NewStaticCredentials(accessKey, accessSecret, "")
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Store{
		client: s3.New(sess),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}, nil
}

func (b *S3Store) WriteRecord(ctx context.Context, name string, data []byte) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	b.log.Debug("Stored record in S3",
		slog.String("bucket", b.bucket),
		slog.String("key", b.objectKey(name)),
		slog.Int("size", len(data)))
	return nil
}

func (b *S3Store) ReadRecord(ctx context.Context, name string) ([]byte, error) {
	if err := validateRecordName(name); err != nil {
		return nil, err
	}

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(name)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read record body: %w", err)
	}
	return data, nil
}

func (b *S3Store) DeleteRecord(ctx context.Context, name string) error {
	if err := validateRecordName(name); err != nil {
		return err
	}

	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(name)),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (b *S3Store) objectKey(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}
