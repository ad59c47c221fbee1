package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Args struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type S3Storage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

func NewS3Storage(args S3Args) (Storage, error) {
	config := &aws.Config{
		Credentials:      credentials.NewStaticCredentials(args.AccessKey, args.SecretKey, ""),
		Region:           aws.String(args.Region),
		DisableSSL:       aws.Bool(!args.UseSSL),
		S3ForcePathStyle: aws.Bool(true),
	}
	if args.Endpoint != "" {
		config.Endpoint = aws.String(args.Endpoint)
	}

	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("error creating s3 session: %w", err)
	}

	slog.Info("creating new s3 storage", "bucket", args.Bucket, "endpoint", args.Endpoint)
	return &S3Storage{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   args.Bucket,
	}, nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (s *S3Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, key)
		}
		slog.Error("error reading s3 object", "bucket", s.bucket, "key", key, "error", err)
		return nil, fmt.Errorf("error reading object %v: %w", key, err)
	}
	return result.Body, nil
}

// Write streams through the multipart uploader, so data does not need to be
// seekable.
func (s *S3Storage) Write(ctx context.Context, key string, data io.Reader) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		slog.Error("error writing s3 object", "bucket", s.bucket, "key", key, "error", err)
		return fmt.Errorf("error writing object %v: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("error deleting s3 object", "bucket", s.bucket, "key", key, "error", err)
		return fmt.Errorf("error deleting object %v: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("error checking if object %v exists: %w", key, err)
	}
	return true, nil
}

func (s *S3Storage) Usage() (UsageStats, error) {
	return UsageStats{}, nil
}

func (s *S3Storage) Location() string {
	return "s3://" + s.bucket
}
