package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"image-registry/config"
	"image-registry/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/rs/zerolog/log"
)

// ErrIncompleteS3Config is returned when the S3 configuration is incomplete
var ErrIncompleteS3Config = errors.New("incomplete S3 configuration")

// S3Store implements the store interface using an s3-backed bucket
type S3Store struct {
	S3Client *s3.Client
	Timeout  time.Duration
	Bucket   string
}

// New creates a new s3-based store
func New() (*S3Store, error) {
	// check for required S3 configuration
	if strings.TrimSpace(config.Cfg.Persistence.S3.AccessKey) == "" ||
		strings.TrimSpace(config.Cfg.Persistence.S3.KeyID) == "" ||
		strings.TrimSpace(config.Cfg.Persistence.S3.Endpoint) == "" ||
		strings.TrimSpace(config.Cfg.Persistence.S3.Region) == "" ||
		strings.TrimSpace(config.Cfg.Persistence.S3.Bucket) == "" ||
		strings.TrimSpace(config.Cfg.Persistence.S3.Timeout) == "" {
		return nil, fmt.Errorf("%w", ErrIncompleteS3Config)
	}
	s3Client := s3.New(s3.Options{
		UsePathStyle: true,
		BaseEndpoint: aws.String(config.Cfg.Persistence.S3.Endpoint),
		Region:       config.Cfg.Persistence.S3.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				config.Cfg.Persistence.S3.KeyID,
				config.Cfg.Persistence.S3.AccessKey,
				"",
			),
		),
	})

	timeoutDuration, err := time.ParseDuration(config.Cfg.Persistence.S3.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 timeout value: %w", err)
	}

	return &S3Store{
		S3Client: s3Client,
		Timeout:  timeoutDuration,
		Bucket:   config.Cfg.Persistence.S3.Bucket,
	}, nil
}

// Write uploads a rendered file to the bucket
func (s *S3Store) Write(ctx context.Context, path string, data []byte) error {
	uploader := manager.NewUploader(s.S3Client)

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	result, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		var mu manager.MultiUploadFailure
		if errors.As(err, &mu) {
			log.Error().
				Msg(fmt.Sprintf("multi-upload failure (upload_id: %s): %v", mu.UploadID(), mu))

			return fmt.Errorf(
				"multi-upload failure (upload_id: %s): %w",
				mu.UploadID(),
				mu,
			)
		}

		log.Error().Err(err).Msg("upload failure")

		return fmt.Errorf("upload failure: %w", err)
	}
	log.Debug().
		Str("location", result.Location).
		Msg("successfully uploaded file to s3 bucket")

	return nil
}

// Read retrieves a rendered file from the bucket
func (s *S3Store) Read(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	object, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFoundErr *types.NotFound
		var noSuchKeyErr *types.NoSuchKey
		if errors.As(err, &notFoundErr) || errors.As(err, &noSuchKeyErr) {
			return nil, store.ErrFileNotFound
		}

		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}

	var content []byte
	if object.Body != nil {
		defer func() {
			if cerr := object.Body.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("failed to close S3 object body")
			}
		}()

		content, err = io.ReadAll(object.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read S3 object body: %w", err)
		}
	}

	return content, nil
}

// Exists checks whether a file is present in the bucket
func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	_, err := s.S3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		var notFoundErr *types.NotFound
		if errors.As(err, &notFoundErr) {
			return false, nil
		}

		return false, fmt.Errorf("failed to head S3 object: %w", err)
	}

	return true, nil
}

// Delete removes a file from the bucket
func (s *S3Store) Delete(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	_, err := s.S3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete S3 object: %w", err)
	}

	return nil
}
