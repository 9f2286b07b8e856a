// Package s3 provides the AWS S3 object store used by remote lockers, plus a
// streaming writer for publishing encrypted artifacts to a bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hengadev/locker"
	"go.uber.org/zap"
)

// ArtifactContentType is set on every object written by Store.
const ArtifactContentType = "application/octet-stream"

// s3Client interface for AWS S3 operations (allows mocking)
type s3Client interface {
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1").
	// If empty, uses AWS_REGION environment variable or AWS config file.
	Region string

	// AWSConfig is an optional pre-configured AWS config.
	// If provided, Region is ignored.
	AWSConfig *aws.Config

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Store implements locker.ObjectStore on AWS S3.
type Store struct {
	client s3Client
	logger *zap.Logger
}

var _ locker.ObjectStore = (*Store)(nil)

// New creates an S3 store.
//
// Usage:
//
//	store, err := s3.New(ctx, s3.Config{Region: "us-east-1"})
//	l, err := locker.NewRemoteLocker(ctx, store, decrypter, locker.RemoteConfig{...})
func New(ctx context.Context, cfg Config) (*Store, error) {
	var awsConfig aws.Config
	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		var err error
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", locker.ErrInvalidArgument, err)
		}
	}
	return newStore(awss3.NewFromConfig(awsConfig), cfg.Logger), nil
}

func newStore(client s3Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, logger: logger}
}

// BucketExists reports whether bucket exists and the credentials can reach it.
func (s *Store) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head bucket %s: %w", bucket, err)
}

// ObjectExists reports whether key exists in bucket. A missing object is not an error.
func (s *Store) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head object s3://%s/%s: %w", bucket, key, err)
}

// Download copies the object content to w.
func (s *Store) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return fmt.Errorf("read object s3://%s/%s: %w", bucket, key, err)
	}
	s.logger.Debug("downloaded object", zap.String("bucket", bucket), zap.String("key", key), zap.Int64("bytes", n))
	return nil
}

// Upload stores the content of r under key.
func (s *Store) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(ArtifactContentType),
	})
	if err != nil {
		return fmt.Errorf("put object s3://%s/%s: %w", bucket, key, err)
	}
	s.logger.Info("uploaded object", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}

// NewWriter returns a writer streaming into key. The object exists once Close
// returns nil; Close reports any upload failure.
func (s *Store) NewWriter(ctx context.Context, bucket, key string) io.WriteCloser {
	reader, writer := io.Pipe()
	uploadCtx, cancel := context.WithCancel(ctx)

	w := &objectWriter{
		writer: writer,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		defer func() {
			if r := recover(); r != nil {
				w.err = fmt.Errorf("panic during upload: %v", r)
				reader.CloseWithError(w.err)
			}
		}()
		if err := s.Upload(uploadCtx, bucket, key, reader); err != nil {
			w.err = err
			// unblock pending writes
			reader.CloseWithError(err)
			return
		}
		reader.Close()
	}()

	return w
}

// objectWriter feeds a PutObject running in its own goroutine.
type objectWriter struct {
	writer *io.PipeWriter
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	closeOnce sync.Once
	closeErr  error
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

// Close signals EOF to the upload and waits for it to finish.
func (w *objectWriter) Close() error {
	w.closeOnce.Do(func() {
		w.writer.Close()
		<-w.done
		w.cancel()
		w.closeErr = w.err
	})
	return w.closeErr
}

// isNotFound reports whether err is S3's answer for a missing bucket or key.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
