package locker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/hengadev/locker/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RemoteConfig configures a RemoteLocker.
type RemoteConfig struct {
	// Bucket is the bucket holding the encrypted artifacts. Required.
	Bucket string

	// BucketPath is the key prefix of the artifacts inside Bucket. Required.
	// Object keys are built as BucketPath + "/" + fileName.
	BucketPath string

	// LocalPath is the directory artifacts are downloaded into. It must exist and
	// be readable and writable.
	LocalPath string

	// SkipBucketValidation stops the constructor from checking that Bucket
	// exists. By default a missing bucket fails construction.
	SkipBucketValidation bool
}

// RemoteLocker resolves secrets to objects in remote storage, downloading each
// one into a local cache directory the first time it is read.
//
// Add does not require the artifact to exist anywhere. Once an artifact has been
// downloaded it is read from the cache until it is removed out-of-band. Call
// Close when the application shuts down to remove the downloaded files.
type RemoteLocker struct {
	*core
	store  ObjectStore
	cfg    RemoteConfig
	flight singleflight.Group

	mu         sync.Mutex
	downloaded map[string]struct{}
}

// NewRemoteLocker validates cfg against the local filesystem and, when requested,
// against store, and returns a locker reading from store.
func NewRemoteLocker(ctx context.Context, store ObjectStore, decrypter DecryptionService, cfg RemoteConfig, opts ...Option) (*RemoteLocker, error) {
	if store == nil {
		return nil, NewRequiredError(paramStore)
	}
	if err := validateDirectory(cfg.LocalPath); err != nil {
		return nil, err
	}
	if err := validateWritableDirectory(cfg.LocalPath); err != nil {
		return nil, err
	}
	if err := requireNotBlank(paramBucketPath, cfg.BucketPath); err != nil {
		return nil, err
	}
	if err := requireNotBlank(paramBucket, cfg.Bucket); err != nil {
		return nil, err
	}
	c, err := newCore(BackendRemote, decrypter, opts)
	if err != nil {
		return nil, err
	}
	if !cfg.SkipBucketValidation {
		exists, err := store.BucketExists(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: check bucket %s: %w", ErrInvalidArgument, cfg.Bucket, err)
		}
		if !exists {
			return nil, NewBucketNotFoundError(cfg.Bucket)
		}
	}

	c.logger.Info("locker ready",
		zap.String("bucket", cfg.Bucket),
		zap.String("bucket_path", cfg.BucketPath),
		zap.String("local_path", cfg.LocalPath),
	)
	return &RemoteLocker{
		core:       c,
		store:      store,
		cfg:        cfg,
		downloaded: make(map[string]struct{}),
	}, nil
}

// Add registers fileName without checking that it exists locally or remotely.
// fileName must stay inside the local cache directory.
func (l *RemoteLocker) Add(name, fileName string) error {
	if err := l.validateAdd(name, fileName); err != nil {
		return err
	}
	if err := requireLocalPath(fileName); err != nil {
		return err
	}
	l.register(name, filepath.Join(l.cfg.LocalPath, fileName))
	return nil
}

// Contains reports whether name is registered and its artifact is either in the
// local cache or available in the bucket.
func (l *RemoteLocker) Contains(ctx context.Context, name string) (bool, error) {
	location, ok, err := l.resolve(name)
	if err != nil || !ok {
		return false, err
	}
	return l.available(ctx, location)
}

// Get returns the decrypted secret, downloading its artifact first when it is
// not yet in the local cache.
func (l *RemoteLocker) Get(ctx context.Context, name string) (string, error) {
	location, ok, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", l.notFound(name)
	}
	available, err := l.available(ctx, location)
	if err != nil {
		l.metrics.observeLookup(l.backend, outcomeError)
		return "", err
	}
	if !available {
		return "", l.notFound(name)
	}
	if !fileExists(location) {
		if err := l.materialize(ctx, location); err != nil {
			l.metrics.observeLookup(l.backend, outcomeError)
			return "", err
		}
	}
	ciphertext, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrLockerIO, location, err)
	}
	return l.decrypt(ctx, name, ciphertext)
}

func (l *RemoteLocker) GetAsStructured(ctx context.Context, name string) (map[string]string, error) {
	plaintext, err := l.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return parseStructured(name, plaintext)
}

// ObjectKey returns the remote key of a file registered with this locker.
func (l *RemoteLocker) ObjectKey(fileName string) string {
	return l.cfg.BucketPath + RemotePathSeparator + filepath.ToSlash(fileName)
}

// Close removes every file this locker downloaded into the local cache.
func (l *RemoteLocker) Close() error {
	l.mu.Lock()
	paths := make([]string, 0, len(l.downloaded))
	for p := range l.downloaded {
		paths = append(paths, p)
	}
	l.downloaded = make(map[string]struct{})
	l.mu.Unlock()

	var errs errsx.Map
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("failed to remove cached artifact", zap.String("path", p), zap.Error(err))
			errs.Set(p, err)
		}
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%w: cleanup: %w", ErrLockerIO, errs.AsError())
}

func (l *RemoteLocker) keyFor(location string) (string, error) {
	rel, err := filepath.Rel(l.cfg.LocalPath, location)
	if err != nil {
		return "", fmt.Errorf("%w: %s is outside %s: %w", ErrLockerIO, location, l.cfg.LocalPath, err)
	}
	if !filepath.IsLocal(rel) {
		return "", NewPathOutsideRootError(rel)
	}
	return l.ObjectKey(rel), nil
}

func (l *RemoteLocker) available(ctx context.Context, location string) (bool, error) {
	if fileExists(location) {
		return true, nil
	}
	key, err := l.keyFor(location)
	if err != nil {
		return false, err
	}
	exists, err := l.store.ObjectExists(ctx, l.cfg.Bucket, key)
	if err != nil {
		return false, fmt.Errorf("%w: check object %s: %w", ErrLockerIO, key, err)
	}
	return exists, nil
}

// materialize downloads the artifact for location exactly once, even when
// several goroutines ask for it at the same time. The object is written to a
// temporary file in the same directory and renamed into place, so a failed
// download never leaves a partial artifact behind.
//
// The shared download is detached from the cancellation of whichever caller
// started it; each caller stops waiting when its own ctx is done.
func (l *RemoteLocker) materialize(ctx context.Context, location string) error {
	shared := context.WithoutCancel(ctx)
	ch := l.flight.DoChan(location, func() (any, error) {
		if fileExists(location) {
			return nil, nil
		}
		key, err := l.keyFor(location)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("downloading artifact", zap.String("key", key))
		if err := l.fetch(shared, key, location); err != nil {
			l.metrics.observeDownload(outcomeError)
			l.logger.Warn("artifact download failed", zap.String("key", key), zap.Error(err))
			return nil, NewDownloadError(key, err)
		}
		l.mu.Lock()
		l.downloaded[location] = struct{}{}
		l.mu.Unlock()
		l.metrics.observeDownload(outcomeSuccess)
		l.logger.Info("artifact downloaded", zap.String("key", key), zap.String("path", location))
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for %s: %w", ErrLockerIO, location, ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

func (l *RemoteLocker) fetch(ctx context.Context, key, location string) error {
	dir := filepath.Dir(location)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp := filepath.Join(dir, "."+filepath.Base(location)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	err = retry.Do(ctx, l.download, func(attempt int) error {
		if attempt > 0 {
			if err := f.Truncate(0); err != nil {
				return err
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		return l.store.Download(ctx, l.cfg.Bucket, key, f)
	}, func(attempt int, delay time.Duration, err error) {
		l.logger.Warn("retrying artifact download",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	})
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, location); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
