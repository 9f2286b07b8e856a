package locker

import (
	"context"
	"fmt"
)

// New builds the locker described by cfg and registers the secrets of its
// manifest, if any.
//
// store is only used, and then required, when cfg describes a remote locker.
// Unless opts include WithLogger, the locker logs through NewLogger built from
// cfg.Environment and cfg.LogLevel.
// The returned Locker is a *FileSystemLocker or a *RemoteLocker; callers owning
// a remote locker should type-assert to io.Closer and close it on shutdown.
//
// Example usage:
//
//	cfg, err := locker.LoadConfigFromEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l, err := locker.New(ctx, cfg, decrypter, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if c, ok := l.(io.Closer); ok {
//	    defer c.Close()
//	}
func New(ctx context.Context, cfg Config, decrypter DecryptionService, store ObjectStore, opts ...Option) (Locker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !loggerGiven(opts) {
		logger, err := NewLogger(cfg.Environment, cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append([]Option{WithLogger(logger)}, opts...)
	}

	var (
		l   Locker
		err error
	)
	if cfg.IsRemote() {
		l, err = NewRemoteLocker(ctx, store, decrypter, cfg.Remote(), opts...)
	} else {
		l, err = NewFileSystemLocker(cfg.LockerPath, decrypter, opts...)
	}
	if err != nil {
		return nil, err
	}

	if cfg.ManifestPath == "" {
		return l, nil
	}
	manifest, err := LoadManifest(cfg.ManifestPath)
	if err != nil {
		return nil, err
	}
	if err := manifest.Register(l); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", cfg.ManifestPath, err)
	}
	return l, nil
}
