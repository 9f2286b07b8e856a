package locker

import (
	"fmt"
	"strings"

	"github.com/hengadev/errsx"
	"go.uber.org/zap/zapcore"
)

// Config holds what is needed to build a locker from configuration rather than code.
//
// A filesystem locker is built when Bucket is empty; otherwise a remote locker
// caching into LockerPath is built.
//
// Example usage:
//
//	cfg := locker.Config{
//	    LockerPath: "/var/cache/myapp/secrets",
//	    Bucket:     "myapp-secrets",
//	    BucketPath: "prod",
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// LockerPath is the artifact directory (filesystem) or cache directory (remote). Required.
	LockerPath string

	// Bucket selects a remote locker when set.
	Bucket string

	// BucketPath is the key prefix inside Bucket. Required when Bucket is set.
	BucketPath string

	// SkipBucketValidation disables the check that Bucket exists when the
	// locker is built.
	SkipBucketValidation bool

	// KMSKeyID is the key alias, key id or ARN for encryption services.
	KMSKeyID string

	// KMSRegions lists the regions data keys are wrapped under.
	KMSRegions []string

	// ManifestPath optionally points at a YAML manifest registered on the new locker.
	ManifestPath string

	// LogLevel is a zap level name. Default: info
	LogLevel string

	// Environment selects the logger profile, "dev" or "prod". Default: prod
	Environment string
}

// Validate checks required fields and applies defaults. Every problem found is
// reported, keyed by field, inside an ErrInvalidArgument.
func (c *Config) Validate() error {
	var errs errsx.Map

	if strings.TrimSpace(c.LockerPath) == "" {
		errs.Set("LockerPath", "is required")
	}
	if c.Bucket != "" && strings.TrimSpace(c.BucketPath) == "" {
		errs.Set("BucketPath", "is required when Bucket is set")
	}
	if c.KMSKeyID != "" && len(c.KMSRegions) == 0 {
		errs.Set("KMSRegions", "at least one region is required when KMSKeyID is set")
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs.Set("LogLevel", err)
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}

	if !errs.IsEmpty() {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, errs.AsError())
	}
	return nil
}

// IsRemote reports whether the configuration describes a remote locker.
func (c Config) IsRemote() bool {
	return c.Bucket != ""
}

// Remote returns the RemoteConfig for this configuration.
func (c Config) Remote() RemoteConfig {
	return RemoteConfig{
		Bucket:               c.Bucket,
		BucketPath:           c.BucketPath,
		LocalPath:            c.LockerPath,
		SkipBucketValidation: c.SkipBucketValidation,
	}
}
