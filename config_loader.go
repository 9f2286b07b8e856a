package locker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given files into the process environment
// without overriding variables that are already set. With no arguments it loads
// ".env" and silently ignores its absence.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(files, ", "), err)
	}
	return nil
}

// LoadConfigFromEnvironment reads a Config from LOCKER_* environment variables
// and validates it.
//
// Required environment variables:
//   - LOCKER_PATH: artifact or cache directory
//
// Optional environment variables:
//   - LOCKER_BUCKET, LOCKER_BUCKET_PATH: select a remote locker
//   - LOCKER_VALIDATE_BUCKET: default true
//   - LOCKER_KMS_KEY_ID, LOCKER_KMS_REGIONS: encryption key and comma separated regions
//   - LOCKER_MANIFEST: YAML manifest of secrets
//   - LOCKER_LOG_LEVEL: default info
//   - LOCKER_ENV: default prod
func LoadConfigFromEnvironment() (Config, error) {
	validateBucket, err := getEnvBool(EnvValidateBucket, true)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LockerPath:     os.Getenv(EnvLockerPath),
		Bucket:         os.Getenv(EnvBucket),
		BucketPath:     os.Getenv(EnvBucketPath),
		SkipBucketValidation: !validateBucket,
		KMSKeyID:       os.Getenv(EnvKMSKeyID),
		KMSRegions:     splitList(os.Getenv(EnvKMSRegions)),
		ManifestPath:   os.Getenv(EnvManifest),
		LogLevel:       getEnvOrDefault(EnvLogLevel, DefaultLogLevel),
		Environment:    getEnvOrDefault(EnvEnvironment, DefaultEnvironment),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean, got %q", ErrInvalidArgument, key, value)
	}
	return b, nil
}

// splitList splits a comma separated list, dropping blank items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
