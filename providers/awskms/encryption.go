// Package awskms encrypts and decrypts locker artifacts with AWS Key Management
// Service keys replicated across several regions.
//
// Every artifact carries its data key wrapped by the key of each configured
// region, so any single reachable region is enough to decrypt it.
package awskms

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hengadev/errsx"
	"github.com/hengadev/locker"
	"github.com/hengadev/locker/internal/artifact"
	"github.com/hengadev/locker/internal/envelope"
	"go.uber.org/zap"
)

// Config holds configuration for the multi-region encryption service.
type Config struct {
	// KeyID is an alias name ("my-key" or "alias/my-key"), a key id or a key ARN.
	KeyID string

	// Regions the data key is wrapped in. At least one is required.
	Regions []string

	// AWSConfig is an optional pre-configured AWS config.
	// If nil, the default AWS configuration is loaded.
	AWSConfig *aws.Config

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// ConfigFromLocker returns the encryption configuration described by the
// KMS fields of a locker configuration.
func ConfigFromLocker(cfg locker.Config) Config {
	return Config{
		KeyID:   cfg.KMSKeyID,
		Regions: append([]string(nil), cfg.KMSRegions...),
	}
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs errsx.Map
	if strings.TrimSpace(c.KeyID) == "" {
		errs.Set("KeyID", "key id is required")
	}
	if len(c.Regions) == 0 {
		errs.Set("Regions", "at least one region is required")
	}
	for _, region := range c.Regions {
		if err := ValidateRegion(region); err != nil {
			errs.Set("Regions", err)
		}
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%w: %w", locker.ErrInvalidArgument, errs.AsError())
}

// EncryptionService implements locker.EncryptionService using AWS KMS.
type EncryptionService struct {
	keyring *keyring
	logger  *zap.Logger
}

var _ locker.EncryptionService = (*EncryptionService)(nil)

// NewEncryptionService creates a multi-region encryption service.
//
// Usage:
//
//	svc, err := awskms.NewEncryptionService(ctx, awskms.Config{
//	    KeyID:   "alias/app-secrets",
//	    Regions: []string{"us-east-1", "us-west-2"},
//	})
//	encryptedPath, err := svc.EncryptFile(ctx, "db.properties")
func NewEncryptionService(ctx context.Context, cfg Config) (*EncryptionService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	awsConfig, err := loadAWSConfig(ctx, cfg.AWSConfig, cfg.Regions[0])
	if err != nil {
		return nil, err
	}
	return newEncryptionService(ctx, cfg, sts.NewFromConfig(awsConfig), newClientFactory(awsConfig))
}

func newEncryptionService(ctx context.Context, cfg Config, identity stsClient, newClient clientFactory) (*EncryptionService, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var accountID string
	if !strings.HasPrefix(cfg.KeyID, "arn:") {
		id, err := resolveAccountID(ctx, identity)
		if err != nil {
			return nil, err
		}
		accountID = id
	}

	keys := make([]regionalKey, 0, len(cfg.Regions))
	for _, region := range cfg.Regions {
		keys = append(keys, regionalKey{
			region: region,
			keyID:  qualifyKeyID(cfg.KeyID, region, accountID),
		})
	}
	logger.Debug("configured KMS keys", zap.Strings("keys", keyIDs(keys)))

	return &EncryptionService{
		keyring: newKeyring(keys, newClient, logger),
		logger:  logger,
	}, nil
}

// KeyIDs returns the fully qualified key of each region, in configuration order.
func (s *EncryptionService) KeyIDs() []string {
	return keyIDs(s.keyring.keys)
}

func keyIDs(keys []regionalKey) []string {
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.keyID)
	}
	return ids
}

// Encrypt returns the artifact for plaintext.
func (s *EncryptionService) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := envelope.SealBytes(ctx, s.keyring, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", locker.ErrEncryptionFailed, err)
	}
	return out, nil
}

// EncryptStream encrypts r into w.
func (s *EncryptionService) EncryptStream(ctx context.Context, r io.Reader, w io.Writer) error {
	if err := envelope.Seal(ctx, s.keyring, r, w); err != nil {
		return fmt.Errorf("%w: %w", locker.ErrEncryptionFailed, err)
	}
	return nil
}

// EncryptFile encrypts path and writes the artifact next to it.
func (s *EncryptionService) EncryptFile(ctx context.Context, path string) (string, error) {
	target, err := artifact.SealFile(ctx, s.keyring, path)
	if err != nil {
		return "", err
	}
	s.logger.Info("encrypted file", zap.String("source", path), zap.String("artifact", target))
	return target, nil
}

// EncryptValue is not supported: artifacts are files or byte streams.
func (s *EncryptionService) EncryptValue(ctx context.Context, plaintext string) (string, error) {
	return "", locker.NewUnsupportedError("aws kms encryption of single values")
}
