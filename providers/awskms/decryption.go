package awskms

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/hengadev/locker"
	"github.com/hengadev/locker/internal/artifact"
	"github.com/hengadev/locker/internal/envelope"
	"go.uber.org/zap"
)

// DecryptionConfig holds configuration for the decryption service.
// The regions to call are read from each artifact.
type DecryptionConfig struct {
	// AWSConfig is an optional pre-configured AWS config.
	AWSConfig *aws.Config

	// Region is used to load the default AWS configuration when AWSConfig is nil.
	Region string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// DecryptionConfigFromLocker returns a decryption configuration loading the
// AWS configuration in the first region of cfg.KMSRegions, if any.
func DecryptionConfigFromLocker(cfg locker.Config) DecryptionConfig {
	var dc DecryptionConfig
	if len(cfg.KMSRegions) > 0 {
		dc.Region = cfg.KMSRegions[0]
	}
	return dc
}

// DecryptionService implements locker.DecryptionService using AWS KMS.
// It is safe for concurrent use and meant to be shared by every locker.
type DecryptionService struct {
	keyring *keyring
	logger  *zap.Logger
}

var _ locker.DecryptionService = (*DecryptionService)(nil)

// NewDecryptionService creates a decryption service.
//
// Usage:
//
//	decrypter, err := awskms.NewDecryptionService(ctx, awskms.DecryptionConfig{})
//	l, err := locker.NewFileSystemLocker("/etc/myapp/secrets", decrypter)
func NewDecryptionService(ctx context.Context, cfg DecryptionConfig) (*DecryptionService, error) {
	if cfg.Region != "" {
		if err := ValidateRegion(cfg.Region); err != nil {
			return nil, err
		}
	}
	awsConfig, err := loadAWSConfig(ctx, cfg.AWSConfig, cfg.Region)
	if err != nil {
		return nil, err
	}
	return newDecryptionService(newClientFactory(awsConfig), cfg.Logger), nil
}

func newDecryptionService(newClient clientFactory, logger *zap.Logger) *DecryptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecryptionService{
		keyring: newKeyring(nil, newClient, logger),
		logger:  logger,
	}
}

// Decrypt returns the plaintext of an artifact held in memory.
func (s *DecryptionService) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", locker.ErrDecryptionFailed)
	}
	plaintext, err := envelope.OpenBytes(ctx, s.keyring, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", locker.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// DecryptStream decrypts an artifact read from r into w.
func (s *DecryptionService) DecryptStream(ctx context.Context, r io.Reader, w io.Writer) error {
	if err := envelope.Open(ctx, s.keyring, r, w); err != nil {
		return fmt.Errorf("%w: %w", locker.ErrDecryptionFailed, err)
	}
	return nil
}

// DecryptFile decrypts encryptedPath into decryptedPath.
func (s *DecryptionService) DecryptFile(ctx context.Context, encryptedPath, decryptedPath string) error {
	if err := artifact.OpenFile(ctx, s.keyring, encryptedPath, decryptedPath); err != nil {
		return err
	}
	s.logger.Debug("decrypted file", zap.String("artifact", encryptedPath), zap.String("target", decryptedPath))
	return nil
}

// DecryptFileContent decrypts encryptedPath and returns its content.
func (s *DecryptionService) DecryptFileContent(ctx context.Context, encryptedPath string) (string, error) {
	plaintext, err := artifact.ReadFile(ctx, s.keyring, encryptedPath)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// DecryptValue is not supported: artifacts are files or byte streams.
func (s *DecryptionService) DecryptValue(ctx context.Context, ciphertext string) (string, error) {
	return "", locker.NewUnsupportedError("aws kms decryption of single values")
}
