// Package vaulttransit encrypts and decrypts locker artifacts with the
// HashiCorp Vault Transit engine.
//
// Files are sealed in the locker artifact format with a data key wrapped by
// Transit. Single values are sent to Transit directly and come back in Vault's
// own "vault:v1:..." ciphertext format.
//
// The Transit engine must be enabled in Vault before use:
//
//	vault secrets enable transit
//	vault write -f transit/keys/app-secrets
package vaulttransit

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/errsx"
	"github.com/hengadev/locker"
	"github.com/hengadev/locker/internal/artifact"
	"github.com/hengadev/locker/internal/envelope"
	"go.uber.org/zap"
)

// ProviderName tags data keys wrapped by this package in the artifact header.
const ProviderName = "vault-transit"

// DefaultMountPath is where the Transit engine is mounted unless configured otherwise.
const DefaultMountPath = "transit"

// Config holds configuration for the Transit service.
type Config struct {
	Address   string
	Namespace string
	Token     string
	RoleID    string
	SecretID  string

	// KeyName is the Transit key used for every operation. Required.
	KeyName string

	// MountPath defaults to DefaultMountPath.
	MountPath string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs errsx.Map
	if strings.TrimSpace(c.KeyName) == "" {
		errs.Set("KeyName", "transit key name is required")
	}
	if (c.RoleID == "") != (c.SecretID == "") {
		errs.Set("AppRole", "role id and secret id must be set together")
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%w: %w", locker.ErrInvalidArgument, errs.AsError())
}

// logicalWriter is the part of the Vault logical API used by Service (allows mocking).
type logicalWriter interface {
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error)
}

// Service implements locker.EncryptionService and locker.DecryptionService
// using a single Transit key.
type Service struct {
	logical logicalWriter
	mount   string
	keyName string
	logger  *zap.Logger
}

var (
	_ locker.EncryptionService = (*Service)(nil)
	_ locker.DecryptionService = (*Service)(nil)
)

// New creates a Transit service.
//
// Usage:
//
//	svc, err := vaulttransit.New(ctx, vaulttransit.ConfigFromEnvironment("app-secrets"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	l, err := locker.NewFileSystemLocker("/etc/myapp/secrets", svc)
func New(ctx context.Context, cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := newVaultClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newService(client.Logical(), cfg), nil
}

func newService(logical logicalWriter, cfg Config) *Service {
	mount := strings.Trim(cfg.MountPath, "/")
	if mount == "" {
		mount = DefaultMountPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logical: logical,
		mount:   mount,
		keyName: cfg.KeyName,
		logger:  logger.With(zap.String("transit_key", cfg.KeyName)),
	}
}

// KeyName returns the Transit key in use.
func (s *Service) KeyName() string {
	return s.keyName
}

func (s *Service) encrypt(ctx context.Context, plaintext []byte) (string, error) {
	resp, err := s.logical.WriteWithContext(ctx, fmt.Sprintf("%s/encrypt/%s", s.mount, s.keyName), map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt with key '%s': %w", s.keyName, err)
	}
	if resp == nil || resp.Data == nil {
		return "", fmt.Errorf("no response from Vault Transit encrypt")
	}
	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok {
		return "", fmt.Errorf("ciphertext not found in response")
	}
	return ciphertext, nil
}

func (s *Service) decrypt(ctx context.Context, ciphertext string) ([]byte, error) {
	resp, err := s.logical.WriteWithContext(ctx, fmt.Sprintf("%s/decrypt/%s", s.mount, s.keyName), map[string]interface{}{
		"ciphertext": ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt with key '%s': %w", s.keyName, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("no response from Vault Transit decrypt")
	}
	plaintextBase64, ok := resp.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("plaintext not found in response")
	}
	plaintext, err := base64.StdEncoding.DecodeString(plaintextBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

// WrapKey wraps dek under the Transit key.
func (s *Service) WrapKey(ctx context.Context, dek []byte) ([]envelope.WrappedKey, error) {
	ciphertext, err := s.encrypt(ctx, dek)
	if err != nil {
		return nil, err
	}
	return []envelope.WrappedKey{{
		Provider:   ProviderName,
		KeyID:      s.keyName,
		Ciphertext: []byte(ciphertext),
	}}, nil
}

// UnwrapKey recovers the data key from the copy wrapped by this service's key.
func (s *Service) UnwrapKey(ctx context.Context, keys []envelope.WrappedKey) ([]byte, error) {
	for _, key := range keys {
		if key.Provider != ProviderName || key.KeyID != s.keyName {
			continue
		}
		return s.decrypt(ctx, string(key.Ciphertext))
	}
	return nil, fmt.Errorf("%w: no data key wrapped by transit key %s", envelope.ErrNoUsableKey, s.keyName)
}

// EncryptValue encrypts plaintext with Transit and returns the Vault ciphertext.
func (s *Service) EncryptValue(ctx context.Context, plaintext string) (string, error) {
	ciphertext, err := s.encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("%w: %w", locker.ErrEncryptionFailed, err)
	}
	return ciphertext, nil
}

// DecryptValue reverses EncryptValue.
func (s *Service) DecryptValue(ctx context.Context, ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "vault:") {
		return "", fmt.Errorf("%w: not a Vault ciphertext", locker.ErrDecryptionFailed)
	}
	plaintext, err := s.decrypt(ctx, ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", locker.ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// EncryptFile encrypts path and writes the artifact next to it.
func (s *Service) EncryptFile(ctx context.Context, path string) (string, error) {
	target, err := artifact.SealFile(ctx, s, path)
	if err != nil {
		return "", err
	}
	s.logger.Info("encrypted file", zap.String("source", path), zap.String("artifact", target))
	return target, nil
}

// Decrypt returns the plaintext of an artifact held in memory.
func (s *Service) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", locker.ErrDecryptionFailed)
	}
	plaintext, err := envelope.OpenBytes(ctx, s, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", locker.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// DecryptFile decrypts encryptedPath into decryptedPath.
func (s *Service) DecryptFile(ctx context.Context, encryptedPath, decryptedPath string) error {
	return artifact.OpenFile(ctx, s, encryptedPath, decryptedPath)
}

// DecryptFileContent decrypts encryptedPath and returns its content.
func (s *Service) DecryptFileContent(ctx context.Context, encryptedPath string) (string, error) {
	plaintext, err := artifact.ReadFile(ctx, s, encryptedPath)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
