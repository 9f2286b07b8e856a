package awskms

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/hengadev/locker/internal/envelope"
	"go.uber.org/zap"
)

// ProviderName tags data keys wrapped by this package in the artifact header.
const ProviderName = "aws-kms"

// encryptionContext is bound to every wrapped data key and required to unwrap it.
var encryptionContext = map[string]string{"purpose": "secrets-locker"}

// regionalKey is the master key used in one region.
type regionalKey struct {
	region string
	keyID  string
}

// keyring wraps data keys under the KMS key of every configured region and
// unwraps them with whichever region answers first.
type keyring struct {
	keys      []regionalKey
	newClient clientFactory
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]kmsClient
}

func newKeyring(keys []regionalKey, newClient clientFactory, logger *zap.Logger) *keyring {
	return &keyring{
		keys:      keys,
		newClient: newClient,
		logger:    logger,
		clients:   make(map[string]kmsClient),
	}
}

func (k *keyring) client(region string) kmsClient {
	k.mu.Lock()
	defer k.mu.Unlock()
	c, ok := k.clients[region]
	if !ok {
		c = k.newClient(region)
		k.clients[region] = c
	}
	return c
}

// WrapKey encrypts dek in every region. All regions must succeed: an artifact
// missing a region would silently lose the redundancy it was created for.
func (k *keyring) WrapKey(ctx context.Context, dek []byte) ([]envelope.WrappedKey, error) {
	wrapped := make([]envelope.WrappedKey, 0, len(k.keys))
	for _, key := range k.keys {
		out, err := k.client(key.region).Encrypt(ctx, &kms.EncryptInput{
			KeyId:             aws.String(key.keyID),
			Plaintext:         dek,
			EncryptionContext: encryptionContext,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to wrap data key with %s: %w", key.keyID, err)
		}
		if out.CiphertextBlob == nil {
			return nil, fmt.Errorf("no ciphertext returned from KMS in %s", key.region)
		}
		keyID := key.keyID
		if out.KeyId != nil {
			keyID = *out.KeyId
		}
		wrapped = append(wrapped, envelope.WrappedKey{
			Provider:   ProviderName,
			KeyID:      keyID,
			Region:     key.region,
			Ciphertext: out.CiphertextBlob,
		})
	}
	return wrapped, nil
}

// UnwrapKey tries each wrapped copy in order and returns the first data key KMS
// hands back. Regions come from the artifact itself.
func (k *keyring) UnwrapKey(ctx context.Context, keys []envelope.WrappedKey) ([]byte, error) {
	var errs errsx.Map
	for _, key := range keys {
		if key.Provider != ProviderName {
			continue
		}
		region := key.Region
		if region == "" {
			region = regionFromARN(key.KeyID)
		}
		out, err := k.client(region).Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob:    key.Ciphertext,
			KeyId:             aws.String(key.KeyID),
			EncryptionContext: encryptionContext,
		})
		if err != nil {
			k.logger.Warn("region could not unwrap data key", zap.String("region", region), zap.Error(err))
			errs.Set(region, err)
			continue
		}
		if out.Plaintext == nil {
			errs.Set(region, "no plaintext returned from KMS")
			continue
		}
		return out.Plaintext, nil
	}
	if errs.IsEmpty() {
		return nil, envelope.ErrNoUsableKey
	}
	return nil, fmt.Errorf("%w: %w", envelope.ErrNoUsableKey, errs.AsError())
}

// qualifyKeyID turns the configured key identifier into the identifier used in region:
//   - ARNs keep their account and resource and get region substituted
//   - key ids (UUID or mrk-) become arn:<partition>:kms:<region>:<account>:key/<id>
//   - anything else is an alias: arn:<partition>:kms:<region>:<account>:alias/<name>
func qualifyKeyID(keyID, region, accountID string) string {
	if strings.HasPrefix(keyID, "arn:") {
		parts := strings.SplitN(keyID, ":", 6)
		if len(parts) == 6 {
			parts[1] = partitionOf(region)
			parts[3] = region
			return strings.Join(parts, ":")
		}
		return keyID
	}
	resource := keyID
	switch {
	case strings.HasPrefix(keyID, "alias/"), strings.HasPrefix(keyID, "key/"):
	case isRawKeyID(keyID):
		resource = "key/" + keyID
	default:
		resource = "alias/" + keyID
	}
	return fmt.Sprintf("arn:%s:kms:%s:%s:%s", partitionOf(region), region, accountID, resource)
}

func isRawKeyID(keyID string) bool {
	if strings.HasPrefix(keyID, "mrk-") {
		return true
	}
	_, err := uuid.Parse(keyID)
	return err == nil
}

func regionFromARN(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) == 6 && parts[0] == "arn" {
		return parts[3]
	}
	return ""
}
