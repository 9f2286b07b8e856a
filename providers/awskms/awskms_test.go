package awskms

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hengadev/locker"
	"github.com/hengadev/locker/internal/crypto"
	"github.com/hengadev/locker/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock KMS client for testing
type mockKMSClient struct {
	encryptFunc func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	decryptFunc func(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

func (m *mockKMSClient) Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if m.encryptFunc != nil {
		return m.encryptFunc(ctx, params, optFns...)
	}
	return &kms.EncryptOutput{}, nil
}

func (m *mockKMSClient) Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if m.decryptFunc != nil {
		return m.decryptFunc(ctx, params, optFns...)
	}
	return &kms.DecryptOutput{}, nil
}

// Mock STS client for testing
type mockSTSClient struct {
	getCallerIdentityFunc func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
	calls                 int
}

func (m *mockSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.calls++
	if m.getCallerIdentityFunc != nil {
		return m.getCallerIdentityFunc(ctx, params, optFns...)
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String("123456789012")}, nil
}

// fakeKMS simulates one KMS key per region with a local AES key.
type fakeKMS struct {
	mu      sync.Mutex
	keks    map[string][]byte
	down    map[string]bool
	encrypt map[string]int
	decrypt map[string]int
}

func newFakeKMS(t *testing.T, regions ...string) *fakeKMS {
	t.Helper()
	f := &fakeKMS{
		keks:    map[string][]byte{},
		down:    map[string]bool{},
		encrypt: map[string]int{},
		decrypt: map[string]int{},
	}
	for _, r := range regions {
		kek, err := crypto.GenerateDEK()
		require.NoError(t, err)
		f.keks[r] = kek
	}
	return f
}

func (f *fakeKMS) setDown(region string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[region] = true
}

func (f *fakeKMS) factory() clientFactory {
	return func(region string) kmsClient {
		return &mockKMSClient{
			encryptFunc: func(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error) {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.encrypt[region]++
				if f.down[region] {
					return nil, errors.New("service unavailable")
				}
				if params.EncryptionContext["purpose"] != "secrets-locker" {
					return nil, errors.New("missing encryption context")
				}
				ct, err := crypto.EncryptData(params.Plaintext, f.keks[region], []byte(*params.KeyId))
				if err != nil {
					return nil, err
				}
				return &kms.EncryptOutput{CiphertextBlob: ct, KeyId: params.KeyId}, nil
			},
			decryptFunc: func(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error) {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.decrypt[region]++
				if f.down[region] {
					return nil, errors.New("service unavailable")
				}
				if params.EncryptionContext["purpose"] != "secrets-locker" {
					return nil, errors.New("InvalidCiphertextException")
				}
				pt, err := crypto.DecryptData(params.CiphertextBlob, f.keks[region], []byte(*params.KeyId))
				if err != nil {
					return nil, errors.New("InvalidCiphertextException")
				}
				return &kms.DecryptOutput{Plaintext: pt, KeyId: params.KeyId}, nil
			},
		}
	}
}

func newTestServices(t *testing.T, fake *fakeKMS, keyID string, regions ...string) (*EncryptionService, *DecryptionService) {
	t.Helper()
	cfg := Config{KeyID: keyID, Regions: regions}
	require.NoError(t, cfg.Validate())
	enc, err := newEncryptionService(context.Background(), cfg, &mockSTSClient{}, fake.factory())
	require.NoError(t, err)
	return enc, newDecryptionService(fake.factory(), nil)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid",
			cfg:  Config{KeyID: "app-secrets", Regions: []string{"us-east-1", "eu-west-1"}},
		},
		{
			name:    "blank key id",
			cfg:     Config{KeyID: "  ", Regions: []string{"us-east-1"}},
			wantErr: true,
			errMsg:  "key id is required",
		},
		{
			name:    "no regions",
			cfg:     Config{KeyID: "app-secrets"},
			wantErr: true,
			errMsg:  "at least one region is required",
		},
		{
			name:    "unknown region",
			cfg:     Config{KeyID: "app-secrets", Regions: []string{"us-east-1", "mars-north-1"}},
			wantErr: true,
			errMsg:  "mars-north-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, locker.ErrInvalidArgument)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigFromLocker(t *testing.T) {
	lc := locker.Config{
		LockerPath: "/secrets",
		KMSKeyID:   "alias/app",
		KMSRegions: []string{"us-east-1", "eu-west-1"},
	}

	cfg := ConfigFromLocker(lc)
	assert.Equal(t, "alias/app", cfg.KeyID)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, cfg.Regions)
	require.NoError(t, cfg.Validate())

	cfg.Regions[0] = "us-west-2"
	assert.Equal(t, "us-east-1", lc.KMSRegions[0])

	assert.Equal(t, DecryptionConfig{Region: "us-east-1"}, DecryptionConfigFromLocker(lc))
	assert.Equal(t, DecryptionConfig{}, DecryptionConfigFromLocker(locker.Config{LockerPath: "/secrets"}))

	err := ConfigFromLocker(locker.Config{LockerPath: "/secrets"}).Validate()
	assert.ErrorIs(t, err, locker.ErrInvalidArgument)
}

func TestNewEncryptionService_InvalidConfig(t *testing.T) {
	_, err := NewEncryptionService(context.Background(), Config{Regions: []string{"us-east-1"}})
	assert.ErrorIs(t, err, locker.ErrInvalidArgument)

	_, err = NewEncryptionService(context.Background(), Config{KeyID: "k", Regions: []string{"nowhere"}})
	assert.ErrorIs(t, err, locker.ErrInvalidArgument)
}

func TestNewDecryptionService_InvalidRegion(t *testing.T) {
	_, err := NewDecryptionService(context.Background(), DecryptionConfig{Region: "nowhere"})
	assert.ErrorIs(t, err, locker.ErrInvalidArgument)
}

func TestValidateRegion(t *testing.T) {
	assert.NoError(t, ValidateRegion("us-east-1"))
	assert.NoError(t, ValidateRegion("cn-north-1"))
	assert.ErrorIs(t, ValidateRegion(""), locker.ErrInvalidArgument)
	assert.ErrorIs(t, ValidateRegion("us-east-9"), locker.ErrInvalidArgument)
	assert.Contains(t, Regions(), "eu-west-1")
}

func TestQualifyKeyID(t *testing.T) {
	tests := []struct {
		name   string
		keyID  string
		region string
		want   string
	}{
		{
			name:   "bare alias",
			keyID:  "app-secrets",
			region: "us-east-1",
			want:   "arn:aws:kms:us-east-1:123456789012:alias/app-secrets",
		},
		{
			name:   "prefixed alias",
			keyID:  "alias/app-secrets",
			region: "eu-west-1",
			want:   "arn:aws:kms:eu-west-1:123456789012:alias/app-secrets",
		},
		{
			name:   "key uuid",
			keyID:  "1234abcd-12ab-34cd-56ef-1234567890ab",
			region: "us-west-2",
			want:   "arn:aws:kms:us-west-2:123456789012:key/1234abcd-12ab-34cd-56ef-1234567890ab",
		},
		{
			name:   "multi-region key id",
			keyID:  "mrk-1234abcd12ab34cd56ef1234567890ab",
			region: "us-west-2",
			want:   "arn:aws:kms:us-west-2:123456789012:key/mrk-1234abcd12ab34cd56ef1234567890ab",
		},
		{
			name:   "arn gets region substituted",
			keyID:  "arn:aws:kms:us-east-1:210987654321:key/mrk-abc",
			region: "eu-central-1",
			want:   "arn:aws:kms:eu-central-1:210987654321:key/mrk-abc",
		},
		{
			name:   "china partition",
			keyID:  "app-secrets",
			region: "cn-north-1",
			want:   "arn:aws-cn:kms:cn-north-1:123456789012:alias/app-secrets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, qualifyKeyID(tt.keyID, tt.region, "123456789012"))
		})
	}
}

func TestNewEncryptionService_AccountLookup(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1", "us-west-2")

	t.Run("alias resolves account once", func(t *testing.T) {
		identity := &mockSTSClient{}
		svc, err := newEncryptionService(ctx, Config{KeyID: "app", Regions: []string{"us-east-1", "us-west-2"}}, identity, fake.factory())
		require.NoError(t, err)
		assert.Equal(t, 1, identity.calls)
		assert.Equal(t, []string{
			"arn:aws:kms:us-east-1:123456789012:alias/app",
			"arn:aws:kms:us-west-2:123456789012:alias/app",
		}, svc.KeyIDs())
	})

	t.Run("arn skips lookup", func(t *testing.T) {
		identity := &mockSTSClient{}
		_, err := newEncryptionService(ctx, Config{KeyID: "arn:aws:kms:us-east-1:1:key/mrk-1", Regions: []string{"us-east-1"}}, identity, fake.factory())
		require.NoError(t, err)
		assert.Equal(t, 0, identity.calls)
	})

	t.Run("lookup failure", func(t *testing.T) {
		identity := &mockSTSClient{
			getCallerIdentityFunc: func(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
				return nil, errors.New("expired token")
			},
		}
		_, err := newEncryptionService(ctx, Config{KeyID: "app", Regions: []string{"us-east-1"}}, identity, fake.factory())
		assert.ErrorIs(t, err, locker.ErrInvalidArgument)
		assert.Contains(t, err.Error(), "expired token")
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1", "us-west-2", "eu-west-1")
	enc, dec := newTestServices(t, fake, "app", "us-east-1", "us-west-2", "eu-west-1")

	artifactBytes, err := enc.Encrypt(ctx, []byte("property=value\n"))
	require.NoError(t, err)

	header, err := envelope.ReadHeader(bytes.NewReader(artifactBytes))
	require.NoError(t, err)
	require.Len(t, header.Keys, 3)
	for i, region := range []string{"us-east-1", "us-west-2", "eu-west-1"} {
		assert.Equal(t, ProviderName, header.Keys[i].Provider)
		assert.Equal(t, region, header.Keys[i].Region)
		assert.Equal(t, "arn:aws:kms:"+region+":123456789012:alias/app", header.Keys[i].KeyID)
	}

	plaintext, err := dec.Decrypt(ctx, artifactBytes)
	require.NoError(t, err)
	assert.Equal(t, "property=value\n", string(plaintext))
}

func TestDecrypt_AnyReachableRegion(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1", "us-west-2")
	enc, dec := newTestServices(t, fake, "app", "us-east-1", "us-west-2")

	artifactBytes, err := enc.Encrypt(ctx, []byte("secret"))
	require.NoError(t, err)

	fake.setDown("us-east-1")
	plaintext, err := dec.Decrypt(ctx, artifactBytes)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plaintext))
	assert.Equal(t, 1, fake.decrypt["us-east-1"])
	assert.Equal(t, 1, fake.decrypt["us-west-2"])

	fake.setDown("us-west-2")
	_, err = dec.Decrypt(ctx, artifactBytes)
	require.Error(t, err)
	assert.ErrorIs(t, err, locker.ErrDecryptionFailed)
	assert.ErrorIs(t, err, envelope.ErrNoUsableKey)
	assert.True(t, locker.IsCryptoError(err))
}

func TestEncrypt_RequiresEveryRegion(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1", "us-west-2")
	enc, _ := newTestServices(t, fake, "app", "us-east-1", "us-west-2")

	fake.setDown("us-west-2")
	_, err := enc.Encrypt(ctx, []byte("secret"))
	require.Error(t, err)
	assert.ErrorIs(t, err, locker.ErrEncryptionFailed)
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestDecrypt_InvalidInput(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1")
	_, dec := newTestServices(t, fake, "app", "us-east-1")

	_, err := dec.Decrypt(ctx, nil)
	assert.ErrorIs(t, err, locker.ErrDecryptionFailed)

	_, err = dec.Decrypt(ctx, []byte("plain text, not an artifact"))
	assert.ErrorIs(t, err, locker.ErrDecryptionFailed)
	assert.ErrorIs(t, err, envelope.ErrNotEnvelope)
}

func TestEncryptFile(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1", "us-west-2")
	enc, dec := newTestServices(t, fake, "app", "us-east-1", "us-west-2")

	dir := t.TempDir()
	source := filepath.Join(dir, "db.properties")
	require.NoError(t, os.WriteFile(source, []byte("user=admin\npassword=hunter2\n"), 0o600))

	target, err := enc.EncryptFile(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, source+locker.EncryptedSuffix, target)

	content, err := dec.DecryptFileContent(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "user=admin\npassword=hunter2\n", content)

	restored := filepath.Join(dir, "restored.properties")
	require.NoError(t, dec.DecryptFile(ctx, target, restored))
	data, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, "user=admin\npassword=hunter2\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temporary files left behind")
}

func TestEncryptFile_Preconditions(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1")
	enc, _ := newTestServices(t, fake, "app", "us-east-1")
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(dir, "missing")},
		{"directory", dir},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.EncryptFile(ctx, tt.path)
			assert.ErrorIs(t, err, locker.ErrInvalidArgument)
		})
	}
}

func TestDecryptFile_MissingArtifact(t *testing.T) {
	fake := newFakeKMS(t, "us-east-1")
	_, dec := newTestServices(t, fake, "app", "us-east-1")
	dir := t.TempDir()

	err := dec.DecryptFile(context.Background(), filepath.Join(dir, "nope.encrypted"), filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, locker.ErrInvalidArgument)

	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err))
}

func TestValueOperations_Unsupported(t *testing.T) {
	ctx := context.Background()
	fake := newFakeKMS(t, "us-east-1")
	enc, dec := newTestServices(t, fake, "app", "us-east-1")

	_, err := enc.EncryptValue(ctx, "value")
	assert.ErrorIs(t, err, locker.ErrUnsupported)

	_, err = dec.DecryptValue(ctx, "value")
	assert.ErrorIs(t, err, locker.ErrUnsupported)
	assert.True(t, locker.IsUnsupportedError(err))
}

func TestKeyring_ClientCachedPerRegion(t *testing.T) {
	created := map[string]int{}
	fake := newFakeKMS(t, "us-east-1")
	base := fake.factory()
	k := newKeyring([]regionalKey{{region: "us-east-1", keyID: "arn:aws:kms:us-east-1:1:alias/a"}}, func(region string) kmsClient {
		created[region]++
		return base(region)
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := k.WrapKey(context.Background(), make([]byte, crypto.DEKSize))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, created["us-east-1"])
}
