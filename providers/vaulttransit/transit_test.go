package vaulttransit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/hengadev/locker"
	"github.com/hengadev/locker/internal/envelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockVaultServer creates a mock Vault server whose transit engine tags
// plaintext instead of encrypting it.
func mockVaultServer(t *testing.T, keyName string) (*httptest.Server, *int32) {
	t.Helper()
	var decrypts int32
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"auth": {"client_token": "test-token-12345"}}`))
	})

	mux.HandleFunc("/v1/transit/encrypt/"+keyName, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"ciphertext": "vault:v1:" + body["plaintext"]},
		})
	})

	mux.HandleFunc("/v1/transit/decrypt/"+keyName, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&decrypts, 1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if !strings.HasPrefix(body["ciphertext"], "vault:v1:") {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"errors": ["invalid ciphertext"]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{"plaintext": strings.TrimPrefix(body["ciphertext"], "vault:v1:")},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &decrypts
}

func newTestService(t *testing.T) (*Service, *int32) {
	t.Helper()
	server, decrypts := mockVaultServer(t, "test-key")
	svc, err := New(context.Background(), Config{Address: server.URL, Token: "root", KeyName: "test-key"})
	require.NoError(t, err)
	return svc, decrypts
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{KeyName: "k"}, false},
		{"missing key", Config{}, true},
		{"blank key", Config{KeyName: " "}, true},
		{"role without secret", Config{KeyName: "k", RoleID: "r"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, locker.ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Authentication(t *testing.T) {
	server, _ := mockVaultServer(t, "test-key")
	ctx := context.Background()

	t.Run("token", func(t *testing.T) {
		svc, err := New(ctx, Config{Address: server.URL, Token: "root", Namespace: "admin/test", KeyName: "test-key"})
		require.NoError(t, err)
		assert.Equal(t, "test-key", svc.KeyName())
	})

	t.Run("approle", func(t *testing.T) {
		cfg := Config{Address: server.URL, RoleID: "role", SecretID: "secret", KeyName: "test-key"}
		client, err := newVaultClient(ctx, cfg)
		require.NoError(t, err)
		assert.Equal(t, "test-token-12345", client.Token())
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := New(ctx, Config{Address: server.URL, KeyName: "test-key"})
		assert.ErrorIs(t, err, locker.ErrInvalidArgument)
	})
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv(EnvVaultAddr, "https://vault.example.com")
	t.Setenv(EnvVaultNamespace, "admin/example")
	t.Setenv(EnvVaultToken, "tok")

	cfg := ConfigFromEnvironment("app")
	assert.Equal(t, "https://vault.example.com", cfg.Address)
	assert.Equal(t, "admin/example", cfg.Namespace)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, "app", cfg.KeyName)
}

func TestValueRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ciphertext, err := svc.EncryptValue(ctx, "hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ciphertext, "vault:v1:"))

	plaintext, err := svc.DecryptValue(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plaintext)

	_, err = svc.DecryptValue(ctx, "plain")
	assert.ErrorIs(t, err, locker.ErrDecryptionFailed)
}

func TestFileRoundTrip(t *testing.T) {
	svc, decrypts := newTestService(t)
	ctx := context.Background()

	dir := t.TempDir()
	source := filepath.Join(dir, "app.properties")
	require.NoError(t, os.WriteFile(source, []byte("property=value\n"), 0o600))

	target, err := svc.EncryptFile(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, source+locker.EncryptedSuffix, target)

	content, err := svc.DecryptFileContent(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "property=value\n", content)
	assert.Equal(t, int32(1), atomic.LoadInt32(decrypts))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	plaintext, err := svc.Decrypt(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "property=value\n", string(plaintext))

	out := filepath.Join(dir, "out.properties")
	require.NoError(t, svc.DecryptFile(ctx, target, out))
	restored, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "property=value\n", string(restored))
}

// mockLogical records transit calls without a server.
type mockLogical struct {
	writeFunc func(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error)
}

func (m *mockLogical) WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error) {
	return m.writeFunc(ctx, path, data)
}

func TestCustomMountPath(t *testing.T) {
	var paths []string
	svc := newService(&mockLogical{
		writeFunc: func(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error) {
			paths = append(paths, path)
			return &api.Secret{Data: map[string]interface{}{"ciphertext": "vault:v1:x"}}, nil
		},
	}, Config{KeyName: "app", MountPath: "/crypto/"})

	_, err := svc.EncryptValue(context.Background(), "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"crypto/encrypt/app"}, paths)
}

func TestTransitFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		secret *api.Secret
		err    error
	}{
		{"vault error", nil, errors.New("permission denied")},
		{"empty response", nil, nil},
		{"missing field", &api.Secret{Data: map[string]interface{}{}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(&mockLogical{
				writeFunc: func(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error) {
					return tt.secret, tt.err
				},
			}, Config{KeyName: "app"})

			_, err := svc.EncryptValue(ctx, "v")
			assert.ErrorIs(t, err, locker.ErrEncryptionFailed)

			_, err = svc.DecryptValue(ctx, "vault:v1:x")
			assert.ErrorIs(t, err, locker.ErrDecryptionFailed)
		})
	}
}

func TestUnwrapKey_OtherKey(t *testing.T) {
	svc := newService(&mockLogical{}, Config{KeyName: "app"})

	_, err := svc.UnwrapKey(context.Background(), []envelope.WrappedKey{
		{Provider: ProviderName, KeyID: "other", Ciphertext: []byte("vault:v1:x")},
		{Provider: "aws-kms", KeyID: "app", Ciphertext: []byte("blob")},
	})
	assert.ErrorIs(t, err, envelope.ErrNoUsableKey)
}
