package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap params keep the tests fast
var testParams = Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16}

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")

	key, err := DeriveKey([]byte("passphrase"), salt, testParams)
	require.NoError(t, err)
	assert.Len(t, key, DEKSize)

	again, err := DeriveKey([]byte("passphrase"), salt, testParams)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	other, err := DeriveKey([]byte("passphrase"), []byte("fedcba9876543210"), testParams)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestDeriveKey_Invalid(t *testing.T) {
	salt := []byte("0123456789abcdef")

	tests := []struct {
		name       string
		passphrase string
		salt       []byte
		params     Argon2Params
		errMsg     string
	}{
		{"empty passphrase", "", salt, testParams, "passphrase is required"},
		{"short salt", "p", []byte("short"), testParams, "salt must be at least"},
		{"zero iterations", "p", salt, Argon2Params{Memory: 64, Parallelism: 1, SaltLength: 16}, "iterations"},
		{"zero parallelism", "p", salt, Argon2Params{Memory: 64, Iterations: 1, SaltLength: 16}, "parallelism"},
		{"low memory", "p", salt, Argon2Params{Memory: 4, Iterations: 1, Parallelism: 1, SaltLength: 16}, "memory"},
		{"weak salt length", "p", salt, Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 4}, "salt must be at least 8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveKey([]byte(tt.passphrase), tt.salt, tt.params)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDefaultArgon2Params(t *testing.T) {
	assert.NoError(t, DefaultArgon2Params().Validate())
}
