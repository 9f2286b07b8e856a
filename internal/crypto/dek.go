package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// DEKSize is the data encryption key size in bytes (AES-256).
const DEKSize = 32

// GenerateDEK generates a new random data encryption key.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}
	return dek, nil
}

// WipeDEK overwrites key material once it is no longer needed.
func WipeDEK(dek []byte) {
	memguard.WipeBytes(dek)
}
