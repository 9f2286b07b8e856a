package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2Params defines the parameters for Argon2id key derivation.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultArgon2Params returns recommended parameters for Argon2id
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024, // 64MB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
	}
}

func (p Argon2Params) Validate() error {
	switch {
	case p.Memory < 8*uint32(p.Parallelism) || p.Memory == 0:
		return errors.New("argon2 memory must be at least 8KiB per thread")
	case p.Iterations == 0:
		return errors.New("argon2 iterations must be positive")
	case p.Parallelism == 0:
		return errors.New("argon2 parallelism must be positive")
	case p.SaltLength < 8:
		return errors.New("argon2 salt must be at least 8 bytes")
	}
	return nil
}

// DeriveKey stretches passphrase into a DEKSize key. The same passphrase,
// salt and params always produce the same key.
func DeriveKey(passphrase, salt []byte, params Argon2Params) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if uint32(len(salt)) < params.SaltLength {
		return nil, fmt.Errorf("salt must be at least %d bytes, got %d", params.SaltLength, len(salt))
	}
	return argon2.IDKey(passphrase, salt, params.Iterations, params.Memory, params.Parallelism, DEKSize), nil
}
