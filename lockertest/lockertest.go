// Package lockertest provides in-memory encryption and storage doubles for
// tests and examples that use lockers.
//
// Usage:
//
//	crypto, err := lockertest.NewCrypto()
//	artifact, err := crypto.Encrypt(ctx, []byte("property=value\n"))
//
//	store := lockertest.NewMemoryStore()
//	store.Put("secrets", "prod/db.encrypted", artifact)
//	l, err := locker.NewRemoteLocker(ctx, store, crypto, locker.RemoteConfig{...})
package lockertest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/hengadev/locker"
	"github.com/hengadev/locker/internal/artifact"
	"github.com/hengadev/locker/internal/crypto"
	"github.com/hengadev/locker/internal/envelope"
)

// ProviderName tags data keys wrapped by Crypto.
const ProviderName = "lockertest"

// Crypto implements locker.EncryptionService and locker.DecryptionService with
// a random key held in memory. Artifacts it produces use the same format as the
// real providers, so they are only readable by the same Crypto value.
type Crypto struct {
	kek []byte

	mu       sync.Mutex
	decrypts int
}

var (
	_ locker.EncryptionService = (*Crypto)(nil)
	_ locker.DecryptionService = (*Crypto)(nil)
)

// NewCrypto creates a Crypto with a fresh key.
func NewCrypto() (*Crypto, error) {
	kek, err := crypto.GenerateDEK()
	if err != nil {
		return nil, fmt.Errorf("failed to create test crypto: %w", err)
	}
	return &Crypto{kek: kek}, nil
}

// NewCryptoFromPassphrase creates a Crypto whose key is derived from
// passphrase and salt, so fixtures written by one test run stay readable by
// the next.
func NewCryptoFromPassphrase(passphrase, salt string) (*Crypto, error) {
	kek, err := crypto.DeriveKey([]byte(passphrase), []byte(salt), crypto.DefaultArgon2Params())
	if err != nil {
		return nil, fmt.Errorf("failed to derive test key: %w", err)
	}
	return &Crypto{kek: kek}, nil
}

// Decrypts returns how many artifacts were decrypted so far.
func (c *Crypto) Decrypts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decrypts
}

func (c *Crypto) WrapKey(ctx context.Context, dek []byte) ([]envelope.WrappedKey, error) {
	ciphertext, err := crypto.EncryptData(dek, c.kek, []byte(ProviderName))
	if err != nil {
		return nil, err
	}
	return []envelope.WrappedKey{{Provider: ProviderName, KeyID: "test-key-id", Ciphertext: ciphertext}}, nil
}

func (c *Crypto) UnwrapKey(ctx context.Context, keys []envelope.WrappedKey) ([]byte, error) {
	for _, key := range keys {
		if key.Provider != ProviderName {
			continue
		}
		if dek, err := crypto.DecryptData(key.Ciphertext, c.kek, []byte(ProviderName)); err == nil {
			return dek, nil
		}
	}
	return nil, envelope.ErrNoUsableKey
}

// Encrypt returns the artifact for plaintext.
func (c *Crypto) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := envelope.SealBytes(ctx, c, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", locker.ErrEncryptionFailed, err)
	}
	return out, nil
}

// EncryptValue returns the artifact for plaintext, base64 encoded.
func (c *Crypto) EncryptValue(ctx context.Context, plaintext string) (string, error) {
	out, err := c.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Crypto) EncryptFile(ctx context.Context, path string) (string, error) {
	return artifact.SealFile(ctx, c, path)
}

func (c *Crypto) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	c.decrypts++
	c.mu.Unlock()
	plaintext, err := envelope.OpenBytes(ctx, c, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", locker.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (c *Crypto) DecryptValue(ctx context.Context, ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", locker.ErrDecryptionFailed, err)
	}
	plaintext, err := c.Decrypt(ctx, data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Crypto) DecryptFile(ctx context.Context, encryptedPath, decryptedPath string) error {
	return artifact.OpenFile(ctx, c, encryptedPath, decryptedPath)
}

func (c *Crypto) DecryptFileContent(ctx context.Context, encryptedPath string) (string, error) {
	plaintext, err := artifact.ReadFile(ctx, c, encryptedPath)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// MemoryStore implements locker.ObjectStore in memory.
//
// All data is lost when the process terminates.
type MemoryStore struct {
	mu        sync.RWMutex
	buckets   map[string]map[string][]byte
	downloads map[string]int
}

var _ locker.ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets:   make(map[string]map[string][]byte),
		downloads: make(map[string]int),
	}
}

// Put stores a copy of data under bucket and key, creating the bucket if needed.
func (s *MemoryStore) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		objects = make(map[string][]byte)
		s.buckets[bucket] = objects
	}
	objects[key] = bytes.Clone(data)
}

// Delete removes an object.
func (s *MemoryStore) Delete(bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
}

// Downloads returns how many times key was downloaded from bucket.
func (s *MemoryStore) Downloads(bucket, key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloads[bucket+"/"+key]
}

func (s *MemoryStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[bucket]
	return ok, nil
}

func (s *MemoryStore) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[bucket][key]
	return ok, nil
}

func (s *MemoryStore) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	s.mu.Lock()
	data, ok := s.buckets[bucket][key]
	if ok {
		s.downloads[bucket+"/"+key]++
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	_, err := w.Write(data)
	return err
}
