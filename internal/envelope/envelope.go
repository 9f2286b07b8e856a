// Package envelope implements the encrypted artifact format shared by the
// encryption providers.
//
// An artifact is a small header followed by the chunked AES-256-GCM stream of
// internal/crypto:
//
//	"SLKR" | version (1 byte) | header length (uint32, big endian) | JSON header | chunks
//
// The header carries the data key wrapped by every master key that protects the
// artifact, so decryption needs only one of them to be reachable.
package envelope

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hengadev/locker/internal/crypto"
)

const (
	magic   = "SLKR"
	Version = 1

	// maxHeaderSize bounds the header length read from an artifact.
	maxHeaderSize = 1 << 20
)

var (
	ErrNotEnvelope     = errors.New("not an encrypted artifact")
	ErrUnknownVersion  = errors.New("unsupported artifact version")
	ErrNoWrappedKeys   = errors.New("artifact carries no wrapped data key")
	ErrNoUsableKey     = errors.New("no wrapped data key could be unwrapped")
	ErrEmptyWrapResult = errors.New("key wrapper returned no wrapped keys")
)

// WrappedKey is the data key encrypted under one master key.
type WrappedKey struct {
	// Provider identifies the key service, e.g. "aws-kms" or "vault-transit".
	Provider string `json:"provider"`
	// KeyID is the master key that wrapped the data key, as reported by the provider.
	KeyID string `json:"key_id"`
	// Region is set by regional providers.
	Region string `json:"region,omitempty"`
	// Ciphertext is the wrapped data key.
	Ciphertext []byte `json:"ciphertext"`
}

// Header is the metadata stored in front of the encrypted chunks.
type Header struct {
	Algorithm string       `json:"algorithm"`
	Keys      []WrappedKey `json:"keys"`
}

// KeyWrapper wraps a data key under one or more master keys.
type KeyWrapper interface {
	WrapKey(ctx context.Context, dek []byte) ([]WrappedKey, error)
}

// KeyUnwrapper recovers a data key from any one of the wrapped copies.
type KeyUnwrapper interface {
	UnwrapKey(ctx context.Context, keys []WrappedKey) ([]byte, error)
}

// Seal encrypts r into w under a fresh data key wrapped by wrapper.
func Seal(ctx context.Context, wrapper KeyWrapper, r io.Reader, w io.Writer) error {
	dek, err := crypto.GenerateDEK()
	if err != nil {
		return err
	}
	defer crypto.WipeDEK(dek)

	keys, err := wrapper.WrapKey(ctx, dek)
	if err != nil {
		return fmt.Errorf("wrap data key: %w", err)
	}
	if len(keys) == 0 {
		return ErrEmptyWrapResult
	}

	if err := WriteHeader(w, Header{Algorithm: crypto.AlgorithmAES256GCM, Keys: keys}); err != nil {
		return err
	}
	return crypto.EncryptStream(ctx, r, w, dek)
}

// Open decrypts an artifact read from r into w, using unwrapper to recover the data key.
func Open(ctx context.Context, unwrapper KeyUnwrapper, r io.Reader, w io.Writer) error {
	header, err := ReadHeader(r)
	if err != nil {
		return err
	}
	if header.Algorithm != crypto.AlgorithmAES256GCM {
		return fmt.Errorf("%w: algorithm %q", ErrUnknownVersion, header.Algorithm)
	}

	dek, err := unwrapper.UnwrapKey(ctx, header.Keys)
	if err != nil {
		return fmt.Errorf("unwrap data key: %w", err)
	}
	defer crypto.WipeDEK(dek)

	return crypto.DecryptStream(ctx, r, w, dek)
}

// SealBytes is Seal for in-memory plaintext.
func SealBytes(ctx context.Context, wrapper KeyWrapper, plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := Seal(ctx, wrapper, bytes.NewReader(plaintext), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OpenBytes is Open for an in-memory artifact.
func OpenBytes(ctx context.Context, unwrapper KeyUnwrapper, artifact []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := Open(ctx, unwrapper, bytes.NewReader(artifact), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteHeader writes the artifact preamble and header.
func WriteHeader(w io.Writer, h Header) error {
	body, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	preamble := make([]byte, len(magic)+1+4)
	copy(preamble, magic)
	preamble[len(magic)] = Version
	binary.BigEndian.PutUint32(preamble[len(magic)+1:], uint32(len(body)))
	if _, err := w.Write(preamble); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// ReadHeader reads the artifact preamble and header, leaving r at the first chunk.
func ReadHeader(r io.Reader) (Header, error) {
	preamble := make([]byte, len(magic)+1+4)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return Header{}, ErrNotEnvelope
	}
	if string(preamble[:len(magic)]) != magic {
		return Header{}, ErrNotEnvelope
	}
	if v := preamble[len(magic)]; v != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	size := binary.BigEndian.Uint32(preamble[len(magic)+1:])
	if size == 0 || size > maxHeaderSize {
		return Header{}, fmt.Errorf("%w: header size %d", ErrNotEnvelope, size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrNotEnvelope, err)
	}
	var h Header
	if err := json.Unmarshal(body, &h); err != nil {
		return Header{}, fmt.Errorf("%w: decode header: %w", ErrNotEnvelope, err)
	}
	if len(h.Keys) == 0 {
		return Header{}, ErrNoWrappedKeys
	}
	return h, nil
}
