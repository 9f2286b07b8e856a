package crypto

import (
	"bufio"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// ChunkSize is the plaintext size of every chunk but the last.
	ChunkSize = 64 * 1024

	// maxChunkSize bounds the ciphertext length read from a stream header
	// to prevent memory exhaustion on corrupted input.
	maxChunkSize = ChunkSize + 1024

	// AlgorithmAES256GCM names the stream format produced by EncryptStream.
	AlgorithmAES256GCM = "AES-256-GCM-CHUNKED"
)

var (
	ErrTruncatedStream = errors.New("encrypted stream is truncated")
	ErrTrailingData    = errors.New("encrypted stream has data after its final chunk")
)

func newGCM(dek []byte) (cipher.AEAD, error) {
	if len(dek) != DEKSize {
		return nil, fmt.Errorf("invalid data key size %d, want %d", len(dek), DEKSize)
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}

// chunkAAD binds a chunk to its position and tells whether it closes the stream,
// so chunks cannot be reordered, dropped or appended.
func chunkAAD(index uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, index)
	if final {
		aad[8] = 1
	}
	return aad
}

// EncryptData seals plaintext with dek. The nonce is prepended to the ciphertext.
func EncryptData(plaintext, dek, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(dek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aesGCM.Seal(nonce, nonce, plaintext, aad), nil
}

// DecryptData opens a ciphertext produced by EncryptData.
func DecryptData(ciphertext, dek, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(dek)
	if err != nil {
		return nil, err
	}
	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("invalid ciphertext size")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// EncryptStream reads plaintext from r and writes length-prefixed encrypted
// chunks to w. An empty input still produces one (empty) final chunk.
func EncryptStream(ctx context.Context, r io.Reader, w io.Writer, dek []byte) error {
	br := bufio.NewReaderSize(r, ChunkSize)
	buffer := make([]byte, ChunkSize)
	for index := uint64(0); ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(br, buffer)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("failed to read from input stream: %w", err)
		}
		final := err != nil
		if !final {
			if _, peekErr := br.Peek(1); peekErr == io.EOF {
				final = true
			}
		}
		ciphertext, err := EncryptData(buffer[:n], dek, chunkAAD(index, final))
		if err != nil {
			return fmt.Errorf("failed to encrypt chunk %d: %w", index, err)
		}
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(ciphertext)))
		if _, err := w.Write(length[:]); err != nil {
			return fmt.Errorf("failed to write chunk length: %w", err)
		}
		if _, err := w.Write(ciphertext); err != nil {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
		if final {
			return nil
		}
	}
}

// DecryptStream reverses EncryptStream. It fails if the stream ends before its
// final chunk or continues after it.
func DecryptStream(ctx context.Context, r io.Reader, w io.Writer, dek []byte) error {
	var length [4]byte
	for index := uint64(0); ; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, length[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return ErrTruncatedStream
			}
			return fmt.Errorf("failed to read chunk length: %w", err)
		}

		size := binary.BigEndian.Uint32(length[:])
		if size == 0 {
			return fmt.Errorf("invalid chunk size: 0")
		}
		if size > maxChunkSize {
			return fmt.Errorf("chunk size %d exceeds maximum allowed size %d", size, maxChunkSize)
		}

		ciphertext := make([]byte, size)
		if _, err := io.ReadFull(r, ciphertext); err != nil {
			return ErrTruncatedStream
		}

		final := true
		plaintext, err := DecryptData(ciphertext, dek, chunkAAD(index, final))
		if err != nil {
			final = false
			plaintext, err = DecryptData(ciphertext, dek, chunkAAD(index, final))
			if err != nil {
				return fmt.Errorf("failed to decrypt chunk %d: %w", index, err)
			}
		}

		if _, err := w.Write(plaintext); err != nil {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}

		if final {
			var extra [1]byte
			if n, _ := io.ReadFull(r, extra[:]); n > 0 {
				return ErrTrailingData
			}
			return nil
		}
	}
}
