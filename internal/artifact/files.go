// Package artifact reads and writes encrypted artifacts on the local filesystem
// for the encryption providers.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hengadev/locker"
	"github.com/hengadev/locker/internal/envelope"
)

// CheckEncryptable verifies that path is a readable regular file whose
// directory accepts new files.
func CheckEncryptable(path string) error {
	if path == "" {
		return locker.NewRequiredError("path")
	}
	if strings.TrimSpace(path) == "" {
		return locker.NewEmptyArgumentError("path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: file does not exist: %s", locker.ErrInvalidArgument, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file: %s", locker.ErrInvalidArgument, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: file is not readable: %s", locker.ErrInvalidArgument, path)
	}
	f.Close()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".locker-write-*")
	if err != nil {
		return locker.NewDirectoryNotWritableError(dir)
	}
	name := tmp.Name()
	tmp.Close()
	os.Remove(name)
	return nil
}

// SealFile encrypts path into path+locker.EncryptedSuffix and returns the new path.
func SealFile(ctx context.Context, wrapper envelope.KeyWrapper, path string) (string, error) {
	if err := CheckEncryptable(path); err != nil {
		return "", err
	}
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", locker.ErrEncryptionFailed, err)
	}
	defer src.Close()

	target := path + locker.EncryptedSuffix
	err = WriteAtomic(target, func(w io.Writer) error {
		return envelope.Seal(ctx, wrapper, src, w)
	})
	if err != nil {
		return "", fmt.Errorf("%w: encrypt %s: %w", locker.ErrEncryptionFailed, path, err)
	}
	return target, nil
}

// OpenFile decrypts encryptedPath into decryptedPath.
func OpenFile(ctx context.Context, unwrapper envelope.KeyUnwrapper, encryptedPath, decryptedPath string) error {
	if encryptedPath == "" {
		return locker.NewRequiredError("encryptedPath")
	}
	if decryptedPath == "" {
		return locker.NewRequiredError("decryptedPath")
	}
	src, err := os.Open(encryptedPath)
	if err != nil {
		return locker.NewFileNotFoundError(encryptedPath, err)
	}
	defer src.Close()

	err = WriteAtomic(decryptedPath, func(w io.Writer) error {
		return envelope.Open(ctx, unwrapper, src, w)
	})
	if err != nil {
		return fmt.Errorf("%w: decrypt %s: %w", locker.ErrDecryptionFailed, encryptedPath, err)
	}
	return nil
}

// ReadFile decrypts encryptedPath and returns its plaintext.
func ReadFile(ctx context.Context, unwrapper envelope.KeyUnwrapper, encryptedPath string) ([]byte, error) {
	if encryptedPath == "" {
		return nil, locker.NewRequiredError("encryptedPath")
	}
	data, err := os.ReadFile(encryptedPath)
	if err != nil {
		return nil, locker.NewFileNotFoundError(encryptedPath, err)
	}
	plaintext, err := envelope.OpenBytes(ctx, unwrapper, data)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt %s: %w", locker.ErrDecryptionFailed, encryptedPath, err)
	}
	return plaintext, nil
}

// WriteAtomic writes target through a temporary file in the same directory
// and renames it into place once fill succeeds. On failure target is untouched.
func WriteAtomic(target string, fill func(w io.Writer) error) error {
	dir, base := filepath.Split(target)
	if dir == "" {
		dir = "."
	}
	tmp := filepath.Join(dir, "."+base+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
