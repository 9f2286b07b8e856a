package locker

import (
	"errors"
	"fmt"
)

var (
	// Argument errors
	ErrInvalidArgument = errors.New("invalid argument")

	// Lookup errors
	ErrSecretNotFound = errors.New("the secret was not found in the locker")

	// Crypto errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Capability errors
	ErrUnsupported = errors.New("operation not supported")

	// Structured secret errors
	ErrParseFailure = errors.New("could not create properties from decrypted secret")

	// Storage errors
	ErrLockerIO = errors.New("locker i/o failure")
)

func NewRequiredError(parameter string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidArgument, parameter)
}

func NewEmptyArgumentError(parameter string) error {
	return fmt.Errorf("%w: %s can not be empty", ErrInvalidArgument, parameter)
}

func NewDirectoryNotFoundError(path string) error {
	return fmt.Errorf("%w: directory does not exist: %s", ErrInvalidArgument, path)
}

func NewDirectoryNotReadableError(path string) error {
	return fmt.Errorf("%w: directory is not readable: %s", ErrInvalidArgument, path)
}

func NewDirectoryNotWritableError(path string) error {
	return fmt.Errorf("%w: the locker path is not writable: %s", ErrInvalidArgument, path)
}

func NewFileNotFoundError(path string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: file does not exist: %s: %w", ErrInvalidArgument, path, cause)
	}
	return fmt.Errorf("%w: file does not exist: %s", ErrInvalidArgument, path)
}

func NewPathOutsideRootError(fileName string) error {
	return fmt.Errorf("%w: file name must be a relative path inside the locker: %s", ErrInvalidArgument, fileName)
}

func NewBucketNotFoundError(bucket string) error {
	return fmt.Errorf("%w: the bucket does not exist: %s", ErrInvalidArgument, bucket)
}

func NewSecretNotFoundError(name string) error {
	return fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

func NewUnsupportedError(operation string) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, operation)
}

func NewDownloadError(key string, cause error) error {
	return fmt.Errorf("%w: failed to download %s: %w", ErrLockerIO, key, cause)
}

// IsArgumentError reports whether err is a precondition violation on a public operation.
func IsArgumentError(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsNotFoundError reports whether err means the requested secret has no resolvable artifact.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSecretNotFound)
}

// IsCryptoError reports whether err came from the encryption or decryption backend.
func IsCryptoError(err error) bool {
	return errors.Is(err, ErrEncryptionFailed) ||
		errors.Is(err, ErrDecryptionFailed)
}

// IsUnsupportedError reports whether err signals an absent capability rather than a failure.
func IsUnsupportedError(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsIOError reports whether err is a storage failure wrapped by the locker.
func IsIOError(err error) bool {
	return errors.Is(err, ErrLockerIO)
}
