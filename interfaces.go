package locker

import (
	"context"
	"io"
)

// Locker maps secret names to encrypted artifacts and decrypts them on demand.
//
// Implementations:
//   - FileSystemLocker: artifacts under a local directory
//   - EmbeddedLocker: artifacts inside an fs.FS, typically an embed.FS
//   - RemoteLocker: artifacts in object storage, cached under a local directory
//
// Example usage:
//
//	l, err := locker.NewFileSystemLocker("/etc/myapp/secrets", decrypter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := l.Add("db", "db.properties.encrypted"); err != nil {
//	    log.Fatal(err)
//	}
//	props, err := l.GetAsStructured(ctx, "db")
type Locker interface {
	// Add registers fileName under name. Adding an existing name replaces its mapping.
	Add(name, fileName string) error

	// Contains reports whether name is registered and its artifact can currently be resolved.
	Contains(ctx context.Context, name string) (bool, error)

	// Get returns the decrypted plaintext of the named secret.
	// Plaintext is never cached; every call decrypts again.
	Get(ctx context.Context, name string) (string, error)

	// GetAsStructured decrypts the named secret and parses it as properties text.
	GetAsStructured(ctx context.Context, name string) (map[string]string, error)
}

// EncryptionService defines the contract for producing encrypted artifacts.
//
// Implementations may return ErrUnsupported from EncryptValue when they only
// work on files. Every other failure wraps ErrEncryptionFailed or ErrInvalidArgument.
type EncryptionService interface {
	// EncryptValue encrypts a single value and returns a printable ciphertext.
	EncryptValue(ctx context.Context, plaintext string) (string, error)

	// EncryptFile encrypts the file at path and writes path+EncryptedSuffix next to it.
	// It returns the path of the encrypted artifact.
	EncryptFile(ctx context.Context, path string) (string, error)
}

// DecryptionService defines the contract lockers delegate to.
//
// Implementations must be safe for concurrent use; a single instance is
// normally shared by every locker in the process.
type DecryptionService interface {
	// Decrypt returns the plaintext of an encrypted artifact held in memory.
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)

	// DecryptFile decrypts encryptedPath into decryptedPath.
	DecryptFile(ctx context.Context, encryptedPath, decryptedPath string) error

	// DecryptFileContent decrypts encryptedPath and returns its content.
	DecryptFileContent(ctx context.Context, encryptedPath string) (string, error)

	// DecryptValue reverses EncryptValue. It may return ErrUnsupported.
	DecryptValue(ctx context.Context, ciphertext string) (string, error)
}

// ObjectStore is the remote storage a RemoteLocker reads artifacts from.
//
// Implementations:
//   - AWS S3: github.com/hengadev/locker/providers/s3.Store
type ObjectStore interface {
	// BucketExists reports whether the bucket exists and is reachable.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// ObjectExists reports whether key exists in bucket. A missing object is not an error.
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)

	// Download copies the object content to w.
	Download(ctx context.Context, bucket, key string, w io.Writer) error
}
