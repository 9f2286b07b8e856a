// Package locker maps human-readable secret names to encrypted artifacts and
// decrypts them on demand.
//
// A locker never stores plaintext. It keeps a name to location mapping, resolves
// the location to encrypted bytes when a secret is requested, and hands those
// bytes to a DecryptionService. Three storage backends share the same Locker
// contract:
//
//   - FileSystemLocker: artifacts are files under a local directory
//   - EmbeddedLocker: artifacts are bundled in the binary through an fs.FS
//   - RemoteLocker: artifacts are objects in a bucket, downloaded lazily into
//     a local cache directory
//
// # Encryption backends
//
// Artifacts are produced by an EncryptionService and read back by a
// DecryptionService. The providers/awskms package implements both with
// multi-region envelope encryption: each artifact carries a data key wrapped
// under the KMS key of every configured region, so it can be decrypted as long
// as any one of those regions is reachable. providers/vaulttransit does the
// same with a HashiCorp Vault Transit key.
//
// # Quick Start
//
//	dec, err := awskms.NewDecryptionService(ctx, awskms.DecryptionConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l, err := locker.NewFileSystemLocker("/etc/myapp/secrets", dec)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := l.Add("db", "db.properties.encrypted"); err != nil {
//	    log.Fatal(err)
//	}
//
//	props, err := l.GetAsStructured(ctx, "db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dsn := props["dsn"]
//
// # Remote lockers
//
//	store, err := s3.New(ctx, s3.Config{Region: "us-east-1"})
//	l, err := locker.NewRemoteLocker(ctx, store, dec, locker.RemoteConfig{
//	    Bucket:     "myapp-secrets",
//	    BucketPath: "prod",
//	    LocalPath:  "/var/cache/myapp",
//	})
//	defer l.Close()
//
// # Errors
//
// Failures wrap one of the sentinel errors (ErrInvalidArgument,
// ErrSecretNotFound, ErrEncryptionFailed, ErrDecryptionFailed, ErrUnsupported,
// ErrParseFailure, ErrLockerIO); test them with errors.Is or the IsXxxError
// helpers. Only remote downloads are retried, and only when WithDownloadRetry
// is given.
//
// # Testing
//
// The lockertest package provides an in-memory Crypto implementing both
// services and a MemoryStore implementing ObjectStore.
package locker
