package locker

// File conventions
const (
	// EncryptedSuffix is appended to a file name by EncryptionService.EncryptFile.
	// Lockers do not enforce it; it is only the conventional name of an artifact.
	EncryptedSuffix = ".encrypted"

	// RemotePathSeparator joins the bucket path and the file name into an object key.
	RemotePathSeparator = "/"
)

// Parameter names used in argument errors
const (
	paramName       = "name"
	paramFileName   = "fileName"
	paramLockerPath = "lockerPath"
	paramBucket     = "bucketName"
	paramBucketPath = "bucketPath"
	paramFS         = "fsys"
	paramStore      = "store"
	paramDecrypter  = "decryptionService"
)

// Backend labels, used in logs and metrics
const (
	BackendFileSystem = "filesystem"
	BackendEmbedded   = "embedded"
	BackendRemote     = "remote"
)

// Environment variable names
const (
	// EnvLockerPath is the directory holding encrypted artifacts for a filesystem locker,
	// or the local cache directory for a remote locker.
	EnvLockerPath = "LOCKER_PATH"

	// EnvBucket is the object storage bucket of a remote locker.
	EnvBucket = "LOCKER_BUCKET"

	// EnvBucketPath is the key prefix inside the bucket.
	EnvBucketPath = "LOCKER_BUCKET_PATH"

	// EnvValidateBucket toggles the bucket existence check at construction. Default: true
	EnvValidateBucket = "LOCKER_VALIDATE_BUCKET"

	// EnvKMSKeyID is the KMS key alias, key id or ARN used for encryption.
	EnvKMSKeyID = "LOCKER_KMS_KEY_ID"

	// EnvKMSRegions is a comma separated list of regions the data key is wrapped under.
	EnvKMSRegions = "LOCKER_KMS_REGIONS"

	// EnvManifest points at a YAML manifest of secrets to register.
	EnvManifest = "LOCKER_MANIFEST"

	// EnvLogLevel sets the zap log level. Default: info
	EnvLogLevel = "LOCKER_LOG_LEVEL"

	// EnvEnvironment selects the logger profile ("dev" or "prod"). Default: prod
	EnvEnvironment = "LOCKER_ENV"
)

// Default values
const (
	DefaultLogLevel    = "info"
	DefaultEnvironment = "prod"
)
