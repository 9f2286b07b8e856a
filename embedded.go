package locker

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// EmbeddedLocker resolves secrets to encrypted resources bundled with the binary.
//
// The resources come from an fs.FS, normally an embed.FS:
//
//	//go:embed secrets
//	var secrets embed.FS
//
//	l, err := locker.NewEmbeddedLocker(secrets, decrypter)
//	err = l.Add("api", "secrets/api.properties.encrypted")
//
// There is no physical root directory, so nothing is validated at construction
// beyond the presence of fsys.
type EmbeddedLocker struct {
	*core
	fsys fs.FS
}

func NewEmbeddedLocker(fsys fs.FS, decrypter DecryptionService, opts ...Option) (*EmbeddedLocker, error) {
	if fsys == nil {
		return nil, NewRequiredError(paramFS)
	}
	c, err := newCore(BackendEmbedded, decrypter, opts)
	if err != nil {
		return nil, err
	}
	return &EmbeddedLocker{core: c, fsys: fsys}, nil
}

// Add resolves fileName inside the embedded resources. A missing, unreadable or
// malformed resource name fails with ErrInvalidArgument wrapping the cause.
func (l *EmbeddedLocker) Add(name, fileName string) error {
	if err := l.validateAdd(name, fileName); err != nil {
		return err
	}
	location := path.Clean(strings.TrimPrefix(fileName, "/"))
	info, err := fs.Stat(l.fsys, location)
	if err != nil {
		return NewFileNotFoundError(fileName, err)
	}
	if info.IsDir() {
		return NewFileNotFoundError(fileName, fmt.Errorf("%s is a directory", location))
	}
	l.register(name, location)
	return nil
}

func (l *EmbeddedLocker) Contains(ctx context.Context, name string) (bool, error) {
	location, ok, err := l.resolve(name)
	if err != nil {
		return false, err
	}
	return ok && fsFileExists(l.fsys, location), nil
}

func (l *EmbeddedLocker) Get(ctx context.Context, name string) (string, error) {
	location, ok, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if !ok || !fsFileExists(l.fsys, location) {
		return "", l.notFound(name)
	}
	ciphertext, err := fs.ReadFile(l.fsys, location)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrLockerIO, location, err)
	}
	return l.decrypt(ctx, name, ciphertext)
}

func (l *EmbeddedLocker) GetAsStructured(ctx context.Context, name string) (map[string]string, error) {
	plaintext, err := l.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return parseStructured(name, plaintext)
}
