package locker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileSystemLocker resolves secrets to encrypted files under a local directory.
// Every Add must reference a file that already exists under the root.
type FileSystemLocker struct {
	*core
	root string
}

// NewFileSystemLocker creates a locker over root, which must be an existing, readable directory.
func NewFileSystemLocker(root string, decrypter DecryptionService, opts ...Option) (*FileSystemLocker, error) {
	if err := validateDirectory(root); err != nil {
		return nil, err
	}
	c, err := newCore(BackendFileSystem, decrypter, opts)
	if err != nil {
		return nil, err
	}
	c.logger.Info("locker ready", zap.String("root", root))
	return &FileSystemLocker{core: c, root: root}, nil
}

// Root returns the directory the locker was created with.
func (l *FileSystemLocker) Root() string {
	return l.root
}

func (l *FileSystemLocker) Add(name, fileName string) error {
	if err := l.validateAdd(name, fileName); err != nil {
		return err
	}
	if err := requireLocalPath(fileName); err != nil {
		return err
	}
	location := filepath.Join(l.root, fileName)
	if !fileExists(location) {
		return NewFileNotFoundError(location, nil)
	}
	l.register(name, location)
	return nil
}

func (l *FileSystemLocker) Contains(ctx context.Context, name string) (bool, error) {
	location, ok, err := l.resolve(name)
	if err != nil {
		return false, err
	}
	return ok && fileExists(location), nil
}

func (l *FileSystemLocker) Get(ctx context.Context, name string) (string, error) {
	location, ok, err := l.resolve(name)
	if err != nil {
		return "", err
	}
	if !ok || !fileExists(location) {
		return "", l.notFound(name)
	}
	ciphertext, err := os.ReadFile(location)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrLockerIO, location, err)
	}
	return l.decrypt(ctx, name, ciphertext)
}

func (l *FileSystemLocker) GetAsStructured(ctx context.Context, name string) (map[string]string, error) {
	plaintext, err := l.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return parseStructured(name, plaintext)
}
