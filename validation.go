package locker

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// requireNotBlank fails when value is empty or whitespace only.
func requireNotBlank(parameter, value string) error {
	if value == "" {
		return NewRequiredError(parameter)
	}
	if strings.TrimSpace(value) == "" {
		return NewEmptyArgumentError(parameter)
	}
	return nil
}

// requireLocalPath fails when fileName is absolute or climbs out of the
// directory it is joined to.
func requireLocalPath(fileName string) error {
	if !filepath.IsLocal(fileName) {
		return NewPathOutsideRootError(fileName)
	}
	return nil
}

// validateDirectory checks that path is an existing, readable directory.
func validateDirectory(path string) error {
	if err := requireNotBlank(paramLockerPath, path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return NewDirectoryNotFoundError(path)
	}
	dir, err := os.Open(path)
	if err != nil {
		return NewDirectoryNotReadableError(path)
	}
	defer dir.Close()
	if _, err := dir.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return NewDirectoryNotReadableError(path)
	}
	return nil
}

// validateWritableDirectory checks that a file can be created inside path.
func validateWritableDirectory(path string) error {
	tmp, err := os.CreateTemp(path, ".locker-write-*")
	if err != nil {
		return NewDirectoryNotWritableError(path)
	}
	name := tmp.Name()
	tmp.Close()
	os.Remove(name)
	return nil
}

// fileExists reports whether path names something other than a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// fsFileExists is fileExists for an fs.FS.
func fsFileExists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
