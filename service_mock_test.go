package locker

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// DecryptionServiceMock is a mock implementation of the DecryptionService
// interface for testing purposes. It uses testify/mock for easy setup and verification.
type DecryptionServiceMock struct {
	mock.Mock
}

func NewDecryptionServiceMock() *DecryptionServiceMock {
	return &DecryptionServiceMock{}
}

func (m *DecryptionServiceMock) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	args := m.Called(ctx, ciphertext)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *DecryptionServiceMock) DecryptFile(ctx context.Context, encryptedPath, decryptedPath string) error {
	args := m.Called(ctx, encryptedPath, decryptedPath)
	return args.Error(0)
}

func (m *DecryptionServiceMock) DecryptFileContent(ctx context.Context, encryptedPath string) (string, error) {
	args := m.Called(ctx, encryptedPath)
	return args.String(0), args.Error(1)
}

func (m *DecryptionServiceMock) DecryptValue(ctx context.Context, ciphertext string) (string, error) {
	args := m.Called(ctx, ciphertext)
	return args.String(0), args.Error(1)
}

// ObjectStoreMock is a testify/mock implementation of ObjectStore.
// Download writes the second return argument, when it is a string, to w.
type ObjectStoreMock struct {
	mock.Mock
}

func NewObjectStoreMock() *ObjectStoreMock {
	return &ObjectStoreMock{}
}

func (m *ObjectStoreMock) BucketExists(ctx context.Context, bucket string) (bool, error) {
	args := m.Called(ctx, bucket)
	return args.Bool(0), args.Error(1)
}

func (m *ObjectStoreMock) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

func (m *ObjectStoreMock) Download(ctx context.Context, bucket, key string, w io.Writer) error {
	args := m.Called(ctx, bucket, key, w)
	if content, ok := args.Get(1).(string); ok {
		if _, err := io.WriteString(w, content); err != nil {
			return err
		}
	}
	return args.Error(0)
}
