package locker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hengadev/locker/internal/retry"
	"go.uber.org/zap"
)

// registry is the name to location mapping shared by every locker variant.
type registry struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func newRegistry() *registry {
	return &registry{secrets: make(map[string]string)}
}

// put stores location under name and reports whether an earlier mapping was replaced.
func (r *registry) put(name, location string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.secrets[name]
	r.secrets[name] = location
	return replaced
}

func (r *registry) lookup(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	location, ok := r.secrets[name]
	return location, ok
}

// core holds what the locker variants compose: bookkeeping, the decryption
// backend and the ambient logger and metrics.
type core struct {
	backend   string
	secrets   *registry
	decrypter DecryptionService
	logger    *zap.Logger
	metrics   *Metrics
	download  retry.Policy
}

func newCore(backend string, decrypter DecryptionService, opts []Option) (*core, error) {
	if decrypter == nil {
		return nil, NewRequiredError(paramDecrypter)
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &core{
		backend:   backend,
		secrets:   newRegistry(),
		decrypter: decrypter,
		logger:    o.logger.With(zap.String("backend", backend)),
		metrics:   o.metrics,
		download:  o.download,
	}, nil
}

// validateAdd checks the arguments every Add receives.
func (c *core) validateAdd(name, fileName string) error {
	if err := requireNotBlank(paramName, name); err != nil {
		return err
	}
	return requireNotBlank(paramFileName, fileName)
}

func (c *core) register(name, location string) {
	if c.secrets.put(name, location) {
		c.logger.Debug("secret mapping replaced", zap.String("name", name), zap.String("location", location))
		return
	}
	c.logger.Debug("secret added", zap.String("name", name), zap.String("location", location))
}

// resolve returns the location registered for name after validating it.
func (c *core) resolve(name string) (string, bool, error) {
	if err := requireNotBlank(paramName, name); err != nil {
		return "", false, err
	}
	location, ok := c.secrets.lookup(name)
	return location, ok, nil
}

// notFound records a failed lookup and returns the matching error.
func (c *core) notFound(name string) error {
	c.metrics.observeLookup(c.backend, outcomeNotFound)
	return NewSecretNotFoundError(name)
}

// decrypt hands ciphertext to the decryption backend.
func (c *core) decrypt(ctx context.Context, name string, ciphertext []byte) (string, error) {
	start := time.Now()
	plaintext, err := c.decrypter.Decrypt(ctx, ciphertext)
	c.metrics.observeDecrypt(c.backend, time.Since(start))
	if err != nil {
		c.metrics.observeLookup(c.backend, outcomeError)
		return "", fmt.Errorf("decrypt secret %s: %w", name, err)
	}
	c.metrics.observeLookup(c.backend, outcomeFound)
	return string(plaintext), nil
}
