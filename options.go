package locker

import (
	"fmt"
	"time"

	"github.com/hengadev/locker/internal/retry"
	"go.uber.org/zap"
)

type Option func(o *options) error

type options struct {
	logger   *zap.Logger
	metrics  *Metrics
	download retry.Policy
}

// WithLogger sets the logger used by a locker. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return NewRequiredError("logger")
		}
		o.logger = logger
		return nil
	}
}

// WithMetrics records lookups, downloads and decrypt latency in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithDownloadRetry makes a RemoteLocker try a failed download up to attempts
// times, waiting initialDelay before the first retry and twice as long before
// each following one. By default a failed download is reported immediately and
// retried on the next read.
func WithDownloadRetry(attempts int, initialDelay time.Duration) Option {
	return func(o *options) error {
		if attempts < 1 {
			return fmt.Errorf("%w: download attempts must be at least 1, got %d", ErrInvalidArgument, attempts)
		}
		p := retry.DefaultPolicy()
		p.MaxAttempts = attempts
		if initialDelay > 0 {
			p.InitialDelay = initialDelay
		}
		o.download = p
		return nil
	}
}

// loggerGiven reports whether opts include WithLogger.
func loggerGiven(opts []Option) bool {
	var o options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return false
		}
	}
	return o.logger != nil
}

func applyOptions(opts []Option) (options, error) {
	o := options{logger: zap.NewNop(), download: retry.Once()}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return options{}, err
		}
	}
	return o, nil
}
