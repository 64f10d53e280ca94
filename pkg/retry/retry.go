package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultInterval    = 5 * time.Second
)

type Operation func() error

type ContextOperation func(ctx context.Context) error

type ExponentialConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxAttempts bounds the total number of calls, 0 means unbounded
	MaxAttempts int
	OnRetry     func(error, time.Duration)
}

// Permanent wraps err so that no further attempt is made.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func Exponential(fn Operation, cfg ExponentialConfig) error {
	return ExponentialContext(context.Background(), func(context.Context) error { return fn() }, cfg)
}

// ExponentialContext retries fn with exponential backoff until it succeeds, returns a
// Permanent error, runs out of attempts or ctx is done. The last error is returned.
func ExponentialContext(ctx context.Context, fn ContextOperation, cfg ExponentialConfig) error {
	if cfg.InitialInterval <= 0 {
		return errors.New("initial interval must be > 0")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	if cfg.MaxInterval > 0 {
		bo.MaxInterval = cfg.MaxInterval
	}
	if cfg.MaxElapsedTime > 0 {
		bo.MaxElapsedTime = cfg.MaxElapsedTime
	}

	var b backoff.BackOff = bo
	if cfg.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotify(func() error { return fn(ctx) }, b, func(err error, next time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(err, next)
		}
	})
}

func Constant(fn Operation, interval time.Duration, attempts int) error {
	return ConstantContext(context.Background(), func(context.Context) error { return fn() }, interval, attempts)
}

// ConstantContext calls fn up to attempts times, sleeping interval between calls.
func ConstantContext(ctx context.Context, fn ContextOperation, interval time.Duration, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if i < attempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w after %d attempts: %w", ctx.Err(), i, err)
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
