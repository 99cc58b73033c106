package remote

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the exponential backoff applied to retryable
// adapter failures.
type RetryConfig struct {
	// MaxAttempts is the total number of tries per operation,
	// including the first.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     15 * time.Second,
	}
}

// WithRetry decorates a Client so each call retries retryable errors
// with bounded exponential backoff. Non-retryable errors propagate
// immediately.
func WithRetry(inner Client, cfg RetryConfig) Client {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &retryClient{inner: inner, cfg: cfg}
}

type retryClient struct {
	inner Client
	cfg   RetryConfig
}

func (r *retryClient) EnsureAlbum(ctx context.Context, name string) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.inner.EnsureAlbum(ctx, name)
	})
}

func (r *retryClient) UploadMedia(ctx context.Context, path string) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.inner.UploadMedia(ctx, path)
	})
}

func (r *retryClient) AddToAlbum(ctx context.Context, albumID, uploadToken string) (string, error) {
	return r.do(ctx, func() (string, error) {
		return r.inner.AddToAlbum(ctx, albumID, uploadToken)
	})
}

func (r *retryClient) do(ctx context.Context, fn func() (string, error)) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval
	bo.MaxInterval = r.cfg.MaxInterval

	var policy backoff.BackOff = backoff.WithMaxRetries(bo, uint64(r.cfg.MaxAttempts-1))
	policy = backoff.WithContext(policy, ctx)

	var result string
	err := backoff.Retry(func() error {
		res, err := fn()
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}, policy)
	return result, err
}
