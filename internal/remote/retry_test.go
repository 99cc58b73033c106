package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedClient returns the queued errors in order, then succeeds.
type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) next() error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func (s *scriptedClient) EnsureAlbum(ctx context.Context, name string) (string, error) {
	if err := s.next(); err != nil {
		return "", err
	}
	return "alb-" + name, nil
}

func (s *scriptedClient) UploadMedia(ctx context.Context, path string) (string, error) {
	if err := s.next(); err != nil {
		return "", err
	}
	return "tok", nil
}

func (s *scriptedClient) AddToAlbum(ctx context.Context, albumID, token string) (string, error) {
	if err := s.next(); err != nil {
		return "", err
	}
	return "media", nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	transient := &Error{Op: "test", Code: CodeTransient, Err: errors.New("flaky")}
	inner := &scriptedClient{errs: []error{transient, transient}}

	client := WithRetry(inner, fastRetry(4))
	id, err := client.EnsureAlbum(context.Background(), "Trip")
	require.NoError(t, err)
	require.Equal(t, "alb-Trip", id)
	require.Equal(t, 3, inner.calls)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	fatal := &Error{Op: "test", Code: CodeQuotaExhausted, Err: errors.New("quota")}
	inner := &scriptedClient{errs: []error{fatal}}

	client := WithRetry(inner, fastRetry(4))
	_, err := client.UploadMedia(context.Background(), "/tmp/a.jpg")
	require.Error(t, err)
	require.Equal(t, 1, inner.calls, "fatal errors must not be retried")

	var re *Error
	require.ErrorAs(t, err, &re)
	require.Equal(t, CodeQuotaExhausted, re.Code)
}

func TestRetryExhaustsBoundedAttempts(t *testing.T) {
	rateLimited := &Error{Op: "test", Code: CodeRateLimited, Err: errors.New("429")}
	inner := &scriptedClient{errs: []error{rateLimited, rateLimited, rateLimited, rateLimited, rateLimited}}

	client := WithRetry(inner, fastRetry(3))
	_, err := client.AddToAlbum(context.Background(), "alb", "tok")
	require.Error(t, err)
	require.Equal(t, 3, inner.calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	transient := &Error{Op: "test", Code: CodeTransient, Err: errors.New("flaky")}
	inner := &scriptedClient{errs: []error{transient, transient, transient, transient}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := WithRetry(inner, fastRetry(4))
	_, err := client.EnsureAlbum(ctx, "Trip")
	require.Error(t, err)
	require.LessOrEqual(t, inner.calls, 1)
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&Error{Code: CodeTransient}))
	require.True(t, IsRetryable(&Error{Code: CodeRateLimited}))
	require.False(t, IsRetryable(&Error{Code: CodeUnauthorized}))
	require.False(t, IsRetryable(&Error{Code: CodeQuotaExhausted}))
	require.False(t, IsRetryable(&Error{Code: CodeInvalid}))
	require.False(t, IsRetryable(errors.New("plain")))
}
