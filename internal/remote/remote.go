package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// LibraryAlbumID is the reserved album identifier for media uploaded
// to the library root without a dedicated album.
const LibraryAlbumID = "library"

// Client is the three-call contract the transfer engine drives. Exact
// wire formats are the adapter's concern; the engine only sees opaque
// identifiers and classified errors.
type Client interface {
	// EnsureAlbum finds or creates a remote album with the given
	// title and returns its identifier. Must be idempotent: calling
	// it again with the same title returns the same album where the
	// backend supports lookup.
	EnsureAlbum(ctx context.Context, name string) (string, error)

	// UploadMedia uploads the raw bytes of the file at path and
	// returns a transient upload token.
	UploadMedia(ctx context.Context, path string) (string, error)

	// AddToAlbum attaches a previously uploaded token to an album
	// (or the library root for LibraryAlbumID) and returns the
	// permanent media identifier.
	AddToAlbum(ctx context.Context, albumID, uploadToken string) (string, error)
}

// ErrorCode classifies adapter failures for retry decisions.
type ErrorCode string

const (
	CodeTransient      ErrorCode = "transient"
	CodeRateLimited    ErrorCode = "rate-limited"
	CodeUnauthorized   ErrorCode = "unauthorized"
	CodeQuotaExhausted ErrorCode = "quota-exhausted"
	CodeInvalid        ErrorCode = "invalid"
)

// Error is a classified remote failure. Transient and rate-limited
// errors are worth retrying with backoff; the rest abort the current
// folder.
type Error struct {
	Op   string
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the operation may succeed on retry.
func (e *Error) Retryable() bool {
	return e.Code == CodeTransient || e.Code == CodeRateLimited
}

// IsRetryable reports whether err is a retryable remote error.
// Unclassified errors are treated as non-retryable.
func IsRetryable(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Retryable()
}

// CredentialSource supplies a bearer credential for the remote API.
// How the credential was minted (interactive consent, a stored refresh
// token) is the caller's concern.
type CredentialSource interface {
	// Token returns a currently valid bearer token, refreshing a
	// cached expired one if needed.
	Token(ctx context.Context) (string, error)

	// Refresh discards any cached token and obtains a fresh one.
	// Used when the server rejects a token before its recorded
	// expiry.
	Refresh(ctx context.Context) (string, error)
}

// OAuthCredentials adapts an oauth2.TokenSource to CredentialSource,
// caching the current token and re-deriving it on Refresh.
type OAuthCredentials struct {
	mu  sync.Mutex
	src oauth2.TokenSource
	cur *oauth2.Token
}

// NewOAuthCredentials wraps a token source. Pass the raw (non-caching)
// source; caching happens here so Refresh can bypass it.
func NewOAuthCredentials(src oauth2.TokenSource) *OAuthCredentials {
	return &OAuthCredentials{src: src}
}

func (c *OAuthCredentials) Token(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur.Valid() {
		return c.cur.AccessToken, nil
	}
	return c.fetchLocked()
}

func (c *OAuthCredentials) Refresh(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = nil
	return c.fetchLocked()
}

func (c *OAuthCredentials) fetchLocked() (string, error) {
	tok, err := c.src.Token()
	if err != nil {
		return "", &Error{Op: "remote.Token", Code: CodeUnauthorized, Err: err}
	}
	c.cur = tok
	return tok.AccessToken, nil
}
