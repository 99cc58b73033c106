package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// S3Client implements the adapter contract against an S3-compatible
// bucket. Albums are key prefixes; UploadMedia stages the object under
// a hidden prefix and AddToAlbum moves it into place, mirroring the
// token-then-attach shape of the photo-library API so the engine's
// commit ordering holds for both backends.
type S3Client struct {
	mc     *minio.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Client creates an S3Client from config.
func NewS3Client(cfg S3Config, log zerolog.Logger) (*S3Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       "auto",
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing s3 client: %w", err)
	}
	return &S3Client{
		mc:     mc,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		log:    log,
	}, nil
}

const stagingPrefix = ".staging"

// EnsureAlbum ensures the bucket exists and returns the album's key
// prefix. Creating the same album twice yields the same prefix, so the
// call is naturally idempotent.
func (c *S3Client) EnsureAlbum(ctx context.Context, name string) (string, error) {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return "", s3Error("s3.EnsureAlbum", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", s3Error("s3.EnsureAlbum", err)
		}
	}
	return path.Join(c.prefix, name), nil
}

// UploadMedia stages the file under the staging prefix and returns the
// staging key as the upload token. The original base name is kept in
// the key so AddToAlbum can restore it.
func (c *S3Client) UploadMedia(ctx context.Context, filePath string) (string, error) {
	token := path.Join(c.prefix, stagingPrefix, uuid.NewString(), filepath.Base(filePath))
	_, err := c.mc.FPutObject(ctx, c.bucket, token, filePath, minio.PutObjectOptions{})
	if err != nil {
		return "", s3Error("s3.UploadMedia", err)
	}
	return token, nil
}

// AddToAlbum moves a staged object into its album prefix (or the root
// prefix for LibraryAlbumID) and returns the final object key as the
// media ID.
func (c *S3Client) AddToAlbum(ctx context.Context, albumID, uploadToken string) (string, error) {
	dir := albumID
	if albumID == LibraryAlbumID {
		dir = c.prefix
	}
	key := path.Join(dir, path.Base(uploadToken))

	_, err := c.mc.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: c.bucket, Object: key},
		minio.CopySrcOptions{Bucket: c.bucket, Object: uploadToken},
	)
	if err != nil {
		return "", s3Error("s3.AddToAlbum", err)
	}
	if err := c.mc.RemoveObject(ctx, c.bucket, uploadToken, minio.RemoveObjectOptions{}); err != nil {
		// The copy committed; a leaked staging object is harmless.
		c.log.Warn().Err(err).Str("key", uploadToken).Msg("failed to remove staged object")
	}
	return key, nil
}

// s3Error maps a minio error to the adapter taxonomy.
func s3Error(op string, err error) *Error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "SlowDown" || resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Op: op, Code: CodeRateLimited, Err: err}
	case resp.Code == "AccessDenied" || resp.Code == "InvalidAccessKeyId" || resp.Code == "SignatureDoesNotMatch":
		return &Error{Op: op, Code: CodeUnauthorized, Err: err}
	case resp.Code == "QuotaExceeded":
		return &Error{Op: op, Code: CodeQuotaExhausted, Err: err}
	case resp.StatusCode >= 500, resp.StatusCode == 0 && !errors.Is(err, context.Canceled):
		return &Error{Op: op, Code: CodeTransient, Err: err}
	default:
		return &Error{Op: op, Code: CodeInvalid, Err: err}
	}
}
