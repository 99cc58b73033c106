package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func setPhotosEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ALBUMPORT_BACKEND", "photos")
	t.Setenv("ALBUMPORT_ACCESS_TOKEN", "tok-123")
}

func TestLoadDefaults(t *testing.T) {
	setPhotosEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendPhotos, cfg.Backend)
	require.Equal(t, "albumport.db", cfg.LedgerPath)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 4, cfg.MaxAttempts)
	require.Contains(t, cfg.Extensions, ".jpg")
	require.Contains(t, cfg.Extensions, ".webp")
	require.Equal(t, []string{"photos from "}, cfg.LibraryPrefixes)
}

func TestLoadPhotosRequiresCredentials(t *testing.T) {
	t.Setenv("ALBUMPORT_BACKEND", "photos")
	t.Setenv("ALBUMPORT_ACCESS_TOKEN", "")
	t.Setenv("ALBUMPORT_OAUTH_REFRESH_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRefreshTokenNeedsClientID(t *testing.T) {
	t.Setenv("ALBUMPORT_BACKEND", "photos")
	t.Setenv("ALBUMPORT_OAUTH_REFRESH_TOKEN", "refresh-1")
	t.Setenv("ALBUMPORT_OAUTH_CLIENT_ID", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadS3Backend(t *testing.T) {
	t.Setenv("ALBUMPORT_BACKEND", "s3")
	t.Setenv("ALBUMPORT_S3_ENDPOINT", "minio.local:9000")
	t.Setenv("ALBUMPORT_S3_BUCKET", "photos")
	t.Setenv("ALBUMPORT_S3_ACCESS_KEY", "ak")
	t.Setenv("ALBUMPORT_S3_SECRET_KEY", "sk")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, BackendS3, cfg.Backend)
	require.True(t, cfg.S3Secure)
}

func TestLoadS3BackendMissingBucket(t *testing.T) {
	t.Setenv("ALBUMPORT_BACKEND", "s3")
	t.Setenv("ALBUMPORT_S3_ENDPOINT", "minio.local:9000")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadUnknownBackend(t *testing.T) {
	t.Setenv("ALBUMPORT_BACKEND", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadInvalidWorkers(t *testing.T) {
	setPhotosEnv(t)
	t.Setenv("ALBUMPORT_WORKERS", "0")

	_, err := Load()
	require.Error(t, err)
}

func TestStaticTokenSource(t *testing.T) {
	setPhotosEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	tok, err := cfg.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.Equal(t, "tok-123", tok.AccessToken)
}
