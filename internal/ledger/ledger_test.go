package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albumport/albumport/pkg/models"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAlbumRoundTrip(t *testing.T) {
	l := openTestLedger(t)

	_, err := l.GetAlbum("Trip2019")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.PutAlbum("Trip2019", "alb-1"))

	rec, err := l.GetAlbum("Trip2019")
	require.NoError(t, err)
	require.Equal(t, "Trip2019", rec.Folder)
	require.Equal(t, "alb-1", rec.AlbumID)
	require.False(t, rec.Imported)
	require.False(t, rec.CreatedAt.IsZero())
}

func TestAlbumIDIsWriteOnce(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.PutAlbum("Trip2019", "alb-1"))
	require.NoError(t, l.PutAlbum("Trip2019", "alb-2"))

	rec, err := l.GetAlbum("Trip2019")
	require.NoError(t, err)
	require.Equal(t, "alb-1", rec.AlbumID, "an album ID, once set, must never change")
}

func TestUploadCommitIsIdempotent(t *testing.T) {
	l := openTestLedger(t)

	rec := models.UploadRecord{
		Folder:      "Trip2019",
		Fingerprint: "fp-a",
		MediaID:     "m-1",
		Size:        1024,
	}
	require.NoError(t, l.PutUpload(rec))
	require.NoError(t, l.PutUpload(rec))

	uploads, err := l.Uploads("Trip2019")
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	require.Equal(t, "m-1", uploads["fp-a"].MediaID)

	ok, err := l.HasUpload("Trip2019", "fp-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.HasUpload("Trip2019", "fp-b")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUploadsScopedByFolder(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.PutUpload(models.UploadRecord{Folder: "A", Fingerprint: "fp-1", MediaID: "m-1"}))
	require.NoError(t, l.PutUpload(models.UploadRecord{Folder: "B", Fingerprint: "fp-1", MediaID: "m-2"}))

	uploads, err := l.Uploads("A")
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	require.Equal(t, "m-1", uploads["fp-1"].MediaID)
}

func TestImportProcessed(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.PutAlbum("Existing", "alb-1"))
	require.NoError(t, l.ImportProcessed([]string{"Existing", "Legacy2018"}))

	rec, err := l.GetAlbum("Existing")
	require.NoError(t, err)
	require.True(t, rec.Imported)
	require.Equal(t, "alb-1", rec.AlbumID, "import must not clobber an existing album ID")

	rec, err = l.GetAlbum("Legacy2018")
	require.NoError(t, err)
	require.True(t, rec.Imported)
	require.Empty(t, rec.AlbumID)

	// Importing again is a no-op.
	require.NoError(t, l.ImportProcessed([]string{"Legacy2018"}))
	stats, err := l.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Albums)
}

func TestStats(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.PutAlbum("A", "alb-1"))
	require.NoError(t, l.PutUpload(models.UploadRecord{Folder: "A", Fingerprint: "fp-1", MediaID: "m-1", Size: 100}))
	require.NoError(t, l.PutUpload(models.UploadRecord{Folder: "A", Fingerprint: "fp-2", MediaID: "m-2", Size: 200}))

	stats, err := l.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Albums)
	require.EqualValues(t, 2, stats.UploadedFiles)
	require.EqualValues(t, 300, stats.UploadedSize)
}
