package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/albumport/albumport/pkg/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Ledger is the durable upload-tracking store. It holds one row per
// folder (albums) and one row per confirmed upload (uploads). All
// writes are single-statement atomic upserts so correctness survives
// process restarts, not just goroutine interleavings.
type Ledger struct {
	*sql.DB
}

// Open opens (creating if necessary) the ledger database at path.
func Open(path string) (*Ledger, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}

	l := &Ledger{sqlDB}
	if err := l.initialize(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initializing ledger %s: %w", path, err)
	}
	return l, nil
}

func (l *Ledger) initialize() error {
	_, err := l.Exec(`
		CREATE TABLE IF NOT EXISTS albums (
			folder TEXT PRIMARY KEY,
			album_id TEXT NOT NULL DEFAULT '',
			imported INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS uploads (
			folder TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			media_id TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			uploaded_at DATETIME NOT NULL,
			PRIMARY KEY (folder, fingerprint)
		);
		CREATE INDEX IF NOT EXISTS idx_uploads_folder ON uploads(folder);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA busy_timeout=5000;
		PRAGMA temp_store=MEMORY;
	`)
	return err
}

// GetAlbum returns the album record for a folder, or ErrNotFound.
func (l *Ledger) GetAlbum(folder string) (*models.AlbumRecord, error) {
	var rec models.AlbumRecord
	err := l.QueryRow(`
		SELECT folder, album_id, imported, created_at
		FROM albums WHERE folder = ?
	`, folder).Scan(&rec.Folder, &rec.AlbumID, &rec.Imported, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading album %q: %w", folder, err)
	}
	return &rec, nil
}

// PutAlbum records the remote album for a folder. The album ID is
// write-once: an existing non-empty ID is never overwritten.
func (l *Ledger) PutAlbum(folder, albumID string) error {
	_, err := l.Exec(`
		INSERT INTO albums (folder, album_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(folder) DO UPDATE SET album_id = excluded.album_id
		WHERE albums.album_id = ''
	`, folder, albumID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording album %q: %w", folder, err)
	}
	return nil
}

// HasUpload reports whether a confirmed upload exists for the given
// folder and fingerprint.
func (l *Ledger) HasUpload(folder, fingerprint string) (bool, error) {
	var one int
	err := l.QueryRow(`
		SELECT 1 FROM uploads WHERE folder = ? AND fingerprint = ?
	`, folder, fingerprint).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking upload %q/%q: %w", folder, fingerprint, err)
	}
	return true, nil
}

// Uploads returns all confirmed uploads for a folder keyed by
// fingerprint.
func (l *Ledger) Uploads(folder string) (map[string]models.UploadRecord, error) {
	rows, err := l.Query(`
		SELECT folder, fingerprint, media_id, size, uploaded_at
		FROM uploads WHERE folder = ?
	`, folder)
	if err != nil {
		return nil, fmt.Errorf("reading uploads for %q: %w", folder, err)
	}
	defer rows.Close()

	uploads := make(map[string]models.UploadRecord)
	for rows.Next() {
		var rec models.UploadRecord
		if err := rows.Scan(&rec.Folder, &rec.Fingerprint, &rec.MediaID, &rec.Size, &rec.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning upload row for %q: %w", folder, err)
		}
		uploads[rec.Fingerprint] = rec
	}
	return uploads, rows.Err()
}

// PutUpload commits a confirmed upload. Re-inserting the same
// (folder, fingerprint) pair is a no-op replace, so the call is
// idempotent across crash-retry windows.
func (l *Ledger) PutUpload(rec models.UploadRecord) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	_, err := l.Exec(`
		INSERT OR REPLACE INTO uploads (folder, fingerprint, media_id, size, uploaded_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Folder, rec.Fingerprint, rec.MediaID, rec.Size, rec.UploadedAt)
	if err != nil {
		return fmt.Errorf("recording upload %q/%q: %w", rec.Folder, rec.Fingerprint, err)
	}
	return nil
}

// ImportProcessed marks folders as completed by the predecessor tool.
// Existing album rows keep their album ID; only the imported flag is
// raised. Safe to call repeatedly.
func (l *Ledger) ImportProcessed(folders []string) error {
	tx, err := l.Begin()
	if err != nil {
		return fmt.Errorf("starting import transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO albums (folder, album_id, imported, created_at)
		VALUES (?, '', 1, ?)
		ON CONFLICT(folder) DO UPDATE SET imported = 1
	`)
	if err != nil {
		return fmt.Errorf("preparing import statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, folder := range folders {
		if _, err := stmt.Exec(folder, now); err != nil {
			return fmt.Errorf("importing folder %q: %w", folder, err)
		}
	}
	return tx.Commit()
}

// Stats returns aggregate ledger statistics.
func (l *Ledger) Stats() (*models.Stats, error) {
	var stats models.Stats
	err := l.QueryRow(`SELECT COUNT(*) FROM albums`).Scan(&stats.Albums)
	if err != nil {
		return nil, fmt.Errorf("counting albums: %w", err)
	}
	err = l.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(size), 0) FROM uploads
	`).Scan(&stats.UploadedFiles, &stats.UploadedSize)
	if err != nil {
		return nil, fmt.Errorf("counting uploads: %w", err)
	}
	return &stats, nil
}
