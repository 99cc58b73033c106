package reconcile

import (
	"errors"
	"fmt"

	"github.com/albumport/albumport/internal/ledger"
	"github.com/albumport/albumport/pkg/models"
)

// Classification joins one scanned folder against the ledger. Pending
// holds the files with no matching upload record, in the scanner's
// lexicographic order; it is exactly the work remaining for the
// transfer engine.
type Classification struct {
	Folder   models.Folder
	State    models.FolderState
	AlbumID  string
	Pending  []models.SourceFile
	Uploaded int
}

// Classify maps each scanned folder to its resumption state:
//
//   - NotStarted: no album record exists.
//   - InProgress: an album record exists and at least one file lacks
//     an upload record.
//   - Complete: an album record exists and every file has an upload
//     record, or the folder was imported from legacy state.
//
// Read-only against the ledger and safe to call repeatedly; the queue
// is recomputed from first principles on every run, so no separate
// resume pointer is ever persisted.
func Classify(l *ledger.Ledger, folders []models.Folder) ([]Classification, error) {
	out := make([]Classification, 0, len(folders))
	for _, folder := range folders {
		c := Classification{Folder: folder}

		album, err := l.GetAlbum(folder.Name)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			c.State = models.FolderNotStarted
			c.Pending = folder.Files
			out = append(out, c)
			continue
		case err != nil:
			return nil, err
		}

		c.AlbumID = album.AlbumID
		if album.Imported {
			c.State = models.FolderComplete
			c.Uploaded = len(folder.Files)
			out = append(out, c)
			continue
		}

		uploads, err := l.Uploads(folder.Name)
		if err != nil {
			return nil, err
		}
		for _, file := range folder.Files {
			if _, ok := uploads[file.Fingerprint]; ok {
				c.Uploaded++
			} else {
				c.Pending = append(c.Pending, file)
			}
		}
		if len(c.Pending) == 0 {
			c.State = models.FolderComplete
		} else {
			c.State = models.FolderInProgress
		}
		out = append(out, c)
	}
	return out, nil
}

// Select returns the classifications for the caller-chosen folder
// names, in the order given; with no names, every incomplete folder is
// queued. Unknown names are an error; already-complete folders are
// filtered out (re-running them would be a no-op).
func Select(classifications []Classification, names []string) ([]Classification, error) {
	if len(names) == 0 {
		var queue []Classification
		for _, c := range classifications {
			if c.State != models.FolderComplete {
				queue = append(queue, c)
			}
		}
		return queue, nil
	}

	byName := make(map[string]Classification, len(classifications))
	for _, c := range classifications {
		byName[c.Folder.Name] = c
	}

	var queue []Classification
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("folder %q not found in scan results", name)
		}
		if c.State == models.FolderComplete {
			continue
		}
		queue = append(queue, c)
	}
	return queue, nil
}
