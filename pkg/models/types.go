package models

import "time"

// FolderState classifies a source folder against the ledger.
type FolderState string

const (
	FolderNotStarted FolderState = "not-started"
	FolderInProgress FolderState = "in-progress"
	FolderComplete   FolderState = "complete"
)

// SourceFile is a single media file discovered by the scanner.
// Identity is the absolute path; the fingerprint identifies the
// content across runs and renames.
type SourceFile struct {
	Path        string // absolute path on disk
	Folder      string // name of the containing folder
	Name        string // base name
	Fingerprint string // hex BLAKE2b-256 of the file content
	Size        int64
}

// Folder is one immediate child directory of the source root that
// contains at least one supported media file. Files are ordered
// lexicographically by path.
type Folder struct {
	Name    string
	Path    string
	Files   []SourceFile
	Library bool // upload to the library root, no dedicated album
}

// TotalSize returns the byte size of all files in the folder.
func (f Folder) TotalSize() int64 {
	var total int64
	for _, sf := range f.Files {
		total += sf.Size
	}
	return total
}

// AlbumRecord is the ledger row for a folder. AlbumID is empty until
// the remote album has been created; once set it is never changed.
type AlbumRecord struct {
	Folder    string
	AlbumID   string
	Imported  bool // marked complete by a legacy state import
	CreatedAt time.Time
}

// UploadRecord is the ledger row for a confirmed upload. A row exists
// iff the file was uploaded and associated with its album; absence
// means the file must be (re)attempted.
type UploadRecord struct {
	Folder      string
	Fingerprint string
	MediaID     string
	Size        int64
	UploadedAt  time.Time
}
