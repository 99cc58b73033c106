package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/albumport/albumport/internal/ledger"
	"github.com/albumport/albumport/internal/reconcile"
	"github.com/albumport/albumport/internal/remote"
	"github.com/albumport/albumport/pkg/models"
)

// Stage identifies a progress event.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageAlbumEnsured Stage = "album-ensured"
	StageSkipped      Stage = "skipped"
	StageUploaded     Stage = "uploaded"
	StageFolderDone   Stage = "folder-done"
	StageFolderFailed Stage = "folder-failed"
)

// Event is a progress notification. File is empty for folder-level
// stages; Err is set only for StageFolderFailed.
type Event struct {
	Folder string
	File   string
	Stage  Stage
	Size   int64
	Err    error
}

// Options configures an Engine.
type Options struct {
	// Workers caps concurrent folder transfers. Remote rate limits
	// dominate, so the default is deliberately small.
	Workers int
	Logger  zerolog.Logger
}

// Engine drives queued folders through the transfer state machine:
// ensure the remote album exists (committing the album record before
// any upload), upload each unrecorded file in lexicographic order, and
// commit an upload record only after the remote confirms the file is
// attached to its album. Every checkpoint lives in the ledger, so a
// restart resumes from exactly the last committed file.
type Engine struct {
	ledger  *ledger.Ledger
	client  remote.Client
	workers int
	log     zerolog.Logger
	events  chan Event
}

// New creates an Engine. The caller must drain Events while Run is
// executing.
func New(l *ledger.Ledger, client remote.Client, opts Options) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = 3
	}
	return &Engine{
		ledger:  l,
		client:  client,
		workers: workers,
		log:     opts.Logger,
		events:  make(chan Event, 128),
	}
}

// Events returns the progress stream. It is closed when Run returns.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// errLedger marks ledger failures, which are fatal to the whole run:
// continuing without durable checkpoints could silently lose progress.
type errLedger struct{ err error }

func (e errLedger) Error() string { return e.err.Error() }
func (e errLedger) Unwrap() error { return e.err }

// Run processes the queued folders with a bounded worker pool. One
// folder's failure never blocks its siblings; cancelling ctx stops the
// dispatch of new work and lets in-flight files finish or fail
// cleanly. Returns nil when every folder completed, an aggregate
// error when some failed, or the underlying error when the ledger
// itself failed.
func (e *Engine) Run(ctx context.Context, queue []reconcile.Classification) error {
	defer close(e.events)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		failed   []string
		fatalErr error
	)

	var g errgroup.Group
	g.SetLimit(e.workers)

	for _, entry := range queue {
		if runCtx.Err() != nil {
			break
		}
		entry := entry
		g.Go(func() error {
			err := e.processFolder(runCtx, entry.Folder)
			if err == nil {
				return nil
			}

			e.emit(Event{Folder: entry.Folder.Name, Stage: StageFolderFailed, Err: err})
			e.log.Error().Err(err).Str("folder", entry.Folder.Name).Msg("folder failed")

			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, entry.Folder.Name)
			var le errLedger
			if errors.As(err, &le) && fatalErr == nil {
				fatalErr = le.err
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	if fatalErr != nil {
		return fmt.Errorf("ledger failure aborted the run: %w", fatalErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d folder(s) failed: %v", len(failed), failed)
	}
	return nil
}

// processFolder runs one folder through the state machine. Resume
// state is re-read from the ledger here rather than trusted from the
// classification, so a stale queue can never cause duplicate work.
func (e *Engine) processFolder(ctx context.Context, folder models.Folder) error {
	e.emit(Event{Folder: folder.Name, Stage: StageQueued})

	albumID, err := e.ensureAlbum(ctx, folder)
	if err != nil {
		return err
	}
	e.emit(Event{Folder: folder.Name, Stage: StageAlbumEnsured})

	uploads, err := e.ledger.Uploads(folder.Name)
	if err != nil {
		return errLedger{err}
	}

	for _, file := range folder.Files {
		if _, done := uploads[file.Fingerprint]; done {
			e.emit(Event{Folder: folder.Name, File: file.Name, Stage: StageSkipped, Size: file.Size})
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.uploadFile(ctx, albumID, file); err != nil {
			return err
		}
		e.emit(Event{Folder: folder.Name, File: file.Name, Stage: StageUploaded, Size: file.Size})
	}

	e.emit(Event{Folder: folder.Name, Stage: StageFolderDone})
	e.log.Info().Str("folder", folder.Name).Msg("folder complete")
	return nil
}

// ensureAlbum returns the folder's remote album ID, creating the album
// and committing its record first if none exists. The commit before
// any upload is the checkpoint that makes album creation idempotent
// across crashes.
func (e *Engine) ensureAlbum(ctx context.Context, folder models.Folder) (string, error) {
	rec, err := e.ledger.GetAlbum(folder.Name)
	switch {
	case err == nil && rec.AlbumID != "":
		return rec.AlbumID, nil
	case err != nil && !errors.Is(err, ledger.ErrNotFound):
		return "", errLedger{err}
	}

	albumID := remote.LibraryAlbumID
	if !folder.Library {
		albumID, err = e.client.EnsureAlbum(ctx, folder.Name)
		if err != nil {
			return "", err
		}
	}
	if err := e.ledger.PutAlbum(folder.Name, albumID); err != nil {
		return "", errLedger{err}
	}
	return albumID, nil
}

// uploadFile uploads one file, attaches it to the album, and commits
// the upload record. The record is written only after the remote
// confirms the attachment: dying in between costs one redundant
// re-upload on the next run, never a lost file.
func (e *Engine) uploadFile(ctx context.Context, albumID string, file models.SourceFile) error {
	token, err := e.client.UploadMedia(ctx, file.Path)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", file.Name, err)
	}
	mediaID, err := e.client.AddToAlbum(ctx, albumID, token)
	if err != nil {
		return fmt.Errorf("attaching %s: %w", file.Name, err)
	}
	if err := e.ledger.PutUpload(models.UploadRecord{
		Folder:      file.Folder,
		Fingerprint: file.Fingerprint,
		MediaID:     mediaID,
		Size:        file.Size,
	}); err != nil {
		return errLedger{err}
	}
	return nil
}

func (e *Engine) emit(ev Event) {
	e.events <- ev
}
