package scanner

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/albumport/albumport/pkg/models"
)

// Scanner enumerates immediate child directories of a source root as
// candidate albums. Sub-sub-folders are never treated as albums; one
// level of nesting is a fixed policy, not configuration.
type Scanner struct {
	root            string
	exts            map[string]struct{}
	libraryPrefixes []string
	log             zerolog.Logger
}

// New creates a Scanner for the given root. Extensions are matched
// case-insensitively and must include the leading dot. Folders whose
// name starts with one of libraryPrefixes (case-insensitive) are
// flagged as library folders: their files upload without a dedicated
// album.
func New(root string, extensions []string, libraryPrefixes []string, log zerolog.Logger) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{
		root:            root,
		exts:            exts,
		libraryPrefixes: libraryPrefixes,
		log:             log,
	}
}

// Scan walks the root and returns one Folder per immediate child
// directory containing at least one supported media file, sorted by
// name, with each folder's files in lexicographic path order. An
// unreadable root is fatal; unreadable files are skipped and logged.
func (s *Scanner) Scan() ([]models.Folder, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading source root %s: %w", s.root, err)
	}

	var folders []models.Folder
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folder, err := s.scanFolder(entry.Name())
		if err != nil {
			return nil, err
		}
		if len(folder.Files) == 0 {
			continue
		}
		folders = append(folders, folder)
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders, nil
}

func (s *Scanner) scanFolder(name string) (models.Folder, error) {
	dir := filepath.Join(s.root, name)
	folder := models.Folder{
		Name:    name,
		Path:    dir,
		Library: s.isLibrary(name),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// The root was readable a moment ago; a vanishing or
		// unreadable child directory is skipped, not fatal.
		s.log.Warn().Err(err).Str("folder", name).Msg("skipping unreadable folder")
		return folder, nil
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := s.exts[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			s.log.Warn().Err(err).Str("file", path).Msg("skipping unreadable file")
			continue
		}
		fingerprint, err := Fingerprint(path)
		if err != nil {
			s.log.Warn().Err(err).Str("file", path).Msg("skipping unreadable file")
			continue
		}

		folder.Files = append(folder.Files, models.SourceFile{
			Path:        path,
			Folder:      name,
			Name:        entry.Name(),
			Fingerprint: fingerprint,
			Size:        info.Size(),
		})
	}

	sort.Slice(folder.Files, func(i, j int) bool {
		return folder.Files[i].Path < folder.Files[j].Path
	})
	return folder, nil
}

func (s *Scanner) isLibrary(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range s.libraryPrefixes {
		if prefix != "" && strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// Fingerprint returns the hex BLAKE2b-256 digest of the file content.
// A content hash (rather than size+mtime) keeps identity stable across
// moves, renames, and filesystem timestamp drift.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
