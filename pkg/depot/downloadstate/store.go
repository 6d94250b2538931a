// Package downloadstate persists the transient .download state
// records described in spec.md §3.5/§4.4: one JSON document per
// active download, written atomically (temp file then rename) and
// readable even while a transfer is in flight. Grounded on the
// write-to-incomplete-then-rename pattern in sgl-project-ome's
// pkg/hfutil/hub/download.go (downloadToTmpAndMove), adapted to
// afero so it is testable against an in-memory filesystem.
package downloadstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/modeldepot/depot/pkg/depot/identifier"
)

// Record is the on-disk shape of one .download file (spec.md §3.5).
type Record struct {
	ModelID             string    `json:"modelId"`
	TargetDirectory     string    `json:"targetDirectory"`
	DownloadingFileName string    `json:"downloadingFileName"`
	TotalSize           int64     `json:"totalSize"`
	DownloadedBytes     int64     `json:"downloadedBytes"`
	StartedAt           time.Time `json:"startedAt"`
}

// Store reads and writes Records under {models}/.downloads.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at modelsRoot's .downloads directory.
func New(fs afero.Fs, modelsRoot string) *Store {
	return &Store{fs: fs, root: filepath.Join(modelsRoot, ".downloads")}
}

func (s *Store) pathFor(id identifier.Identifier) string {
	return identifier.DownloadStatePath(filepath.Dir(s.root), id)
}

// Save atomically writes rec for the given model identifier:
// write-to-temp then rename, so readers never observe a partial file.
func (s *Store) Save(id identifier.Identifier, rec Record) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("creating download state directory: %w", err)
	}

	path := s.pathFor(id)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling download state: %w", err)
	}

	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp download state: %w", err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming download state into place: %w", err)
	}
	return nil
}

// Load reads the Record for id, returning (Record{}, false, nil) if
// absent or truncated — callers treat a corrupt record as no record
// at all rather than surfacing a read error (spec.md §4.4).
func (s *Store) Load(id identifier.Identifier) (Record, bool, error) {
	path := s.pathFor(id)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("reading download state: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Truncated or partially-written file: treat as absent.
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Delete removes the state record for id, if present.
func (s *Store) Delete(id identifier.Identifier) error {
	path := s.pathFor(id)
	err := s.fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing download state: %w", err)
	}
	return nil
}

// List enumerates every .download record currently on disk.
func (s *Store) List() ([]Record, error) {
	exists, err := afero.DirExists(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("checking download state directory: %w", err)
	}
	if !exists {
		return nil, nil
	}

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("listing download state directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".download") {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(s.root, entry.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
