package repository

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/identifier"
	"github.com/modeldepot/depot/pkg/logging"
)

// Repository owns persisted model metadata: a lazy, one-time scan of
// the models directory, an id-keyed cache, and case-insensitive alias
// resolution (spec.md §4.6).
type Repository struct {
	fs         afero.Fs
	modelsRoot string
	logger     logging.Interface

	mu        sync.Mutex // serializes saves/deletes and cache mutation
	scanned   bool
	byID      map[string]*Model
	aliasToID map[string]string // lowercased alias -> id
}

// New returns a Repository rooted at modelsRoot. The directory is not
// scanned until the first call that needs the cache.
func New(fs afero.Fs, modelsRoot string, logger logging.Interface) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{
		fs:         fs,
		modelsRoot: modelsRoot,
		logger:     logger,
		byID:       make(map[string]*Model),
		aliasToID:  make(map[string]string),
	}
}

// ensureScanned performs the one-time directory walk discovering every
// metadata JSON under modelsRoot. Must be called with mu held.
func (r *Repository) ensureScanned() error {
	if r.scanned {
		return nil
	}

	exists, err := afero.DirExists(r.fs, r.modelsRoot)
	if err != nil {
		return fmt.Errorf("checking models directory: %w", err)
	}
	if exists {
		if err := r.walkMetadata(r.modelsRoot); err != nil {
			return err
		}
	}

	r.scanned = true
	return nil
}

func (r *Repository) walkMetadata(root string) error {
	entries, err := afero.ReadDir(r.fs, root)
	if err != nil {
		return fmt.Errorf("reading %s: %w", root, err)
	}
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if entry.IsDir() {
			if entry.Name() == ".downloads" {
				continue
			}
			if err := r.walkMetadata(path); err != nil {
				return err
			}
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := afero.ReadFile(r.fs, path)
		if err != nil {
			r.logger.WithError(err).WithField("path", path).Warn("skipping unreadable model metadata")
			continue
		}
		var m Model
		if err := json.Unmarshal(data, &m); err != nil {
			r.logger.WithError(err).WithField("path", path).Warn("skipping malformed model metadata")
			continue
		}
		r.indexLocked(&m)
	}
	return nil
}

// indexLocked adds m to the in-memory indexes. Must be called with mu held.
func (r *Repository) indexLocked(m *Model) {
	r.byID[m.ID] = m
	if m.Alias != "" {
		r.aliasToID[strings.ToLower(m.Alias)] = m.ID
	}
}

// Get resolves a key to a Model: direct id hit, then case-insensitive
// alias hit, then (if the scan hasn't found it) a last-resort parse
// and on-disk read (spec.md §4.6).
func (r *Repository) Get(keyOrID string) (*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureScanned(); err != nil {
		return nil, err
	}

	if m, ok := r.resolveLocked(keyOrID); ok {
		return m, nil
	}

	parsed, err := identifier.Parse(keyOrID)
	if err != nil {
		return nil, apperrors.NotFoundf("model %q not found", keyOrID)
	}
	// Determine type by trying both layouts; text-generation first.
	for _, t := range []identifier.ModelType{identifier.TextGeneration, identifier.Embedding} {
		layout := identifier.DeriveLayout(r.modelsRoot, t, parsed)
		data, err := afero.ReadFile(r.fs, layout.MetadataPath)
		if err != nil {
			continue
		}
		var m Model
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}
		r.indexLocked(&m)
		return &m, nil
	}
	return nil, apperrors.NotFoundf("model %q not found", keyOrID)
}

// resolveLocked looks up keyOrID against the in-memory indexes only:
// direct id hit, then case-insensitive alias hit. Must be called with
// mu held.
func (r *Repository) resolveLocked(keyOrID string) (*Model, bool) {
	if m, ok := r.byID[keyOrID]; ok {
		return m, true
	}
	if id, ok := r.aliasToID[strings.ToLower(keyOrID)]; ok {
		if m, ok := r.byID[id]; ok {
			return m, true
		}
	}
	return nil, false
}

// List returns every cached model, scanning first if needed.
func (r *Repository) List() ([]*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureScanned(); err != nil {
		return nil, err
	}
	out := make([]*Model, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, m)
	}
	return out, nil
}

// Save persists m's metadata JSON, serialized via the repository's
// mutex to avoid concurrent writers corrupting the file.
func (r *Repository) Save(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureScanned(); err != nil {
		return err
	}

	id, err := identifier.Parse(m.ID)
	if err != nil {
		return apperrors.InvalidIdentifierf("cannot save model with invalid id %q: %v", m.ID, err)
	}
	layout := identifier.DeriveLayout(r.modelsRoot, m.Type, id)

	if err := r.fs.MkdirAll(layout.ModelDir, 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling model metadata: %w", err)
	}

	tmp := layout.MetadataPath + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp model metadata: %w", err)
	}
	if err := r.fs.Rename(tmp, layout.MetadataPath); err != nil {
		return fmt.Errorf("renaming model metadata into place: %w", err)
	}

	r.indexLocked(m)
	return nil
}

// SetAlias assigns or clears alias for the model identified by id or
// its current alias — the same direct-id-then-alias resolution Get
// uses (spec.md §4.6), so renaming or clearing an alias by referring
// to it via its current value works. Assignment requires the new
// alias to be globally unique among non-empty aliases; passing an
// empty alias clears it.
func (r *Repository) SetAlias(id string, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureScanned(); err != nil {
		return err
	}

	m, ok := r.resolveLocked(id)
	if !ok {
		return apperrors.NotFoundf("model %q not found", id)
	}

	if alias != "" {
		lower := strings.ToLower(alias)
		if existingID, taken := r.aliasToID[lower]; taken && existingID != m.ID {
			return apperrors.InvalidRequestf("alias %q is already assigned to %q", alias, existingID)
		}
	}

	if m.Alias != "" {
		delete(r.aliasToID, strings.ToLower(m.Alias))
	}
	m.Alias = alias
	if alias != "" {
		r.aliasToID[strings.ToLower(alias)] = m.ID
	}

	return r.saveLocked(m)
}

// saveLocked writes m without re-acquiring the repository mutex.
func (r *Repository) saveLocked(m *Model) error {
	id, err := identifier.Parse(m.ID)
	if err != nil {
		return apperrors.InvalidIdentifierf("cannot save model with invalid id %q: %v", m.ID, err)
	}
	layout := identifier.DeriveLayout(r.modelsRoot, m.Type, id)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling model metadata: %w", err)
	}
	tmp := layout.MetadataPath + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp model metadata: %w", err)
	}
	return r.fs.Rename(tmp, layout.MetadataPath)
}

// Delete removes the model's entire directory recursively after a
// soft-match existence check. The cache entry is dropped even if
// directory removal partially fails, with a warning logged (spec.md
// §4.6).
func (r *Repository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureScanned(); err != nil {
		return err
	}

	m, ok := r.byID[id]
	if !ok {
		return apperrors.NotFoundf("model %q not found", id)
	}

	parsed, err := identifier.Parse(m.ID)
	if err != nil {
		return apperrors.InvalidIdentifierf("cannot delete model with invalid id %q: %v", m.ID, err)
	}
	layout := identifier.DeriveLayout(r.modelsRoot, m.Type, parsed)

	if exists, _ := afero.DirExists(r.fs, layout.ModelDir); exists {
		if err := r.fs.RemoveAll(layout.ModelDir); err != nil {
			r.logger.WithError(err).WithField("path", layout.ModelDir).Warn("failed to fully remove model directory")
		}
	}

	delete(r.byID, id)
	if m.Alias != "" {
		delete(r.aliasToID, strings.ToLower(m.Alias))
	}
	return nil
}
