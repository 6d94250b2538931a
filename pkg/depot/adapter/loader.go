package adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/repository"
	"github.com/modeldepot/depot/pkg/logging"
)

// weightExtensions are the concrete weight-file suffixes the Loader
// will pick among when model.LocalPath names a directory rather than a
// single file (spec.md §4.7 step 4).
var weightExtensions = []string{".gguf", ".ggml"}

// Options tunes the Loader's cache bound.
type Options struct {
	// MaxCachedModels bounds how many models may be Loaded at once;
	// the oldest (by load order) is evicted first. Default 2.
	MaxCachedModels int
}

// DefaultOptions returns the spec's documented default.
func DefaultOptions() Options {
	return Options{MaxCachedModels: 2}
}

// Loader selects an Adapter by (format, type) and owns the
// loaded-model cache, enforcing Options.MaxCachedModels via FIFO
// eviction (spec.md §4.7 step 6). Grounded on sgl-project-ome's
// DefaultFactory (pkg/storage/factory.go): a registered-providers map
// plus a single entry point that resolves config to a concrete
// instance, adapted here to select by predicate instead of exact key
// and to own a bounded cache the storage factory has no equivalent of.
type Loader struct {
	repo *repository.Repository
	fs   afero.Fs
	opts Options
	log  logging.Interface

	mu        sync.Mutex
	adapters  []Adapter
	cache     map[string]*entry
	loadOrder uint64

	obsMu     sync.Mutex
	observers []func(StateChange)
}

// New constructs a Loader backed by repo for model resolution and fs
// for locating weight files.
func New(repo *repository.Repository, fs afero.Fs, opts Options, logger logging.Interface) *Loader {
	if opts.MaxCachedModels <= 0 {
		opts.MaxCachedModels = DefaultOptions().MaxCachedModels
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loader{
		repo:  repo,
		fs:    fs,
		opts:  opts,
		log:   logger,
		cache: make(map[string]*entry),
	}
}

// RegisterAdapter adds a to the pool consulted by Load. Adapters are
// tried in registration order; the first whose CanHandle matches wins.
func (l *Loader) RegisterAdapter(a Adapter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.adapters = append(l.adapters, a)
}

// Subscribe registers fn to be called, synchronously and in Load/Unload's
// own goroutine, for every RuntimeState transition. This replaces a
// global event bus (spec.md §9) with a local observer list scoped to
// this Loader instance.
func (l *Loader) Subscribe(fn func(StateChange)) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, fn)
}

func (l *Loader) publish(change StateChange) {
	l.obsMu.Lock()
	observers := append([]func(StateChange){}, l.observers...)
	l.obsMu.Unlock()
	for _, fn := range observers {
		fn(change)
	}
}

// Status reports the current RuntimeState for a canonical model id.
// ok is true when the Loader's cache holds an entry for the id; an id
// it does not hold (never loaded, unloaded or evicted) reports
// StateUnloaded with ok=false.
func (l *Loader) Status(canonicalID string) (RuntimeState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cache[canonicalID]
	if !ok {
		return StateUnloaded, false
	}
	return e.state, true
}

// Load resolves modelIDOrAlias via the repository, loads its weights
// into a Backend through the first matching Adapter, and caches the
// result keyed by the resolved canonical id, per spec.md §4.7:
//
//  1. repo.Get (alias-aware resolution; resolved id is the cache key)
//  2. return early if already cached
//  3. Unloaded -> Loading
//  4. resolve localPath to a concrete weight file
//  5. adapter.Load; Loaded on success, Failed on error
//  6. enforce MaxCachedModels via FIFO eviction
func (l *Loader) Load(ctx context.Context, modelIDOrAlias string, params LoadParams) (Backend, error) {
	model, err := l.repo.Get(modelIDOrAlias)
	if err != nil {
		return nil, err
	}
	canonicalID := model.ID

	l.mu.Lock()
	if e, ok := l.cache[canonicalID]; ok && e.state == StateLoaded {
		backend := e.backend
		l.mu.Unlock()
		return backend, nil
	}
	e := &entry{canonicalID: canonicalID, state: StateUnloaded}
	l.cache[canonicalID] = e
	l.mu.Unlock()

	l.transition(e, StateLoading, nil)

	weightPath, err := l.resolveWeightFile(model.LocalPath)
	if err != nil {
		l.transition(e, StateFailed, err)
		return nil, err
	}

	adapter, ok := l.selectAdapter(model)
	if !ok {
		err := apperrors.New(apperrors.KindAdapterUnavailable,
			fmt.Sprintf("no adapter registered for format %q, type %q", model.Format, model.Type))
		l.transition(e, StateFailed, err)
		return nil, err
	}

	backend, err := adapter.Load(ctx, model, weightPath, params)
	if err != nil {
		loadErr := apperrors.Wrap(apperrors.KindModelLoadFailure,
			fmt.Sprintf("adapter %q failed to load %q", adapter.Name(), canonicalID), err)
		l.transition(e, StateFailed, loadErr)
		return nil, loadErr
	}

	l.mu.Lock()
	e.backend = backend
	e.weightPath = weightPath
	l.loadOrder++
	e.loadOrder = l.loadOrder
	l.mu.Unlock()
	l.transition(e, StateLoaded, nil)

	l.evictIfOverCapacity(canonicalID)
	return backend, nil
}

func (l *Loader) transition(e *entry, to RuntimeState, err error) {
	l.mu.Lock()
	from := e.state
	e.state = to
	if err != nil {
		e.errMessage = err.Error()
	}
	l.mu.Unlock()
	l.publish(StateChange{CanonicalID: e.canonicalID, From: from, To: to, Err: err})
}

func (l *Loader) selectAdapter(model *repository.Model) (Adapter, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.adapters {
		if CanHandle(a, model) {
			return a, true
		}
	}
	return nil, false
}

// resolveWeightFile validates localPath exists and, if it is a
// directory, picks the largest recognized weight file within it
// (spec.md §4.7 step 4).
func (l *Loader) resolveWeightFile(localPath string) (string, error) {
	if localPath == "" {
		return "", apperrors.New(apperrors.KindModelLoadFailure, "model has no localPath")
	}
	isDir, err := afero.IsDir(l.fs, localPath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindModelLoadFailure, fmt.Sprintf("checking %q", localPath), err)
	}
	if !isDir {
		exists, err := afero.Exists(l.fs, localPath)
		if err != nil || !exists {
			return "", apperrors.New(apperrors.KindModelLoadFailure, fmt.Sprintf("weight file %q does not exist", localPath))
		}
		return localPath, nil
	}

	entries, err := afero.ReadDir(l.fs, localPath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindModelLoadFailure, fmt.Sprintf("listing %q", localPath), err)
	}
	var best string
	var bestSize int64 = -1
	for _, fi := range entries {
		if fi.IsDir() {
			continue
		}
		if !hasWeightExtension(fi.Name()) {
			continue
		}
		if fi.Size() > bestSize {
			bestSize = fi.Size()
			best = fi.Name()
		}
	}
	if best == "" {
		return "", apperrors.New(apperrors.KindModelLoadFailure,
			fmt.Sprintf("no .gguf or .ggml weight file found under %q", localPath))
	}
	return filepath.Join(localPath, best), nil
}

func hasWeightExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range weightExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// evictIfOverCapacity evicts the oldest Loaded entries (by loadOrder)
// other than keep until the cache is within MaxCachedModels. Eviction
// failures are logged and never fail the load that triggered them
// (spec.md §4.7 step 6).
func (l *Loader) evictIfOverCapacity(keep string) {
	for {
		l.mu.Lock()
		loaded := make([]*entry, 0, len(l.cache))
		for _, e := range l.cache {
			if e.state == StateLoaded {
				loaded = append(loaded, e)
			}
		}
		if len(loaded) <= l.opts.MaxCachedModels {
			l.mu.Unlock()
			return
		}
		sort.Slice(loaded, func(i, j int) bool { return loaded[i].loadOrder < loaded[j].loadOrder })
		var victim *entry
		for _, e := range loaded {
			if e.canonicalID != keep {
				victim = e
				break
			}
		}
		l.mu.Unlock()
		if victim == nil {
			return
		}
		if err := l.Unload(victim.canonicalID); err != nil {
			l.log.WithError(err).WithField("canonicalId", victim.canonicalID).Warn("eviction failed, leaving model cached")
			return
		}
	}
}

// Loaded returns the canonical ids currently in the Loaded state, for
// the "list loaded" operation (spec.md §6.4).
func (l *Loader) Loaded() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.cache))
	for id, e := range l.cache {
		if e.state == StateLoaded {
			out = append(out, id)
		}
	}
	return out
}

// Unload releases the Backend for canonicalID, if loaded. Unloading an
// unknown or already-unloaded id is a no-op returning success
// (spec.md §4.7: "Unload is idempotent").
func (l *Loader) Unload(canonicalID string) error {
	l.mu.Lock()
	e, ok := l.cache[canonicalID]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	backend := e.backend
	state := e.state
	l.mu.Unlock()

	if state != StateLoaded || backend == nil {
		l.mu.Lock()
		delete(l.cache, canonicalID)
		l.mu.Unlock()
		return nil
	}

	if err := backend.Close(); err != nil {
		return apperrors.Wrap(apperrors.KindModelLoadFailure, fmt.Sprintf("unloading %q", canonicalID), err)
	}

	l.mu.Lock()
	delete(l.cache, canonicalID)
	l.mu.Unlock()
	l.publish(StateChange{CanonicalID: canonicalID, From: StateLoaded, To: StateUnloaded})
	return nil
}

// Shutdown unloads every cached backend, for a clean process exit. It
// keeps unloading after an individual failure rather than stopping
// early, and aggregates every failure into a single error so the
// caller sees the whole picture instead of just the first one.
func (l *Loader) Shutdown() error {
	l.mu.Lock()
	ids := make([]string, 0, len(l.cache))
	for id := range l.cache {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	var result *multierror.Error
	for _, id := range ids {
		if err := l.Unload(id); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}
