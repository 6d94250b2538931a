package adapter

// RuntimeState is the Loader's in-memory lifecycle state for a loaded
// model. It is never persisted to the catalog's metadata JSON (spec.md
// §9's "ambient runtime state vs persisted state" redesign note): a
// freshly-started process always begins with an empty cache, even if
// the metadata on disk still describes a model that was loaded when
// the process last exited.
type RuntimeState string

const (
	StateUnloaded RuntimeState = "unloaded"
	StateLoading  RuntimeState = "loading"
	StateLoaded   RuntimeState = "loaded"
	StateFailed   RuntimeState = "failed"
)

// StateChange is an event the Loader publishes whenever an entry's
// RuntimeState transitions. Spec.md §9's "cyclic event wiring"
// redesign note warns against a global event bus wiring adapters back
// to the Loader; StateChange and the Loader's Subscribe method are the
// Loader's own typed, local replacement for that pattern.
type StateChange struct {
	CanonicalID string
	From        RuntimeState
	To          RuntimeState
	Err         error
}

// entry is the Loader's bookkeeping record for one cached model.
type entry struct {
	canonicalID string
	state       RuntimeState
	backend     Backend
	weightPath  string
	errMessage  string
	loadOrder   uint64
}
