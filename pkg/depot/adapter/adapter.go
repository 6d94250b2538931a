// Package adapter implements the in-process format/type-based model
// adapter registry and loader (spec.md §4.7). An Adapter advertises the
// artifact formats and model types it can drive; the Loader picks the
// first adapter that can handle a given catalog Model and owns the
// loaded-model cache and its eviction policy.
//
// Grounded on sgl-project-ome's pkg/storage registry-by-capability
// pattern (DefaultFactory.RegisterProvider/Create selecting a
// ProviderStorageFactory by Provider kind), transplanted here from
// storage-provider selection to format/type-based adapter selection: a
// Loader plays the DefaultFactory role and an Adapter plays the
// ProviderStorageFactory role, except selection is by CanHandle
// predicate rather than exact map key, since one adapter may cover
// several (format, type) pairs.
package adapter

import (
	"context"

	"github.com/modeldepot/depot/pkg/depot/identifier"
	"github.com/modeldepot/depot/pkg/depot/repository"
)

// Backend is the native inference runtime an Adapter drives. The spec
// treats backends abstractly ("the native inference runtime; treated
// abstractly by this spec" per the glossary), so this interface only
// carries what the Loader and the generation/embedding engines need:
// a way to shut the backend down when its model is unloaded.
type Backend interface {
	Close() error
}

// LoadParams carries the caller-supplied knobs for a load, e.g.
// context length or GPU layer counts. The adapter interprets the
// contents; the Loader never inspects them.
type LoadParams map[string]interface{}

// Adapter is an in-process driver that knows how to load one or more
// (artifact format, model type) combinations into a Backend.
type Adapter interface {
	// Name identifies the adapter in logs and error messages.
	Name() string

	// SupportedFormats lists the artifact.Format values (e.g. "gguf")
	// this adapter can load.
	SupportedFormats() []string

	// SupportedTypes lists the identifier.ModelType values this
	// adapter can load.
	SupportedTypes() []identifier.ModelType

	// Load loads weightPath (a concrete file, already resolved by the
	// Loader from model.LocalPath) into a running Backend.
	Load(ctx context.Context, model *repository.Model, weightPath string, params LoadParams) (Backend, error)
}

// CanHandle reports whether a implements model.Format and model.Type.
func CanHandle(a Adapter, model *repository.Model) bool {
	formatMatch := false
	for _, f := range a.SupportedFormats() {
		if f == model.Format {
			formatMatch = true
			break
		}
	}
	if !formatMatch {
		return false
	}
	for _, t := range a.SupportedTypes() {
		if t == model.Type {
			return true
		}
	}
	return false
}
