// Package repository implements the model catalog (spec.md §3.4,
// §4.6): the on-disk Model metadata shape, capability flags, and the
// lazily-scanned, alias-aware Repository that owns persisted
// metadata. Conceptually grounded on the status-enum and
// percentage-of-total patterns in sgl-project-ome's
// pkg/modelagent/model_data.go (ModelStatus, DownloadProgress.
// Percentage), rewritten around this depot's own catalog entity
// instead of a Kubernetes ConfigMap-backed ModelEntry.
package repository

import (
	"time"

	"github.com/modeldepot/depot/pkg/depot/identifier"
)

// Capabilities are the boolean/numeric capability flags carried by a
// collection or model (spec.md §3.6). Capabilities are cloneable:
// copied by value whenever a Model is derived from a Collection.
type Capabilities struct {
	SupportsTextGeneration     bool `json:"supportsTextGeneration"`
	SupportsEmbeddings         bool `json:"supportsEmbeddings"`
	SupportsImageUnderstanding bool `json:"supportsImageUnderstanding"`
	MaxContextLength           int  `json:"maxContextLength"`
	EmbeddingDimension         *int `json:"embeddingDimension,omitempty"`
}

// Clone returns a value copy of c, including its optional pointer
// field, so callers never alias a shared EmbeddingDimension.
func (c Capabilities) Clone() Capabilities {
	clone := c
	if c.EmbeddingDimension != nil {
		dim := *c.EmbeddingDimension
		clone.EmbeddingDimension = &dim
	}
	return clone
}

// Model is the catalog entity persisted as {artifactName}.json
// (spec.md §3.4). The repository exclusively owns this struct; the
// Loader's runtime state is tracked separately and is never persisted
// here (spec.md §9's "ambient runtime state vs persisted state" note).
type Model struct {
	ID           string               `json:"id"`
	Alias        string               `json:"alias,omitempty"`
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	Version      string               `json:"version,omitempty"`
	Registry     string               `json:"registry"`
	RepoID       string               `json:"repoId"`
	ArtifactName string               `json:"artifactName"`
	Type         identifier.ModelType `json:"type"`
	Format       string               `json:"format"`
	Capabilities Capabilities         `json:"capabilities"`
	SizeInBytes  int64                `json:"sizeInBytes"`
	FilePaths    []string             `json:"filePaths"`
	LocalPath    string               `json:"localPath"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// Key returns the denormalized alias-or-id key used for repository
// lookups (spec.md §3.4: key = alias || id).
func (m Model) Key() string {
	if m.Alias != "" {
		return m.Alias
	}
	return m.ID
}
