// Package identifier parses and formats model identifiers and derives
// their on-disk layout. Grounded on the URL/path helpers in
// sgl-project-ome's pkg/hfutil/hub/utils.go (RepoFolderName-style
// separator joining, pure functions with no package-level state) but
// reworked around this depot's own canonical/legacy identifier grammar
// (spec.md §3.1).
package identifier

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

// ModelType mirrors spec.md §3.2's type enum, reused wherever a
// directory needs the dash-case form (§3.8).
type ModelType string

const (
	TextGeneration ModelType = "TextGeneration"
	Embedding      ModelType = "Embedding"
)

// DirName returns the on-disk dash-case segment for a model type.
func (t ModelType) DirName() string {
	switch t {
	case Embedding:
		return "embedding"
	default:
		return "text-generation"
	}
}

// Identifier is the parsed form of a model identity. Registry is the
// short hub tag (hf, local); Publisher/ModelName/ArtifactName are the
// three path-like segments. String() always renders the canonical
// form regardless of which form was parsed.
type Identifier struct {
	Registry     string
	Publisher    string
	ModelName    string
	ArtifactName string
}

// String renders the canonical form: {registry}:{publisher}/{modelName}/{artifactName}.
func (id Identifier) String() string {
	return fmt.Sprintf("%s:%s/%s/%s", id.Registry, id.Publisher, id.ModelName, id.ArtifactName)
}

// RepoID returns the hub-facing "{publisher}/{modelName}" form used by
// the hub client.
func (id Identifier) RepoID() string {
	return id.Publisher + "/" + id.ModelName
}

// Parse accepts both the canonical form
// "{registry}:{publisher}/{modelName}/{artifactName}" and the legacy
// tri-segment form "{provider}/{modelName}:{fileName}". A terminal
// .gguf/.ggml/.bin suffix on the artifact segment is stripped in both
// cases.
func Parse(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, apperrors.InvalidIdentifierf("identifier must not be empty")
	}

	if idx := strings.Index(raw, ":"); idx >= 0 && strings.Contains(raw[idx+1:], "/") {
		registry := raw[:idx]
		rest := raw[idx+1:]
		parts := strings.Split(rest, "/")
		if registry == "" || len(parts) != 3 {
			return parseLegacy(raw)
		}
		for _, p := range parts {
			if p == "" {
				return Identifier{}, apperrors.InvalidIdentifierf("identifier %q has an empty segment", raw)
			}
		}
		return Identifier{
			Registry:     registry,
			Publisher:    parts[0],
			ModelName:    parts[1],
			ArtifactName: removeWeightExtension(parts[2]),
		}, nil
	}

	return parseLegacy(raw)
}

// parseLegacy parses "{provider}/{modelName}:{fileName}". The
// registry defaults to "hf" since the legacy form predates multi-hub
// support.
func parseLegacy(raw string) (Identifier, error) {
	colon := strings.LastIndex(raw, ":")
	var repoPart, filePart string
	if colon >= 0 {
		repoPart = raw[:colon]
		filePart = raw[colon+1:]
	} else {
		repoPart = raw
	}

	segs := strings.Split(repoPart, "/")
	if len(segs) != 2 || segs[0] == "" || segs[1] == "" {
		return Identifier{}, apperrors.InvalidIdentifierf("identifier %q is neither canonical nor legacy form", raw)
	}

	artifact := filePart
	if artifact == "" {
		artifact = segs[1]
	}

	return Identifier{
		Registry:     "hf",
		Publisher:    segs[0],
		ModelName:    segs[1],
		ArtifactName: removeWeightExtension(artifact),
	}, nil
}

var weightExtensions = []string{".gguf", ".ggml", ".bin"}

// removeWeightExtension strips a single terminal weight-file
// extension. Idempotent: calling it twice on an already-stripped name
// is a no-op, which is what guards against the historical
// double-extension bug.
func removeWeightExtension(name string) string {
	for _, ext := range weightExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// EnsureGgufExtension appends ".gguf" unless the name already carries
// a recognized weight extension. Idempotent.
func EnsureGgufExtension(name string) string {
	for _, ext := range weightExtensions {
		if strings.HasSuffix(name, ext) {
			return name
		}
	}
	return name + ".gguf"
}

// RemoveGgufExtension is an exported alias of the internal stripping
// helper, for callers that need it directly on a bare filename rather
// than a full identifier.
func RemoveGgufExtension(name string) string {
	return removeWeightExtension(name)
}

// Layout is the sole place that turns an Identifier plus a models root
// into concrete paths. modelsRoot is treated as the literal root: no
// "/models" or any other segment is ever appended to it, which is the
// fix for the historical path-auto-append bug (spec.md §9).
type Layout struct {
	ModelDir     string // {models}/{type}/{publisher}/{modelName}
	MetadataPath string // {ModelDir}/{artifactName}.json
}

// DeriveLayout computes the on-disk layout for an identifier of the
// given type under modelsRoot.
func DeriveLayout(modelsRoot string, t ModelType, id Identifier) Layout {
	modelDir := filepath.Join(modelsRoot, t.DirName(), id.Publisher, id.ModelName)
	return Layout{
		ModelDir:     modelDir,
		MetadataPath: filepath.Join(modelDir, id.ArtifactName+".json"),
	}
}

// DownloadStatePath returns the path of the transient .download record
// for a model identifier under modelsRoot's .downloads directory. The
// identifier's canonical string form is URL-encoded so it is safe as a
// single path component.
func DownloadStatePath(modelsRoot string, id Identifier) string {
	return filepath.Join(modelsRoot, ".downloads", url.QueryEscape(id.String())+".download")
}
