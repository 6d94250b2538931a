package hub

import (
	"io"
	"time"
)

// ModelMeta is the hub-reported metadata for one repository, grounded
// on the ModelInfo shape in the teacher's web console huggingface
// client but trimmed to what this depot's discovery/download path
// actually consumes.
type ModelMeta struct {
	ID           string       `json:"id"`
	Author       string       `json:"author"`
	SHA          string       `json:"sha"`
	LastModified string       `json:"lastModified"`
	Private      bool         `json:"private"`
	Gated        bool         `json:"gated"`
	Disabled     bool         `json:"disabled"`
	Downloads    int          `json:"downloads"`
	Likes        int          `json:"likes"`
	Tags         []string     `json:"tags"`
	PipelineTag  string       `json:"pipeline_tag,omitempty"`
	Library      string       `json:"library_name,omitempty"`
	Siblings     []FileSibling `json:"siblings,omitempty"`
}

// FileSibling is one file entry in a repository tree listing.
type FileSibling struct {
	Filename string `json:"rfilename"`
	Size     int64  `json:"size,omitempty"`
	LFS      *LFSInfo `json:"lfs,omitempty"`
}

// LFSInfo carries the Git-LFS-reported size, which supersedes the
// plain Git blob size when both are present (spec.md §4.3).
type LFSInfo struct {
	Size int64 `json:"size"`
}

// ListFilter selects repositories by model type for discovery
// (spec.md §4.3's tag-set mapping).
type ListFilter struct {
	Query string
	Type  ModelTypeFilter
	Tags  []string
}

// ModelTypeFilter mirrors spec.md §3.2's type enum for list/search
// filtering.
type ModelTypeFilter string

const (
	FilterTextGeneration ModelTypeFilter = "TextGeneration"
	FilterEmbedding      ModelTypeFilter = "Embedding"
)

// TagSet returns the hub tag set a given filter maps to.
func (f ModelTypeFilter) TagSet() []string {
	switch f {
	case FilterEmbedding:
		return []string{"sentence-similarity", "gguf"}
	case FilterTextGeneration:
		return []string{"text-generation", "gguf"}
	default:
		return nil
	}
}

// IsTextGeneration reports whether a tag set classifies as text
// generation per spec.md §4.3.
func IsTextGeneration(tags []string) bool {
	return intersects(tags, []string{"text-generation", "text-generation-inference"})
}

// IsEmbedding reports whether a tag set classifies as embedding per
// spec.md §4.3.
func IsEmbedding(tags []string) bool {
	return intersects(tags, []string{"feature-extraction", "sentence-similarity", "sentence-transformers"})
}

func intersects(tags, set []string) bool {
	want := make(map[string]bool, len(set))
	for _, s := range set {
		want[s] = true
	}
	for _, t := range tags {
		if want[t] {
			return true
		}
	}
	return false
}

// ListOptions controls pagination/sorting for listModels.
type ListOptions struct {
	Limit     int
	Sort      string
	Direction string
}

// FileStream is a readable byte stream returned by downloadRange,
// carrying the metadata the download manager needs to validate a
// transfer.
type FileStream struct {
	Body          io.ReadCloser
	ContentLength int64
	LastModified  time.Time
}

// FileHead is the result of a HEAD request against a repository file.
type FileHead struct {
	Size         int64
	LastModified time.Time
}
