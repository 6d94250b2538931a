// Package catalog composes the hub client (C3) and artifact analyzer
// (C2) into the Collection view discovery operations need (spec.md
// §3.2, §4.1-§4.3): a hub repository's metadata plus its grouped,
// analyzed artifacts, without requiring a download.
package catalog

import (
	"context"
	"time"

	"github.com/modeldepot/depot/pkg/depot/artifact"
	"github.com/modeldepot/depot/pkg/depot/hub"
	"github.com/modeldepot/depot/pkg/depot/identifier"
)

// Collection is the discovery-time view of a hub repository (spec.md
// §3.2). Unlike repository.Model, a Collection describes what exists
// on the hub, not what has been downloaded.
type Collection struct {
	Hub          string
	CollectionID string
	Name         string
	Publisher    string
	Type         identifier.ModelType
	DefaultFormat string
	Version      string
	Description  string
	Tags         []string
	Downloads    int
	Likes        int
	CreatedAt    time.Time
	LastModified time.Time
	IsGated      bool
	License      string
	Language     string
	Artifacts    []artifact.Artifact
}

// HubClient is the subset of hub.Client discovery needs.
type HubClient interface {
	ListModels(ctx context.Context, filter hub.ListFilter, opts hub.ListOptions) ([]hub.ModelMeta, error)
	FindModel(ctx context.Context, repoID string) (*hub.ModelMeta, error)
	GetRepositoryFileSizes(ctx context.Context, repoID string) (map[string]int64, error)
}

// Catalog discovers and describes hub collections.
type Catalog struct {
	hub HubClient
}

// New builds a Catalog over hubClient.
func New(hubClient HubClient) *Catalog {
	return &Catalog{hub: hubClient}
}

// Discover lists collections matching filter (spec.md §4.3's
// tag-set-based discovery; spec.md §8 testable property 14). filter is
// also passed to the hub client as a query hint, but Discover does not
// trust the remote to have honored it: matchesType re-applies it
// client-side against each result's tags, since the hub's query-param
// contract (spec.md §6.3) is advisory, not guaranteed.
func (c *Catalog) Discover(ctx context.Context, filter hub.ListFilter, opts hub.ListOptions) ([]Collection, error) {
	metas, err := c.hub.ListModels(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Collection, 0, len(metas))
	for _, m := range metas {
		if !matchesType(filter.Type, m.Tags) {
			continue
		}
		out = append(out, fromMeta(m, nil))
	}
	return out, nil
}

// matchesType reports whether tags satisfies filterType. An empty
// filterType matches everything.
func matchesType(filterType hub.ModelTypeFilter, tags []string) bool {
	switch filterType {
	case hub.FilterEmbedding:
		return hub.IsEmbedding(tags)
	case hub.FilterTextGeneration:
		return hub.IsTextGeneration(tags)
	default:
		return true
	}
}

// Info returns a single collection's metadata without analyzing its
// artifacts (cheaper than Models, for a summary view).
func (c *Catalog) Info(ctx context.Context, repoID string) (Collection, error) {
	meta, err := c.hub.FindModel(ctx, repoID)
	if err != nil {
		return Collection{}, err
	}
	return fromMeta(*meta, nil), nil
}

// Models returns a collection's metadata together with its analyzed
// artifact list (spec.md §4.2's grouping algorithm applied to the
// repository's file tree).
func (c *Catalog) Models(ctx context.Context, repoID string) (Collection, error) {
	meta, err := c.hub.FindModel(ctx, repoID)
	if err != nil {
		return Collection{}, err
	}
	sizes, err := c.hub.GetRepositoryFileSizes(ctx, repoID)
	if err != nil {
		return Collection{}, err
	}
	files := make([]artifact.File, 0, len(sizes))
	for path, size := range sizes {
		files = append(files, artifact.File{Path: path, Size: size})
	}
	artifacts := artifact.Analyze(files)
	return fromMeta(*meta, artifacts), nil
}

func fromMeta(m hub.ModelMeta, artifacts []artifact.Artifact) Collection {
	modelType := identifier.TextGeneration
	if hub.IsEmbedding(m.Tags) {
		modelType = identifier.Embedding
	}
	lastModified, _ := time.Parse(time.RFC3339, m.LastModified)
	return Collection{
		Hub:          "hf",
		CollectionID: m.ID,
		Name:         m.ID,
		Publisher:    m.Author,
		Type:         modelType,
		Version:      m.SHA,
		Tags:         m.Tags,
		Downloads:    m.Downloads,
		Likes:        m.Likes,
		LastModified: lastModified,
		IsGated:      m.Gated,
		Artifacts:    artifacts,
	}
}
