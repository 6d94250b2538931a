package catalog

import (
	"context"
	"testing"

	"github.com/modeldepot/depot/pkg/depot/hub"
	"github.com/modeldepot/depot/pkg/depot/identifier"
)

type fakeHubClient struct {
	listResult []hub.ModelMeta
	meta       *hub.ModelMeta
	sizes      map[string]int64
}

func (f *fakeHubClient) ListModels(ctx context.Context, filter hub.ListFilter, opts hub.ListOptions) ([]hub.ModelMeta, error) {
	return f.listResult, nil
}

func (f *fakeHubClient) FindModel(ctx context.Context, repoID string) (*hub.ModelMeta, error) {
	return f.meta, nil
}

func (f *fakeHubClient) GetRepositoryFileSizes(ctx context.Context, repoID string) (map[string]int64, error) {
	return f.sizes, nil
}

func TestDiscoverClassifiesByTags(t *testing.T) {
	client := &fakeHubClient{listResult: []hub.ModelMeta{
		{ID: "acme/embed", Tags: []string{"sentence-similarity"}},
		{ID: "acme/gen", Tags: []string{"text-generation"}},
	}}
	cat := New(client)

	collections, err := cat.Discover(context.Background(), hub.ListFilter{}, hub.ListOptions{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(collections))
	}
	if collections[0].Type != identifier.Embedding {
		t.Fatalf("expected Embedding type, got %v", collections[0].Type)
	}
	if collections[1].Type != identifier.TextGeneration {
		t.Fatalf("expected TextGeneration type, got %v", collections[1].Type)
	}
}

func TestDiscoverFiltersByTypeClientSide(t *testing.T) {
	// A fake hub client that ignores the filter argument entirely,
	// standing in for a remote that doesn't honor the query param
	// (spec.md §6.3 is advisory, not guaranteed).
	client := &fakeHubClient{listResult: []hub.ModelMeta{
		{ID: "acme/embed", Tags: []string{"sentence-similarity"}},
		{ID: "acme/gen", Tags: []string{"text-generation"}},
	}}
	cat := New(client)

	collections, err := cat.Discover(context.Background(), hub.ListFilter{Type: hub.FilterEmbedding}, hub.ListOptions{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(collections) != 1 {
		t.Fatalf("expected 1 collection after client-side filtering, got %d", len(collections))
	}
	if collections[0].CollectionID != "acme/embed" {
		t.Fatalf("expected the embedding model to survive filtering, got %q", collections[0].CollectionID)
	}
}

func TestModelsAnalyzesArtifacts(t *testing.T) {
	client := &fakeHubClient{
		meta: &hub.ModelMeta{ID: "acme/widget", Tags: []string{"text-generation"}},
		sizes: map[string]int64{
			"model-00001-of-00002.safetensors": 100,
			"model-00002-of-00002.safetensors": 200,
			"config.json":                      10,
		},
	}
	cat := New(client)

	collection, err := cat.Models(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(collection.Artifacts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(collection.Artifacts))
	}
	if collection.Artifacts[0].TotalSize != 300 {
		t.Fatalf("expected total size 300, got %d", collection.Artifacts[0].TotalSize)
	}
}
