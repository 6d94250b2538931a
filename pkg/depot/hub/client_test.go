package hub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

func TestFindModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models/acme/widget" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ModelMeta{
			ID:   "acme/widget",
			Tags: []string{"text-generation"},
			Siblings: []FileSibling{
				{Filename: "model.safetensors", Size: 100},
			},
		})
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL), WithRetryPolicy(RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFrac: 0}))

	meta, err := c.FindModel(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.ID != "acme/widget" {
		t.Fatalf("unexpected id: %q", meta.ID)
	}
}

func TestFindModelAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL), WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFrac: 0}))

	_, err := c.FindModel(context.Background(), "acme/gated")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind, ok := apperrors.ErrorKind(err); !ok || kind != apperrors.KindAuthRequired {
		t.Fatalf("expected KindAuthRequired, got %v", kind)
	}
}

func TestFindModelRetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ModelMeta{ID: "acme/widget"})
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL), WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFrac: 0}))

	meta, err := c.FindModel(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if meta.ID != "acme/widget" {
		t.Fatalf("unexpected id: %q", meta.ID)
	}
}

func TestFindModelDoesNotRetryNotFound(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL), WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFrac: 0}))

	_, err := c.FindModel(context.Background(), "acme/missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable status, got %d", attempts)
	}
	if kind, ok := apperrors.ErrorKind(err); !ok || kind != apperrors.KindModelSourceNotFound {
		t.Fatalf("expected KindModelSourceNotFound, got %v", kind)
	}
}

func TestGetRepositoryFileSizesPrefersLFS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ModelMeta{
			ID: "acme/widget",
			Siblings: []FileSibling{
				{Filename: "small.json", Size: 10},
				{Filename: "weights.safetensors", Size: 1, LFS: &LFSInfo{Size: 999}},
			},
		})
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL))
	sizes, err := c.GetRepositoryFileSizes(context.Background(), "acme/widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sizes["weights.safetensors"] != 999 {
		t.Fatalf("expected LFS size to supersede Git size, got %d", sizes["weights.safetensors"])
	}
	if sizes["small.json"] != 10 {
		t.Fatalf("expected plain size for non-LFS file, got %d", sizes["small.json"])
	}
}

func TestDownloadRangeSetsRangeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=128-" {
			t.Fatalf("expected Range header bytes=128-, got %q", got)
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("partial-body"))
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL))
	stream, err := c.DownloadRange(context.Background(), "acme/widget", "weights.bin", 128)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Body.Close()
	body, _ := io.ReadAll(stream.Body)
	if string(body) != "partial-body" {
		t.Fatalf("unexpected body: %q", string(body))
	}
}

func TestListModelsTagFilterForEmbedding(t *testing.T) {
	var gotTags []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTags = r.URL.Query()["filter"]
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]ModelMeta{})
	}))
	defer srv.Close()

	c := New(WithEndpoint(srv.URL))
	_, err := c.ListModels(context.Background(), ListFilter{Type: FilterEmbedding}, ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]bool{"sentence-similarity": true, "gguf": true}
	if len(gotTags) != 2 || !want[gotTags[0]] || !want[gotTags[1]] {
		t.Fatalf("unexpected filter tags: %v", gotTags)
	}
}

func TestTagClassification(t *testing.T) {
	if !IsTextGeneration([]string{"text-generation"}) {
		t.Fatal("expected text-generation tag to classify as text generation")
	}
	if !IsEmbedding([]string{"sentence-transformers"}) {
		t.Fatal("expected sentence-transformers tag to classify as embedding")
	}
	if IsTextGeneration([]string{"audio-classification"}) {
		t.Fatal("unrelated tag should not classify as text generation")
	}
}
