package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

type fakeBackend struct {
	vectors [][]float32
	err     error
}

func (b *fakeBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.vectors, nil
}

func TestEmbedNormalizesVectors(t *testing.T) {
	backend := &fakeBackend{vectors: [][]float32{{3, 4}, {0, 0}}}
	engine := New(backend, 1)

	resp, err := engine.Embed(context.Background(), &Request{Texts: []string{"a", "b"}, Normalize: true})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if resp.Dimension != 2 {
		t.Fatalf("expected dimension 2, got %d", resp.Dimension)
	}

	mag := math.Hypot(float64(resp.Vectors[0][0]), float64(resp.Vectors[0][1]))
	if math.Abs(mag-1) > 1e-5 {
		t.Fatalf("expected unit magnitude, got %v", mag)
	}

	if resp.Vectors[1][0] != 0 || resp.Vectors[1][1] != 0 {
		t.Fatalf("expected zero vector left unchanged, got %v", resp.Vectors[1])
	}
}

func TestEmbedWithoutNormalizeLeavesVectorsAsIs(t *testing.T) {
	backend := &fakeBackend{vectors: [][]float32{{3, 4}}}
	engine := New(backend, 1)

	resp, err := engine.Embed(context.Background(), &Request{Texts: []string{"a"}})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if resp.Vectors[0][0] != 3 || resp.Vectors[0][1] != 4 {
		t.Fatalf("expected unnormalized vector preserved, got %v", resp.Vectors[0])
	}
}

func TestEmbedRejectsEmptyTextsAndEmptyElements(t *testing.T) {
	engine := New(&fakeBackend{}, 1)

	if _, err := engine.Embed(context.Background(), &Request{Texts: nil}); err == nil {
		t.Fatal("expected error for empty Texts")
	}
	_, err := engine.Embed(context.Background(), &Request{Texts: []string{"ok", ""}})
	if err == nil {
		t.Fatal("expected error for empty element")
	}
	if kind, ok := apperrors.ErrorKind(err); !ok || kind != apperrors.KindInvalidRequest {
		t.Fatalf("expected KindInvalidRequest, got %v", kind)
	}
}

func TestEmbedTokenCounting(t *testing.T) {
	backend := &fakeBackend{vectors: [][]float32{{1}, {1}}}
	engine := New(backend, 1)

	resp, err := engine.Embed(context.Background(), &Request{Texts: []string{"hello world", "hi"}})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if resp.Tokens <= 0 {
		t.Fatalf("expected positive token estimate, got %d", resp.Tokens)
	}
}
