// Package embedding implements the embedding engine (spec.md §4.9):
// text-to-vector generation with optional L2 normalization, sharing
// the generation engine's concurrency model and token-estimation
// heuristic.
package embedding

import (
	"context"
	"math"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/semaphore"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/generation"
)

// Request carries the embedding parameters from spec.md §4.9.
type Request struct {
	Texts     []string `validate:"required,min=1,dive,required"`
	Normalize bool
}

var validate = validator.New()

// Validate checks r against spec.md §4.9's constraints: texts must be
// non-empty and contain no empty strings.
func (r *Request) Validate() error {
	return validate.Struct(r)
}

// Response is the result of an Embed call.
type Response struct {
	Vectors   [][]float32
	Tokens    int
	Dimension int
}

// Backend is the subset of a loaded inference backend the embedding
// engine needs.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine serializes access to a single loaded Backend behind a
// semaphore, identical in shape to generation.Engine (spec.md §4.9:
// "Concurrency identical to §4.8").
type Engine struct {
	backend Backend
	sem     *semaphore.Weighted
}

// New builds an Engine over backend. maxConcurrentOperations <= 0 is
// normalized to 1.
func New(backend Backend, maxConcurrentOperations int) *Engine {
	if maxConcurrentOperations <= 0 {
		maxConcurrentOperations = 1
	}
	return &Engine{backend: backend, sem: semaphore.NewWeighted(int64(maxConcurrentOperations))}
}

// Embed produces one vector per input text, in input order, optionally
// L2-normalized.
func (e *Engine) Embed(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid embedding request", err)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCancelled, "embedding cancelled", err)
	}
	defer e.sem.Release(1)

	vectors, err := e.backend.Embed(ctx, req.Texts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindGenerationFailure, "embedding failed", err)
	}

	if req.Normalize {
		for _, v := range vectors {
			normalizeInPlace(v)
		}
	}

	tokens := 0
	for _, text := range req.Texts {
		tokens += generation.EstimateTokenCount(text)
	}

	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}

	return &Response{Vectors: vectors, Tokens: tokens, Dimension: dimension}, nil
}

// normalizeInPlace L2-normalizes v, leaving it unchanged if its
// magnitude is zero (spec.md §4.9 and §8 testable property 8).
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	magnitude := math.Sqrt(sumSquares)
	for i, x := range v {
		v[i] = float32(float64(x) / magnitude)
	}
}
