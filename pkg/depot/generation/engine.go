package generation

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

// Backend is the subset of a loaded inference backend the generation
// engine needs. Adapters return concrete backends satisfying this from
// adapter.Adapter.Load; the engine never inspects the backend beyond
// this interface, keeping the native runtime abstract per the spec's
// glossary.
type Backend interface {
	Generate(ctx context.Context, req *Request) (text string, reason FinishReason, promptTokens, completionTokens int, err error)
	GenerateStream(ctx context.Context, req *Request) (<-chan TokenEvent, error)
}

// Engine serializes access to a single loaded Backend behind a
// semaphore sized to maxConcurrentOperations (spec.md §4.8; default 1
// per spec.md §6.5), grounded on the same
// golang.org/x/sync/semaphore.Weighted gate pkg/depot/download's
// Manager uses to bound concurrent transfers.
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

// Generate performs a batch generation. A context cancelled before or
// during the call yields a Response with FinishCancelled rather than
// an error (spec.md §4.8).
func (e *Engine) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid generation request", err)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return &Response{FinishReason: FinishCancelled}, nil
	}
	defer e.sem.Release(1)

	text, reason, promptTokens, completionTokens, err := e.backend.Generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return &Response{FinishReason: FinishCancelled}, nil
		}
		return nil, apperrors.Wrap(apperrors.KindGenerationFailure, "generation failed", err)
	}
	if reason == "" {
		reason = FinishStop
	}
	if promptTokens == 0 {
		promptTokens = EstimateTokenCount(req.Prompt)
	}
	if completionTokens == 0 {
		completionTokens = EstimateTokenCount(text)
	}
	return &Response{
		Text:             text,
		FinishReason:     reason,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}

// GenerateStream returns a channel of tokens in model-produced order.
// Cancelling ctx stops the iterator within one buffered chunk and
// releases the permit before the channel closes (spec.md §8 testable
// property 9); the channel is always closed by the time the caller's
// range loop exits.
func (e *Engine) GenerateStream(ctx context.Context, req *Request) (<-chan TokenEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid generation request", err)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		out := make(chan TokenEvent, 1)
		out <- TokenEvent{Done: true}
		close(out)
		return out, nil
	}

	upstream, err := e.backend.GenerateStream(ctx, req)
	if err != nil {
		e.sem.Release(1)
		return nil, apperrors.Wrap(apperrors.KindGenerationFailure, "stream generation failed", err)
	}

	out := make(chan TokenEvent, 1)
	go func() {
		defer close(out)
		defer e.sem.Release(1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-upstream:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Done || ev.Err != nil {
					return
				}
			}
		}
	}()
	return out, nil
}
