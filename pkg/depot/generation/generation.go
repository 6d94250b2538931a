// Package generation implements the text-generation engine (spec.md
// §4.8): a batch and streaming contract over an adapter-loaded
// Backend, with per-engine concurrency bounded by a semaphore and a
// character-per-token heuristic used when the backend has no
// tokenizer of its own.
//
// Grounded on sgl-project-ome's validator.Struct-based config
// validation (pkg/ociobjectstore/config.go) for request validation,
// and on golang.org/x/sync/semaphore.Weighted for the concurrency gate
// (as already used by pkg/depot/download's Manager), generalized here
// to guard reentrancy into a single loaded backend rather than to
// bound disk transfers.
package generation

import (
	"github.com/go-playground/validator/v10"
)

// FinishReason explains why a generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishCancelled FinishReason = "cancelled"
	FinishError     FinishReason = "error"
)

// DefaultCharsPerToken is the fallback token-estimation heuristic used
// when an adapter's backend supplies no tokenizer (spec.md §4.8).
const DefaultCharsPerToken = 4.0

// EstimateTokenCount approximates the number of tokens in text using
// the character-per-token heuristic. Always returns at least 0 for an
// empty string and at least 1 for any non-empty string.
func EstimateTokenCount(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / DefaultCharsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

// Request carries the generation parameters from spec.md §4.8.
type Request struct {
	Prompt         string             `validate:"required"`
	MaxTokens      int                `validate:"required,gt=0"`
	Temperature    float64            `validate:"gte=0,lte=2"`
	TopP           float64            `validate:"gt=0,lte=1"`
	StopSequences  []string           `validate:"omitempty,dive,required"`
	RepeatPenalty  float64            `validate:"omitempty,gt=0"`
	Seed           *int64             `validate:"omitempty"`
	LogitBias      map[string]float64 `validate:"omitempty"`
	AntiPrompts    []string           `validate:"omitempty,dive,required"`
}

var validate = validator.New()

// Validate checks r against spec.md §4.8's parameter constraints.
func (r *Request) Validate() error {
	return validate.Struct(r)
}

// Response is the result of a batch Generate call.
type Response struct {
	Text             string
	FinishReason     FinishReason
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// TokenEvent is one item of a GenerateStream sequence. Err is set on
// the final event of a failed stream; Done marks clean exhaustion with
// no error. A stream cancelled before it acquires the engine permit
// yields a single Done event; one cancelled mid-stream closes without a
// Done event.
type TokenEvent struct {
	Token string
	Done  bool
	Err   error
}
