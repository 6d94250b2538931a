package hub

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

var (
	jitterRand     *rand.Rand
	jitterRandOnce sync.Once
)

func initJitterRand() {
	jitterRandOnce.Do(func() {
		jitterRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	})
}

// RetryPolicy implements the backoff schedule from spec.md §4.3: base
// × 2^(attempt-1), capped at 30s, ±20% jitter, default 5 attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterFrac  float64
}

// DefaultRetryPolicy returns the spec's stated defaults (open question
// §9 resolved at 5 attempts).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		JitterFrac:  0.20,
	}
}

// Backoff returns the delay before the given attempt (1-indexed).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	initJitterRand()

	delay := time.Duration(math.Min(
		float64(p.BaseDelay)*math.Pow(2, float64(attempt-1)),
		float64(p.MaxDelay),
	))

	jitter := time.Duration(jitterRand.Float64() * p.JitterFrac * float64(delay))
	if jitterRand.Intn(2) == 0 {
		delay -= jitter
	} else {
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// retryableStatus reports whether an HTTP status code should trigger a
// retry under spec.md §4.3's {408,500,502,503,504} set.
func retryableStatus(code int) bool {
	switch code {
	case 408, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
