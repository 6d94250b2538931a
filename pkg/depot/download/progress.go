package download

import (
	"sync"
	"time"
)

// Status is the download session state machine (spec.md §4.5.4).
type Status string

const (
	StatusInitializing Status = "Initializing"
	StatusDownloading  Status = "Downloading"
	StatusPaused       Status = "Paused"
	StatusCompleted    Status = "Completed"
	StatusCancelled    Status = "Cancelled"
	StatusFailed       Status = "Failed"
)

// Terminal reports whether s is one of the state machine's terminal
// states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// Progress is emitted to a ProgressSink during a transfer (spec.md
// §4.5.6).
type Progress struct {
	ModelID               string
	CurrentFileName       string
	BytesDownloaded       int64
	TotalBytes            int64
	BytesPerSecond        float64
	EstimatedTimeRemaining time.Duration
	Status                Status
	ErrorMessage          string
}

// ProgressSink receives fire-and-forget progress notifications. It
// must not block the transfer for more than 100ms or its notification
// is dropped (spec.md §4.5.6).
type ProgressSink func(Progress)

// speedEstimator computes an exponential moving average of transfer
// speed (α=0.3 over 1s windows) and throttles emission to at most
// every 250ms or every 1% of the artifact's total size, per spec.md
// §4.5.5/§4.5.6.
type speedEstimator struct {
	mu sync.Mutex

	alpha          float64
	ema            float64
	haveEMA        bool
	windowStart    time.Time
	windowBytes    int64
	lastEmit       time.Time
	lastEmitBytes  int64
	lastTotalBytes int64
}

func newSpeedEstimator(alpha float64) *speedEstimator {
	now := time.Now()
	return &speedEstimator{alpha: alpha, windowStart: now, lastEmit: now}
}

// Observe records bytesRead for the current 1s window and, if a full
// window has elapsed, folds it into the EMA. Returns the current
// best-effort bytes/sec estimate.
func (s *speedEstimator) Observe(bytesRead int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windowBytes += bytesRead
	now := time.Now()
	elapsed := now.Sub(s.windowStart)
	if elapsed >= time.Second {
		instantaneous := float64(s.windowBytes) / elapsed.Seconds()
		if !s.haveEMA {
			s.ema = instantaneous
			s.haveEMA = true
		} else {
			s.ema = s.alpha*instantaneous + (1-s.alpha)*s.ema
		}
		s.windowStart = now
		s.windowBytes = 0
	}
	return s.ema
}

// ShouldEmit reports whether a progress event should fire now, given
// throttling of at most every 250ms or every 1% of totalBytes.
func (s *speedEstimator) ShouldEmit(downloaded, totalBytes int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastEmit) >= 250*time.Millisecond {
		s.lastEmit = now
		s.lastEmitBytes = downloaded
		return true
	}
	if totalBytes > 0 {
		onePercent := totalBytes / 100
		if onePercent > 0 && downloaded-s.lastEmitBytes >= onePercent {
			s.lastEmit = now
			s.lastEmitBytes = downloaded
			return true
		}
	}
	return false
}

// emit calls sink without letting a slow consumer block the transfer
// for more than 100ms (spec.md §4.5.6).
func emit(sink ProgressSink, p Progress) {
	if sink == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		sink(p)
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}
}

func estimateRemaining(downloaded, total int64, bytesPerSecond float64) time.Duration {
	if bytesPerSecond <= 0 || total <= downloaded {
		return 0
	}
	remainingBytes := float64(total - downloaded)
	seconds := remainingBytes / bytesPerSecond
	return time.Duration(seconds * float64(time.Second))
}
