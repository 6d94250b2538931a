package download

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is the in-memory record for one active or recently-finished
// download (spec.md §4.5.2). All mutable fields are guarded by mu. id
// is a synthetic correlation id (distinct from modelID, which remains
// the lookup key) used only for log correlation across retries.
type session struct {
	id        string
	modelID   string
	targetDir string

	mu           sync.Mutex
	status       Status
	progress     Progress
	errorMessage string
	startedAt    time.Time
	finishedAt   time.Time

	cancel context.CancelFunc
	done   chan struct{} // closed when the background task returns
}

func newSession(modelID, targetDir string, cancel context.CancelFunc) *session {
	return &session{
		id:        uuid.New().String(),
		modelID:   modelID,
		targetDir: targetDir,
		status:    StatusInitializing,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (s *session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	if status.Terminal() {
		s.finishedAt = time.Now()
	}
	s.mu.Unlock()
}

func (s *session) getStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *session) setProgress(p Progress) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

func (s *session) getProgress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *session) setError(msg string) {
	s.mu.Lock()
	s.errorMessage = msg
	s.mu.Unlock()
}

func (s *session) retentionExpired(now time.Time, retention time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Terminal() || s.finishedAt.IsZero() {
		return false
	}
	return now.Sub(s.finishedAt) > retention
}

// sessionTable is the concurrency-safe session map with
// compare-and-swap insertion (spec.md §4.5.2: at most one session per
// modelId among {Initializing, Downloading}).
type sessionTable struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*session)}
}

// insertIfAbsentOrTerminal inserts newSess unless an existing session
// for modelID is Initializing or Downloading, in which case it returns
// that session and ok=false. A Paused or terminal session is replaced.
func (t *sessionTable) insertIfAbsentOrTerminal(modelID string, newSess *session) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.sessions[modelID]; ok {
		switch existing.getStatus() {
		case StatusInitializing, StatusDownloading:
			return existing, false
		}
	}
	t.sessions[modelID] = newSess
	return newSess, true
}

func (t *sessionTable) get(modelID string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[modelID]
	return s, ok
}

func (t *sessionTable) delete(modelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, modelID)
}

func (t *sessionTable) all() []*session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// sweepExpired removes terminal sessions older than retention
// (spec.md §4.5.4: retained 5 minutes for late status queries).
func (t *sessionTable) sweepExpired(retention time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for id, s := range t.sessions {
		if s.retentionExpired(now, retention) {
			delete(t.sessions, id)
		}
	}
}
