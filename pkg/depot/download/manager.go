// Package download implements the download manager (spec.md §4.5),
// the hardest subsystem: session tracking, concurrency-limited
// transfers, resumable per-file streaming, EMA progress reporting,
// and periodic status reconciliation. Grounded on the retry/resume
// shape of sgl-project-ome's pkg/hfutil/hub/download.go (ranged GET,
// write-then-rename, retry-with-backoff) generalized from a one-shot
// CLI download into a session-oriented manager with pause/resume/
// cancel, per spec.md §4.5.1-§4.5.10.
package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/artifact"
	"github.com/modeldepot/depot/pkg/depot/downloadstate"
	"github.com/modeldepot/depot/pkg/depot/hub"
	"github.com/modeldepot/depot/pkg/depot/identifier"
	"github.com/modeldepot/depot/pkg/depot/repository"
	"github.com/modeldepot/depot/pkg/logging"
)

// HubClient is the subset of hub.Client the download manager needs.
// Declared here so tests can substitute a fake without a live server.
type HubClient interface {
	GetRepositoryFileSizes(ctx context.Context, repoID string) (map[string]int64, error)
	DownloadRange(ctx context.Context, repoID, path string, startByte int64) (*hub.FileStream, error)
}

// Options configures a Manager's tunables (spec.md §6.5).
type Options struct {
	MaxConcurrentDownloads int
	MinimumFreeDiskSpace   int64
	BufferSize             int
	SessionRetention       time.Duration
	ReconcileInterval      time.Duration
	SpeedEMAAlpha          float64
	CleanupOnCancel        bool

	// NoProgressTimeout bounds how long a single Read on the transfer
	// stream may go without returning before it is treated as a
	// transient failure and handed to the retry policy. A per-file
	// download has no total timeout (spec.md §5), only this
	// no-progress timeout.
	NoProgressTimeout time.Duration
}

// DefaultOptions returns spec.md's stated defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentDownloads: 2,
		MinimumFreeDiskSpace:   10 * 1024 * 1024 * 1024,
		BufferSize:             64 * 1024,
		SessionRetention:       5 * time.Minute,
		ReconcileInterval:      5 * time.Second,
		SpeedEMAAlpha:          0.3,
		CleanupOnCancel:        false,
		NoProgressTimeout:      60 * time.Second,
	}
}

// DownloadInfo summarizes a session for listAll (spec.md §4.5.1).
type DownloadInfo struct {
	ModelID  string
	Status   Status
	Progress Progress
}

// Manager implements the download(), pause(), resume(), cancel(),
// status(), progress(), listAll() contract of spec.md §4.5.1.
type Manager struct {
	hubClient   HubClient
	fs          afero.Fs
	modelsRoot  string
	stateStore  *downloadstate.Store
	repo        *repository.Repository
	diskChecker DiskSpaceChecker
	retry       hub.RetryPolicy
	opts        Options
	logger      logging.Interface

	sessions *sessionTable
	sem      *semaphore.Weighted

	stopReconciler chan struct{}
	reconcileOnce  sync.Once
}

// New builds a Manager. repo may be nil only in tests that do not
// exercise the post-download metadata save path.
func New(hubClient HubClient, fs afero.Fs, modelsRoot string, stateStore *downloadstate.Store, repo *repository.Repository, diskChecker DiskSpaceChecker, opts Options, logger logging.Interface) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if diskChecker == nil {
		diskChecker = NewDiskSpaceChecker()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 * 1024
	}
	if opts.MaxConcurrentDownloads <= 0 {
		opts.MaxConcurrentDownloads = 2
	}
	if opts.SessionRetention <= 0 {
		opts.SessionRetention = 5 * time.Minute
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = 5 * time.Second
	}
	if opts.SpeedEMAAlpha <= 0 {
		opts.SpeedEMAAlpha = 0.3
	}
	if opts.NoProgressTimeout <= 0 {
		opts.NoProgressTimeout = 60 * time.Second
	}

	return &Manager{
		hubClient:      hubClient,
		fs:             fs,
		modelsRoot:     modelsRoot,
		stateStore:     stateStore,
		repo:           repo,
		diskChecker:    diskChecker,
		retry:          hub.DefaultRetryPolicy(),
		opts:           opts,
		logger:         logger,
		sessions:       newSessionTable(),
		sem:            semaphore.NewWeighted(int64(opts.MaxConcurrentDownloads)),
		stopReconciler: make(chan struct{}),
	}
}

// StartReconciler launches the periodic status reconciler (spec.md
// §4.5.7). Call StopReconciler to stop it.
func (m *Manager) StartReconciler() {
	go func() {
		ticker := time.NewTicker(m.opts.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.reconcile()
			case <-m.stopReconciler:
				return
			}
		}
	}()
}

// StopReconciler halts the reconciler loop started by StartReconciler.
func (m *Manager) StopReconciler() {
	m.reconcileOnce.Do(func() { close(m.stopReconciler) })
}

// reconcile sweeps terminal sessions past retention and is the
// authoritative unifier between session status and task outcome
// (spec.md §4.5.7). Task completion itself is observed via each
// session's done channel inside runTransfer, so this pass only needs
// to expire retained sessions.
func (m *Manager) reconcile() {
	m.sessions.sweepExpired(m.opts.SessionRetention)
}

// Download starts (or rejects a duplicate of) a download for modelID
// into targetDir and returns as soon as the session is registered
// (spec.md §4.5.1/§4.5.2). The transfer itself runs in a background
// goroutine under its own session context, independent of ctx, so it
// outlives the originating request; callers observe and control it
// afterward via Status, Progress, Pause, and Cancel (spec.md §4.5.7).
// modelType determines which catalog subtree (text-generation/
// embedding) the finished model is filed under; callers typically
// derive it from a prior C3 FindModel lookup via
// hub.IsEmbedding/IsTextGeneration.
func (m *Manager) Download(ctx context.Context, modelID string, repoID string, targetDir string, modelType identifier.ModelType, sink ProgressSink) (DownloadInfo, error) {
	id, err := identifier.Parse(modelID)
	if err != nil {
		return DownloadInfo{}, err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	newSess := newSession(modelID, targetDir, cancel)

	sess, inserted := m.sessions.insertIfAbsentOrTerminal(modelID, newSess)
	if !inserted {
		cancel()
		return DownloadInfo{}, apperrors.AlreadyRunning(modelID)
	}

	m.logger.WithField("sessionId", sess.id).WithField("modelId", modelID).Debug("starting download")
	go m.runTransfer(sessCtx, sessCtx, sess, id, repoID, targetDir, modelType, sink)

	return DownloadInfo{ModelID: modelID, Status: sess.getStatus(), Progress: sess.getProgress()}, nil
}

// runTransfer acquires the concurrency slot under acquireCtx and then
// runs the actual transfer under sessCtx. Both run in the background
// goroutine Download/Resume spawn, so neither is bounded by the
// originating request; only Cancel or Pause stop them. Its outcome is
// observed by callers through Status/Progress, not through a return
// value, since nothing is left to receive one once it runs detached.
func (m *Manager) runTransfer(acquireCtx, sessCtx context.Context, sess *session, id identifier.Identifier, repoID, targetDir string, modelType identifier.ModelType, sink ProgressSink) {
	defer close(sess.done)

	if err := m.sem.Acquire(acquireCtx, 1); err != nil {
		sess.setStatus(StatusCancelled)
		return
	}
	defer m.sem.Release(1)

	sess.setStatus(StatusDownloading)

	_, err := m.transferArtifact(sessCtx, sess, id, repoID, targetDir, modelType, sink)
	if err != nil {
		if kind, ok := apperrors.ErrorKind(err); ok && kind == apperrors.KindCancelled {
			// Pause and Cancel both signal cancellation and have
			// already set the terminal/paused status they want before
			// waiting on sess.done; don't clobber it here.
			if status := sess.getStatus(); status != StatusPaused && status != StatusCancelled {
				sess.setStatus(StatusCancelled)
			}
			return
		}
		sess.setError(err.Error())
		sess.setStatus(StatusFailed)
		progress := sess.getProgress()
		progress.Status = StatusFailed
		progress.ErrorMessage = err.Error()
		sess.setProgress(progress)
		m.logger.WithError(err).WithField("modelId", sess.modelID).Warn("download failed")
		return
	}

	sess.setStatus(StatusCompleted)
}

// transferArtifact implements spec.md §4.5.5.
func (m *Manager) transferArtifact(ctx context.Context, sess *session, id identifier.Identifier, repoID, targetDir string, modelType identifier.ModelType, sink ProgressSink) (*repository.Model, error) {
	sizes, err := m.hubClient.GetRepositoryFileSizes(ctx, repoID)
	if err != nil {
		return nil, err
	}

	files := make([]artifact.File, 0, len(sizes))
	for p, size := range sizes {
		files = append(files, artifact.File{Path: p, Size: size})
	}
	artifacts := artifact.Analyze(files)

	art, ok := findArtifact(artifacts, id.ArtifactName)
	if !ok {
		return nil, apperrors.New(apperrors.KindModelSourceNotFound, fmt.Sprintf("artifact %q not found in repository %q", id.ArtifactName, repoID))
	}
	if art.HasGap() {
		return nil, apperrors.New(apperrors.KindModelLoadFailure, fmt.Sprintf("artifact %q has missing shards", art.Name))
	}

	available, err := m.diskChecker.AvailableBytes(filepath.Dir(targetDir))
	if err == nil && available < art.TotalSize+m.opts.MinimumFreeDiskSpace {
		return nil, apperrors.InsufficientDiskSpace(art.TotalSize+m.opts.MinimumFreeDiskSpace, available)
	}

	if err := m.fs.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating target directory: %w", err)
	}

	estimator := newSpeedEstimator(m.opts.SpeedEMAAlpha)
	var totalDownloaded int64

	sortedFiles := append([]artifact.File(nil), art.Files...)
	sort.Slice(sortedFiles, func(i, j int) bool { return sortedFiles[i].Path < sortedFiles[j].Path })

	localPaths := make([]string, 0, len(sortedFiles))
	for _, f := range sortedFiles {
		localPath := filepath.Join(targetDir, path.Base(f.Path))
		localPaths = append(localPaths, localPath)

		if err := m.transferFile(ctx, sess, id, repoID, f, localPath, targetDir, art.TotalSize, &totalDownloaded, estimator, sink); err != nil {
			return nil, err
		}
	}

	if err := m.stateStore.Delete(id); err != nil {
		m.logger.WithError(err).Warn("failed to remove download state after completion")
	}

	model := &repository.Model{
		ID:           id.String(),
		Name:         id.ModelName,
		Registry:     id.Registry,
		RepoID:       repoID,
		ArtifactName: art.Name,
		Type:         modelType,
		Format:       art.Format,
		SizeInBytes:  art.TotalSize,
		FilePaths:    localPaths,
		LocalPath:    targetDir,
		CreatedAt:    time.Now(),
	}
	if m.repo != nil {
		if err := m.repo.Save(model); err != nil {
			return nil, fmt.Errorf("saving model metadata: %w", err)
		}
	}
	return model, nil
}

func findArtifact(artifacts []artifact.Artifact, name string) (artifact.Artifact, bool) {
	for _, a := range artifacts {
		if a.Name == name {
			return a, true
		}
	}
	if len(artifacts) == 1 {
		return artifacts[0], true
	}
	return artifact.Artifact{}, false
}

// transferFile downloads one file with resume-via-Range support and
// retry-on-transient-failure, emitting throttled progress (spec.md
// §4.5.5/§4.5.6).
func (m *Manager) transferFile(ctx context.Context, sess *session, id identifier.Identifier, repoID string, f artifact.File, localPath, targetDir string, artifactTotal int64, totalDownloaded *int64, estimator *speedEstimator, sink ProgressSink) error {
	startOffset, err := m.resolveResumeOffset(localPath, f.Size)
	if err != nil {
		return err
	}
	*totalDownloaded += startOffset

	var lastErr error
	for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperrors.Cancelled("download")
		}

		written, err := m.streamOnce(ctx, sess, id, repoID, f, localPath, targetDir, startOffset, artifactTotal, totalDownloaded, estimator, sink)
		if err == nil {
			*totalDownloaded += written - startOffset
			return nil
		}
		lastErr = err

		if kind, ok := apperrors.ErrorKind(err); ok {
			switch kind {
			case apperrors.KindCancelled, apperrors.KindAuthRequired, apperrors.KindModelSourceNotFound, apperrors.KindInsufficientDisk:
				return err
			}
		}
		if attempt == m.retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return apperrors.Cancelled("download")
		case <-time.After(m.retry.Backoff(attempt)):
		}

		startOffset, _ = m.resolveResumeOffset(localPath, f.Size)
	}
	return apperrors.Wrap(apperrors.KindModelLoadFailure, fmt.Sprintf("downloading %q failed after %d attempts", f.Path, m.retry.MaxAttempts), lastErr)
}

// resolveResumeOffset probes the local file length and returns the
// byte offset to resume from, truncating a file that is longer than
// expected (spec.md §4.5.5 step 3a).
func (m *Manager) resolveResumeOffset(localPath string, expectedSize int64) (int64, error) {
	info, err := m.fs.Stat(localPath)
	if err != nil {
		return 0, nil
	}
	length := info.Size()
	if expectedSize > 0 && length > expectedSize {
		file, err := m.fs.OpenFile(localPath, os.O_WRONLY, 0o644)
		if err != nil {
			return 0, fmt.Errorf("opening oversized partial file: %w", err)
		}
		defer file.Close()
		if err := file.Truncate(expectedSize); err != nil {
			return 0, fmt.Errorf("truncating oversized partial file: %w", err)
		}
		return expectedSize, nil
	}
	return length, nil
}

func (m *Manager) streamOnce(ctx context.Context, sess *session, id identifier.Identifier, repoID string, f artifact.File, localPath, targetDir string, startOffset int64, artifactTotal int64, totalDownloaded *int64, estimator *speedEstimator, sink ProgressSink) (int64, error) {
	stream, err := m.hubClient.DownloadRange(ctx, repoID, f.Path, startOffset)
	if err != nil {
		return startOffset, err
	}
	defer stream.Body.Close()

	flags := os.O_WRONLY | os.O_CREATE
	if startOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := m.fs.OpenFile(localPath, flags, 0o644)
	if err != nil {
		return startOffset, fmt.Errorf("opening %s for append: %w", localPath, err)
	}
	defer file.Close()

	buf := make([]byte, m.opts.BufferSize)
	written := startOffset
	runningTotal := *totalDownloaded

	for {
		if err := ctx.Err(); err != nil {
			return written, apperrors.Cancelled("download")
		}

		n, readErr := readWithTimeout(stream.Body, buf, m.opts.NoProgressTimeout)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("writing %s: %w", localPath, werr)
			}
			written += int64(n)
			runningTotal += int64(n)

			speed := estimator.Observe(int64(n))
			if estimator.ShouldEmit(runningTotal, artifactTotal) {
				emit(sink, Progress{
					ModelID:                sess.modelID,
					CurrentFileName:        path.Base(f.Path),
					BytesDownloaded:        runningTotal,
					TotalBytes:             artifactTotal,
					BytesPerSecond:         speed,
					EstimatedTimeRemaining: estimateRemaining(runningTotal, artifactTotal, speed),
					Status:                 StatusDownloading,
				})
				sess.setProgress(Progress{
					ModelID:         sess.modelID,
					CurrentFileName: path.Base(f.Path),
					BytesDownloaded: runningTotal,
					TotalBytes:      artifactTotal,
					BytesPerSecond:  speed,
					Status:          StatusDownloading,
				})
				saveErr := m.stateStore.Save(id, downloadstate.Record{
					ModelID:             sess.modelID,
					TargetDirectory:     targetDir,
					DownloadingFileName: path.Base(f.Path),
					TotalSize:           artifactTotal,
					DownloadedBytes:     runningTotal,
					StartedAt:           sess.startedAt,
				})
				if saveErr != nil {
					m.logger.WithError(saveErr).Debug("failed to persist download state checkpoint")
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return written, apperrors.Wrap(apperrors.KindTransient, "reading download stream", readErr)
		}
	}

	if f.Size > 0 && written != f.Size {
		return written, apperrors.New(apperrors.KindTransient, fmt.Sprintf("%s: downloaded %d bytes, expected %d", f.Path, written, f.Size))
	}
	return written, nil
}

type readResult struct {
	n   int
	err error
}

// readWithTimeout bounds a single Read call by timeout, surfacing a
// KindTransient error (retryable by transferFile's retry loop) when no
// bytes and no terminal error arrive in time. The spawned goroutine
// cannot be cancelled if r.Read never returns, so it is left to finish
// on its own; the caller abandons it and closes the stream separately.
func readWithTimeout(r io.Reader, buf []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return r.Read(buf)
	}

	resultCh := make(chan readResult, 1)
	go func() {
		n, err := r.Read(buf)
		resultCh <- readResult{n: n, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.n, res.err
	case <-time.After(timeout):
		return 0, apperrors.New(apperrors.KindTransient, fmt.Sprintf("no download progress within %s", timeout))
	}
}

// Pause requires the session to currently be Downloading. It sets the
// status to Paused, cancels the session context (the transfer loop
// checks ctx between reads) and waits for the background transfer to
// stop. Pause writes no state of its own: Resume continues each file
// from the length of its partial file on disk. Pause has no path that
// reverts the status to Downloading.
func (m *Manager) Pause(modelID string) bool {
	sess, ok := m.sessions.get(modelID)
	if !ok || sess.getStatus() != StatusDownloading {
		return false
	}
	sess.setStatus(StatusPaused)
	sess.cancel()
	<-sess.done
	return true
}

// Resume refuses if the current status is not Paused; it creates a
// fresh session pre-set to Downloading and, like Download, returns as
// soon as that session is registered, with the transfer resuming in a
// background goroutine (spec.md §4.5.8).
func (m *Manager) Resume(ctx context.Context, modelID, repoID, targetDir string, modelType identifier.ModelType, sink ProgressSink) (DownloadInfo, error) {
	sess, ok := m.sessions.get(modelID)
	if !ok || sess.getStatus() != StatusPaused {
		return DownloadInfo{}, apperrors.New(apperrors.KindInvalidRequest, fmt.Sprintf("cannot resume %q: not paused", modelID))
	}
	m.sessions.delete(modelID)

	id, err := identifier.Parse(modelID)
	if err != nil {
		return DownloadInfo{}, err
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	newSess := newSession(modelID, targetDir, cancel)
	newSess.setStatus(StatusDownloading)

	inserted, ok := m.sessions.insertIfAbsentOrTerminal(modelID, newSess)
	if !ok {
		cancel()
		return DownloadInfo{}, apperrors.AlreadyRunning(modelID)
	}

	go m.runTransfer(sessCtx, sessCtx, inserted, id, repoID, targetDir, modelType, wrapPausedAsDownloading(sink))

	return DownloadInfo{ModelID: modelID, Status: inserted.getStatus(), Progress: inserted.getProgress()}, nil
}

// wrapPausedAsDownloading normalizes any late Paused emission from the
// IO layer to Downloading, as required when resuming (spec.md
// §4.5.8).
func wrapPausedAsDownloading(sink ProgressSink) ProgressSink {
	if sink == nil {
		return nil
	}
	return func(p Progress) {
		if p.Status == StatusPaused {
			p.Status = StatusDownloading
		}
		sink(p)
	}
}

// Cancel sets the session to Cancelled, signals its cancel handle,
// and removes the .download record (spec.md §4.5.9).
func (m *Manager) Cancel(modelID string) bool {
	sess, ok := m.sessions.get(modelID)
	if !ok {
		return false
	}
	if sess.getStatus().Terminal() {
		return false
	}
	sess.setStatus(StatusCancelled)
	sess.cancel()
	<-sess.done

	if id, err := identifier.Parse(modelID); err == nil {
		_ = m.stateStore.Delete(id)
		if m.opts.CleanupOnCancel {
			m.cleanupPartialFiles(sess.targetDir)
		}
	}
	return true
}

// cleanupPartialFiles removes the target directory for a cancelled
// session when CleanupOnCancel is set (spec.md §4.5.9's optional
// cleanup-on-cancel behavior).
func (m *Manager) cleanupPartialFiles(targetDir string) {
	if targetDir == "" {
		return
	}
	if err := m.fs.RemoveAll(targetDir); err != nil {
		m.logger.WithError(err).WithField("dir", targetDir).Warn("failed to clean up partial download on cancel")
	}
}

// Status returns modelID's status: the live session's status while a
// session is tracked at all, otherwise the on-disk state (spec.md
// §4.5.7) — a persisted .download record means the transfer is still
// in progress from a prior process, and a model already present in the
// repository forcibly corrects the status to Completed. The disk
// fallback only applies once no live session exists (after a process
// restart, or once reconcile's retention sweep has removed a finished
// session); a tracked session's own status, including terminal ones
// like Failed or Paused, is always authoritative over it.
func (m *Manager) Status(modelID string) (Status, bool) {
	if sess, ok := m.sessions.get(modelID); ok {
		return sess.getStatus(), true
	}
	if status, _, ok := m.diskStatus(modelID); ok {
		return status, true
	}
	return "", false
}

// Progress returns the last reported progress for modelID, with the
// same on-disk fallback as Status.
func (m *Manager) Progress(modelID string) (Progress, bool) {
	if sess, ok := m.sessions.get(modelID); ok {
		return sess.getProgress(), true
	}
	if _, progress, ok := m.diskStatus(modelID); ok {
		return progress, true
	}
	return Progress{}, false
}

// diskStatus resolves modelID's status from persisted state when no
// live session is tracked for it at all (spec.md §4.5.7). A .download
// record means the transfer is still in progress; its absence plus a
// model already present in the repository means the download
// completed, even if the session that ran it has since been swept.
func (m *Manager) diskStatus(modelID string) (Status, Progress, bool) {
	id, err := identifier.Parse(modelID)
	if err != nil {
		return "", Progress{}, false
	}
	if rec, found, err := m.stateStore.Load(id); err == nil && found {
		return StatusDownloading, Progress{
			ModelID:         modelID,
			CurrentFileName: rec.DownloadingFileName,
			BytesDownloaded: rec.DownloadedBytes,
			TotalBytes:      rec.TotalSize,
			Status:          StatusDownloading,
		}, true
	}
	if m.repo != nil {
		if model, err := m.repo.Get(modelID); err == nil && model != nil {
			return StatusCompleted, Progress{
				ModelID:         modelID,
				BytesDownloaded: model.SizeInBytes,
				TotalBytes:      model.SizeInBytes,
				Status:          StatusCompleted,
			}, true
		}
	}
	return "", Progress{}, false
}

// ListAll returns every tracked session (spec.md §4.5.1).
func (m *Manager) ListAll() []DownloadInfo {
	sessions := m.sessions.all()
	out := make([]DownloadInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, DownloadInfo{
			ModelID:  s.modelID,
			Status:   s.getStatus(),
			Progress: s.getProgress(),
		})
	}
	return out
}
