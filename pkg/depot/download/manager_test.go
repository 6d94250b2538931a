package download

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
	"github.com/modeldepot/depot/pkg/depot/downloadstate"
	"github.com/modeldepot/depot/pkg/depot/hub"
	"github.com/modeldepot/depot/pkg/depot/identifier"
	"github.com/modeldepot/depot/pkg/depot/repository"
)

type fakeHubClient struct {
	mu        sync.Mutex
	sizes     map[string]int64
	content   map[string][]byte
	failUntil map[string]int
	attempts  map[string]int
	slow      map[string]bool
}

func newFakeHubClient() *fakeHubClient {
	return &fakeHubClient{
		sizes:     make(map[string]int64),
		content:   make(map[string][]byte),
		failUntil: make(map[string]int),
		attempts:  make(map[string]int),
		slow:      make(map[string]bool),
	}
}

// throttledReader trickles a handful of bytes per Read with a small
// sleep, giving tests a window to call Pause/Cancel mid-transfer.
type throttledReader struct {
	data   []byte
	offset int
}

func (r *throttledReader) Read(p []byte) (int, error) {
	if r.offset >= len(r.data) {
		return 0, io.EOF
	}
	time.Sleep(time.Millisecond)
	chunk := 32
	if chunk > len(p) {
		chunk = len(p)
	}
	n := copy(p[:chunk], r.data[r.offset:])
	r.offset += n
	return n, nil
}

func (f *fakeHubClient) GetRepositoryFileSizes(ctx context.Context, repoID string) (map[string]int64, error) {
	return f.sizes, nil
}

func (f *fakeHubClient) DownloadRange(ctx context.Context, repoID, path string, startByte int64) (*hub.FileStream, error) {
	f.mu.Lock()
	f.attempts[path]++
	attempt := f.attempts[path]
	f.mu.Unlock()

	if attempt <= f.failUntil[path] {
		return nil, apperrors.New(apperrors.KindTransient, "simulated transient failure")
	}

	data := f.content[path]
	if startByte > int64(len(data)) {
		startByte = int64(len(data))
	}
	remaining := data[startByte:]

	if f.slow[path] {
		return &hub.FileStream{
			Body:          io.NopCloser(&throttledReader{data: remaining}),
			ContentLength: int64(len(remaining)),
		}, nil
	}
	return &hub.FileStream{
		Body:          io.NopCloser(bytes.NewReader(remaining)),
		ContentLength: int64(len(remaining)),
	}, nil
}

type fakeDiskSpaceChecker struct {
	available int64
}

func (f fakeDiskSpaceChecker) AvailableBytes(dir string) (int64, error) {
	return f.available, nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.MinimumFreeDiskSpace = 0
	opts.ReconcileInterval = time.Hour
	return opts
}

// waitForTerminal polls Status until modelID reaches a terminal state
// or the timeout elapses, returning the final status observed. Download
// and Resume now return as soon as the session is registered (spec.md
// §4.5.2/§4.5.7), so tests asserting on a transfer's outcome must wait
// for it the same way a caller polling download status would.
func waitForTerminal(t *testing.T, mgr *Manager, modelID string, timeout time.Duration) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		status, ok := mgr.Status(modelID)
		if ok && status.Terminal() {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q to reach a terminal status, last seen %v (ok=%v)", modelID, status, ok)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDownloadSingleFileArtifact(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	hubClient.sizes["model.safetensors"] = 11
	hubClient.content["model.safetensors"] = []byte("hello world")

	store := downloadstate.New(fs, "/models")
	repo := repository.New(fs, "/models", nil)
	mgr := New(hubClient, fs, "/models", store, repo, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	if _, err := mgr.Download(context.Background(), "hf:acme/widget/model", "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if status := waitForTerminal(t, mgr, "hf:acme/widget/model", time.Second); status != StatusCompleted {
		t.Fatalf("expected Completed, got %v", status)
	}

	model, err := repo.Get("hf:acme/widget/model")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if model.SizeInBytes != 11 {
		t.Fatalf("expected size 11, got %d", model.SizeInBytes)
	}

	data, err := afero.ReadFile(fs, "/models/text-generation/acme/widget/model.safetensors")
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected content: %q", data)
	}

	if _, found, _ := store.Load(mustParse(t, "hf:acme/widget/model")); found {
		t.Fatal("expected download state to be cleaned up after completion")
	}
}

func TestDownloadRejectsDuplicateWhileRunning(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	hubClient.sizes["model.safetensors"] = 3
	hubClient.content["model.safetensors"] = []byte("abc")

	store := downloadstate.New(fs, "/models")
	mgr := New(hubClient, fs, "/models", store, nil, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	id := "hf:acme/widget/model"
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	newSess := newSession(id, "/models/text-generation/acme/widget", cancel)
	if _, ok := mgr.sessions.insertIfAbsentOrTerminal(id, newSess); !ok {
		t.Fatal("expected to seed a running session")
	}
	newSess.setStatus(StatusDownloading)

	_, err := mgr.Download(context.Background(), id, "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil)
	if err == nil {
		t.Fatal("expected AlreadyRunning error")
	}
	if kind, ok := apperrors.ErrorKind(err); !ok || kind != apperrors.KindAlreadyRunning {
		t.Fatalf("expected KindAlreadyRunning, got %v", kind)
	}
}

func TestDownloadRejectsInsufficientDiskSpace(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	hubClient.sizes["model.safetensors"] = 1 << 40
	hubClient.content["model.safetensors"] = make([]byte, 0)

	store := downloadstate.New(fs, "/models")
	opts := testOptions()
	opts.MinimumFreeDiskSpace = 1 << 30
	mgr := New(hubClient, fs, "/models", store, nil, fakeDiskSpaceChecker{available: 100}, opts, nil)

	modelID := "hf:acme/widget/model"
	if _, err := mgr.Download(context.Background(), modelID, "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if status := waitForTerminal(t, mgr, modelID, time.Second); status != StatusFailed {
		t.Fatalf("expected Failed, got %v", status)
	}
	progress, ok := mgr.Progress(modelID)
	if !ok {
		t.Fatal("expected progress to be tracked")
	}
	if !strings.Contains(progress.ErrorMessage, "insufficient") {
		t.Fatalf("expected insufficient disk space error, got %q", progress.ErrorMessage)
	}
}

// hangingReader never returns from Read until unblocked, simulating a
// stalled connection that delivers no bytes and no error.
type hangingReader struct {
	unblock chan struct{}
}

func (r *hangingReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, io.EOF
}

func TestReadWithTimeoutSurfacesTransientOnStall(t *testing.T) {
	r := &hangingReader{unblock: make(chan struct{})}
	defer close(r.unblock)

	buf := make([]byte, 32)
	_, err := readWithTimeout(r, buf, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected a no-progress timeout error")
	}
	if kind, ok := apperrors.ErrorKind(err); !ok || kind != apperrors.KindTransient {
		t.Fatalf("expected KindTransient, got %v", kind)
	}
}

func TestReadWithTimeoutPassesThroughFastReads(t *testing.T) {
	r := bytes.NewReader([]byte("hello"))
	buf := make([]byte, 32)
	n, err := readWithTimeout(r, buf, time.Second)
	if err != nil {
		t.Fatalf("readWithTimeout: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
}

func TestReadWithTimeoutZeroMeansNoTimeout(t *testing.T) {
	r := bytes.NewReader([]byte("hi"))
	buf := make([]byte, 32)
	n, err := readWithTimeout(r, buf, 0)
	if err != nil {
		t.Fatalf("readWithTimeout: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 bytes, got %d", n)
	}
}

func TestDownloadRetriesTransientFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	hubClient.sizes["model.safetensors"] = 5
	hubClient.content["model.safetensors"] = []byte("abcde")
	hubClient.failUntil["model.safetensors"] = 2

	store := downloadstate.New(fs, "/models")
	repo := repository.New(fs, "/models", nil)
	opts := testOptions()
	opts.SpeedEMAAlpha = 0.3
	mgr := New(hubClient, fs, "/models", store, repo, fakeDiskSpaceChecker{available: 1 << 30}, opts, nil)
	mgr.retry.BaseDelay = time.Millisecond
	mgr.retry.MaxDelay = 2 * time.Millisecond

	modelID := "hf:acme/widget/model"
	if _, err := mgr.Download(context.Background(), modelID, "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if status := waitForTerminal(t, mgr, modelID, time.Second); status != StatusCompleted {
		t.Fatalf("expected Completed, got %v", status)
	}

	model, err := repo.Get(modelID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if model.SizeInBytes != 5 {
		t.Fatalf("expected size 5, got %d", model.SizeInBytes)
	}
}

func TestDownloadFailsAfterExhaustingRetries(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	hubClient.sizes["model.safetensors"] = 5
	hubClient.content["model.safetensors"] = []byte("abcde")
	hubClient.failUntil["model.safetensors"] = 100

	store := downloadstate.New(fs, "/models")
	opts := testOptions()
	mgr := New(hubClient, fs, "/models", store, nil, fakeDiskSpaceChecker{available: 1 << 30}, opts, nil)
	mgr.retry.MaxAttempts = 2
	mgr.retry.BaseDelay = time.Millisecond
	mgr.retry.MaxDelay = 2 * time.Millisecond

	modelID := "hf:acme/widget/model"
	if _, err := mgr.Download(context.Background(), modelID, "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if status := waitForTerminal(t, mgr, modelID, time.Second); status != StatusFailed {
		t.Fatalf("expected Failed after exhausting retries, got %v", status)
	}
}

func TestPauseThenResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	payload := bytes.Repeat([]byte("x"), 5000)
	hubClient.sizes["model.safetensors"] = int64(len(payload))
	hubClient.content["model.safetensors"] = payload
	hubClient.slow["model.safetensors"] = true

	store := downloadstate.New(fs, "/models")
	repo := repository.New(fs, "/models", nil)
	mgr := New(hubClient, fs, "/models", store, repo, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	id := "hf:acme/widget/model"
	dir := "/models/text-generation/acme/widget"

	if _, err := mgr.Download(context.Background(), id, "acme/widget", dir, identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}

	// Give the transfer a moment to start, then request a pause. Pause
	// blocks until the background transfer has actually stopped.
	time.Sleep(10 * time.Millisecond)
	mgr.Pause(id)

	status, ok := mgr.Status(id)
	if !ok {
		t.Fatal("expected a tracked session after pause")
	}
	if status != StatusPaused && status != StatusCompleted {
		t.Fatalf("expected Paused (or a race-completed transfer), got %v", status)
	}

	if status == StatusCompleted {
		return
	}

	if _, err := mgr.Resume(context.Background(), id, "acme/widget", dir, identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if status := waitForTerminal(t, mgr, id, time.Second); status != StatusCompleted {
		t.Fatalf("expected Completed after resume, got %v", status)
	}

	model, err := repo.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if model.SizeInBytes != int64(len(payload)) {
		t.Fatalf("expected resumed download to reach full size, got %d", model.SizeInBytes)
	}
}

// TestDownloadReturnsBeforeTransferCompletes proves Download hands back
// a session as soon as it is registered rather than blocking on the
// whole transfer (spec.md §4.5.2/§4.5.7) — the property that lets an
// HTTP or CLI caller discover the session in time to pause or cancel
// it, instead of only finding out once it is already done.
func TestDownloadReturnsBeforeTransferCompletes(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	payload := bytes.Repeat([]byte("z"), 50000)
	hubClient.sizes["model.safetensors"] = int64(len(payload))
	hubClient.content["model.safetensors"] = payload
	hubClient.slow["model.safetensors"] = true

	store := downloadstate.New(fs, "/models")
	mgr := New(hubClient, fs, "/models", store, nil, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	id := "hf:acme/widget/model"
	info, err := mgr.Download(context.Background(), id, "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if info.Status.Terminal() {
		t.Fatalf("expected Download to return before the transfer finishes, got terminal status %v", info.Status)
	}

	if !mgr.Cancel(id) {
		t.Fatal("expected to be able to cancel the still-running transfer returned by Download")
	}
}

func TestResumeRejectsWhenNotPaused(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	store := downloadstate.New(fs, "/models")
	mgr := New(hubClient, fs, "/models", store, nil, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	_, err := mgr.Resume(context.Background(), "hf:acme/widget/model", "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil)
	if err == nil {
		t.Fatal("expected resume of an untracked session to fail")
	}
	if kind, ok := apperrors.ErrorKind(err); !ok || kind != apperrors.KindInvalidRequest {
		t.Fatalf("expected KindInvalidRequest, got %v", kind)
	}
}

func TestCancelStopsDownloadAndRemovesState(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	payload := bytes.Repeat([]byte("y"), 5000)
	hubClient.sizes["model.safetensors"] = int64(len(payload))
	hubClient.content["model.safetensors"] = payload
	hubClient.slow["model.safetensors"] = true

	store := downloadstate.New(fs, "/models")
	mgr := New(hubClient, fs, "/models", store, nil, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	id := "hf:acme/widget/model"
	dir := "/models/text-generation/acme/widget"

	if _, err := mgr.Download(context.Background(), id, "acme/widget", dir, identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	mgr.Cancel(id)

	status, ok := mgr.Status(id)
	if !ok {
		t.Fatal("expected a tracked session after cancel")
	}
	if status != StatusCancelled && status != StatusCompleted {
		t.Fatalf("expected Cancelled (or a race-completed transfer), got %v", status)
	}

	if _, found, _ := store.Load(mustParse(t, id)); found {
		t.Fatal("expected download state to be removed after cancel")
	}
}

func TestListAllReportsAllSessions(t *testing.T) {
	fs := afero.NewMemMapFs()
	hubClient := newFakeHubClient()
	hubClient.sizes["model.safetensors"] = 3
	hubClient.content["model.safetensors"] = []byte("abc")

	store := downloadstate.New(fs, "/models")
	mgr := New(hubClient, fs, "/models", store, nil, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	modelID := "hf:acme/widget/model"
	if _, err := mgr.Download(context.Background(), modelID, "acme/widget", "/models/text-generation/acme/widget", identifier.TextGeneration, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if status := waitForTerminal(t, mgr, modelID, time.Second); status != StatusCompleted {
		t.Fatalf("expected Completed, got %v", status)
	}

	all := mgr.ListAll()
	if len(all) != 1 {
		t.Fatalf("expected 1 session, got %d", len(all))
	}
	if all[0].Status != StatusCompleted {
		t.Fatalf("expected Completed, got %v", all[0].Status)
	}
}

func TestStatusFallsBackToCompletedModelAfterSessionSwept(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := downloadstate.New(fs, "/models")
	repo := repository.New(fs, "/models", nil)
	mgr := New(newFakeHubClient(), fs, "/models", store, repo, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	model := &repository.Model{
		ID:           "hf:acme/widget/base",
		Name:         "widget",
		Registry:     "hf",
		RepoID:       "acme/widget",
		ArtifactName: "base",
		Type:         identifier.TextGeneration,
		Format:       "safetensors",
		SizeInBytes:  1024,
	}
	if err := repo.Save(model); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// No in-memory session at all: simulates a process restart or a
	// session the retention sweep has already removed.
	status, ok := mgr.Status(model.ID)
	if !ok {
		t.Fatal("expected Status to fall back to the repository")
	}
	if status != StatusCompleted {
		t.Fatalf("expected Completed, got %v", status)
	}

	progress, ok := mgr.Progress(model.ID)
	if !ok {
		t.Fatal("expected Progress to fall back to the repository")
	}
	if progress.BytesDownloaded != model.SizeInBytes || progress.TotalBytes != model.SizeInBytes {
		t.Fatalf("expected full progress, got %+v", progress)
	}
}

func TestStatusFallsBackToOnDiskRecordWhenSessionMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := downloadstate.New(fs, "/models")
	repo := repository.New(fs, "/models", nil)
	mgr := New(newFakeHubClient(), fs, "/models", store, repo, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	id := mustParse(t, "hf:acme/widget/model")
	if err := store.Save(id, downloadstate.Record{
		ModelID:             id.String(),
		TargetDirectory:     "/models/text-generation/acme/widget",
		DownloadingFileName: "model.safetensors",
		TotalSize:           100,
		DownloadedBytes:     40,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	status, ok := mgr.Status(id.String())
	if !ok {
		t.Fatal("expected Status to fall back to the on-disk record")
	}
	if status != StatusDownloading {
		t.Fatalf("expected Downloading, got %v", status)
	}

	progress, ok := mgr.Progress(id.String())
	if !ok {
		t.Fatal("expected Progress to fall back to the on-disk record")
	}
	if progress.BytesDownloaded != 40 || progress.TotalBytes != 100 {
		t.Fatalf("expected progress from the record, got %+v", progress)
	}
}

func TestStatusReturnsFalseWhenNothingKnowsAboutModel(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := downloadstate.New(fs, "/models")
	repo := repository.New(fs, "/models", nil)
	mgr := New(newFakeHubClient(), fs, "/models", store, repo, fakeDiskSpaceChecker{available: 1 << 30}, testOptions(), nil)

	if _, ok := mgr.Status("hf:acme/widget/unknown"); ok {
		t.Fatal("expected ok=false for a model with no session, record, or repository entry")
	}
}

func mustParse(t *testing.T, raw string) identifier.Identifier {
	t.Helper()
	id, err := identifier.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return id
}
