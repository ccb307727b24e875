package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bnema/peakclips/internal/adapter/storage/memory"
	"github.com/bnema/peakclips/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, sourceURL, destPath string) (string, error) {
	args := m.Called(ctx, sourceURL, destPath)
	return args.String(0), args.Error(1)
}

type jobServiceFixture struct {
	svc       *JobService
	store     *memory.Store
	pool      *WorkerPool
	extractor *mockExtractor
	fetcher   *mockFetcher
	uploadDir string
	clipsDir  string
}

func newJobServiceFixture(t *testing.T) *jobServiceFixture {
	t.Helper()
	dir := t.TempDir()
	f := &jobServiceFixture{
		store:     memory.NewStore(),
		pool:      NewWorkerPool(2),
		extractor: &mockExtractor{},
		fetcher:   &mockFetcher{},
		uploadDir: filepath.Join(dir, "uploads"),
		clipsDir:  filepath.Join(dir, "clips"),
	}
	t.Cleanup(func() { _ = f.pool.Shutdown(context.Background()) })

	sampler := &fakeSampler{fps: 30, totalFrames: 30 * 120, shade: sceneCutAt(30, 20)}
	orch := NewOrchestrator(f.store, f.extractor, NewPeakDetector(sampler, 4), NewPeakCache(8), NewEventBus(), OrchestratorConfig{
		ClipsDir:      f.clipsDir,
		PublicBaseURL: "http://localhost:8000",
	})
	f.svc = NewJobService(f.store, f.fetcher, f.pool, orch, JobServiceConfig{
		UploadDir:    f.uploadDir,
		ClipsDir:     f.clipsDir,
		FetchTimeout: time.Second,
	})
	return f
}

func (f *jobServiceFixture) waitForStatus(t *testing.T, id string, want domain.JobStatus) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = f.store.Get(id)
		return err == nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobService_CreateFromUpload(t *testing.T) {
	f := newJobServiceFixture(t)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Run(writeOutput).Return(nil)

	job, err := f.svc.CreateFromUpload("holiday.mp4", strings.NewReader("fake video bytes"))
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	_, err = f.svc.Status(job.ID)
	require.NoError(t, err, "a just-created job is always visible")

	done := f.waitForStatus(t, job.ID, domain.JobStatusDone)
	assert.Len(t, done.Clips, 4)
	assert.Len(t, done.SourceDigest, 64)
	assert.NoFileExists(t, filepath.Join(f.uploadDir, job.ID+".mp4"))
}

func TestJobService_SameBytesSameDigest(t *testing.T) {
	f := newJobServiceFixture(t)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Run(writeOutput).Return(nil)

	a, err := f.svc.CreateFromUpload("a.mp4", bytes.NewReader([]byte("identical")))
	require.NoError(t, err)
	b, err := f.svc.CreateFromUpload("b.mp4", bytes.NewReader([]byte("identical")))
	require.NoError(t, err)

	assert.Equal(t, a.SourceDigest, b.SourceDigest)
	assert.NotEqual(t, a.ID, b.ID)
	f.waitForStatus(t, a.ID, domain.JobStatusDone)
	f.waitForStatus(t, b.ID, domain.JobStatusDone)
}

func TestJobService_EmptyUpload(t *testing.T) {
	f := newJobServiceFixture(t)

	job, err := f.svc.CreateFromUpload("empty.mp4", strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusError, job.Status)
	assert.Equal(t, domain.ReasonInputUnavailable, job.Reason)
	assert.NoFileExists(t, filepath.Join(f.uploadDir, job.ID+".mp4"))
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestJobService_CreateEmpty(t *testing.T) {
	f := newJobServiceFixture(t)

	job, err := f.svc.CreateEmpty()
	require.NoError(t, err)

	stored, err := f.svc.Status(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, stored.Status)
	assert.Equal(t, domain.ReasonInputUnavailable, stored.Reason)
}

func TestJobService_CreateFromURL_Invalid(t *testing.T) {
	f := newJobServiceFixture(t)

	for _, raw := range []string{"ftp://example.com/a.mp4", "file:///etc/passwd", "not a url", "http://"} {
		t.Run(raw, func(t *testing.T) {
			job, err := f.svc.CreateFromURL(raw)
			assert.Nil(t, job)
			assert.True(t, errors.Is(err, domain.ErrInvalidSource))
			assert.True(t, IsClientError(err))
		})
	}
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobService_CreateFromURL_FetchFails(t *testing.T) {
	f := newJobServiceFixture(t)
	f.fetcher.On("Fetch", mock.Anything, "https://example.com/watch?v=1", mock.Anything).
		Return("", errors.New("yt-dlp: video unavailable"))

	job, err := f.svc.CreateFromURL("https://example.com/watch?v=1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusStarting, job.Status)

	failed := f.waitForStatus(t, job.ID, domain.JobStatusError)
	assert.Equal(t, domain.ReasonInputUnavailable, failed.Reason)

	dest := f.fetcher.Calls[0].Arguments.String(2)
	assert.Equal(t, filepath.Join(f.uploadDir, job.ID+".mp4"), dest)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

type fetchFunc func(ctx context.Context, sourceURL, destPath string) (string, error)

func (fn fetchFunc) Fetch(ctx context.Context, sourceURL, destPath string) (string, error) {
	return fn(ctx, sourceURL, destPath)
}

func TestJobService_CreateFromURL_Success(t *testing.T) {
	f := newJobServiceFixture(t)
	f.svc.fetcher = fetchFunc(func(_ context.Context, _ string, dest string) (string, error) {
		return dest, os.WriteFile(dest, []byte("downloaded"), 0644)
	})
	f.extractor.On("Extract", mock.Anything, mock.Anything).Run(writeOutput).Return(nil)

	job, err := f.svc.CreateFromURL("https://cdn.example.com/v.mp4")
	require.NoError(t, err)

	done := f.waitForStatus(t, job.ID, domain.JobStatusDone)
	assert.Len(t, done.Clips, 4)
	assert.NotEmpty(t, done.SourceDigest)
	assert.NoFileExists(t, filepath.Join(f.uploadDir, job.ID+".mp4"))
}

func TestJobService_Cancel(t *testing.T) {
	f := newJobServiceFixture(t)
	started := make(chan struct{})
	f.extractor.On("Extract", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(context.Canceled).Once()

	job, err := f.svc.CreateFromUpload("a.mp4", strings.NewReader("bytes"))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("extraction never started")
	}

	require.NoError(t, f.svc.Cancel(job.ID))
	failed := f.waitForStatus(t, job.ID, domain.JobStatusError)
	assert.Equal(t, domain.ReasonCancelled, failed.Reason)

	assert.ErrorIs(t, f.svc.Cancel(job.ID), domain.ErrAlreadyTerminal)
	assert.ErrorIs(t, f.svc.Cancel("missing"), domain.ErrNotFound)
}

func TestJobService_CancelOrphan(t *testing.T) {
	f := newJobServiceFixture(t)
	job := domain.NewJob()
	require.NoError(t, f.store.Create(job))

	require.NoError(t, f.svc.Cancel(job.ID))

	stored, err := f.store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonCancelled, stored.Reason)
}

func TestJobService_FailInterrupted(t *testing.T) {
	f := newJobServiceFixture(t)
	running := domain.NewJob()
	require.NoError(t, f.store.Create(running))
	running.StartProcessing()
	require.NoError(t, f.store.Set(running))

	assert.Equal(t, 1, f.svc.FailInterrupted([]*domain.Job{running}))

	stored, err := f.store.Get(running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, stored.Status)
	assert.Equal(t, domain.ReasonInternal, stored.Reason)
}

func TestJobService_ClipPath(t *testing.T) {
	f := newJobServiceFixture(t)
	require.NoError(t, os.MkdirAll(f.clipsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.clipsDir, "abc_clip1.mp4"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(f.uploadDir+".mp4"), []byte("x"), 0644))

	path, err := f.svc.ClipPath("abc_clip1.mp4")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.clipsDir, "abc_clip1.mp4"), path)

	tests := []string{
		"",
		"missing_clip1.mp4",
		"../uploads.mp4",
		"abc_clip1.txt",
		".hidden.mp4",
		"sub/abc_clip1.mp4",
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ClipPath(name)
			assert.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}
