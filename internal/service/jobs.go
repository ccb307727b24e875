package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/port"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const DefaultFetchTimeout = 10 * time.Minute

type JobServiceConfig struct {
	UploadDir    string
	ClipsDir     string
	FetchTimeout time.Duration
}

// JobService accepts new work. Every create call seeds the job in the store
// before returning so a status lookup for the returned id never misses.
type JobService struct {
	store   port.JobStore
	fetcher port.SourceFetcher
	pool    *WorkerPool
	orch    *Orchestrator
	cfg     JobServiceConfig
}

func NewJobService(store port.JobStore, fetcher port.SourceFetcher, pool *WorkerPool, orch *Orchestrator, cfg JobServiceConfig) *JobService {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &JobService{
		store:   store,
		fetcher: fetcher,
		pool:    pool,
		orch:    orch,
		cfg:     cfg,
	}
}

func (s *JobService) inputPath(jobID string) string {
	return filepath.Join(s.cfg.UploadDir, jobID+".mp4")
}

// CreateFromUpload streams r to the job's input file and starts processing.
// An empty body still yields a job id; that job is immediately in error.
func (s *JobService) CreateFromUpload(filename string, r io.Reader) (*domain.Job, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		logger.L.Error("failed to create upload directory", zap.Error(err))
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	job := domain.NewJob()
	log := logger.Job(job.ID)
	path := s.inputPath(job.ID)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create input file: %w", err)
	}
	h, _ := blake2b.New256(nil)
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		log.Error("failed to save upload", logger.UserString("filename", filename), zap.Error(err))
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	if n == 0 {
		_ = os.Remove(path)
		log.Warn("empty upload", logger.UserString("filename", filename))
		return s.createFailed(job, domain.ReasonInputUnavailable)
	}

	job.SourceDigest = hex.EncodeToString(h.Sum(nil))
	if err := s.store.Create(job); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	log.Info("upload accepted", logger.UserString("filename", filename), zap.Int64("bytes", n))

	if err := s.pool.Submit(job.ID, func(ctx context.Context) {
		s.orch.Run(ctx, job.ID, path)
	}); err != nil {
		_ = os.Remove(path)
		s.orch.Fail(job.ID, domain.ReasonInternal)
		return nil, err
	}
	return job.Clone(), nil
}

// CreateFromURL starts a job whose input is fetched from sourceURL in the
// background. Only http and https sources are accepted.
func (s *JobService) CreateFromURL(sourceURL string) (*domain.Job, error) {
	if err := validateSourceURL(sourceURL); err != nil {
		return nil, err
	}

	job := domain.NewJob()
	if err := s.store.Create(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	logger.Job(job.ID).Info("url accepted", logger.UserString("url", sourceURL))

	if err := s.pool.Submit(job.ID, func(ctx context.Context) {
		s.fetchAndRun(ctx, job.ID, sourceURL)
	}); err != nil {
		s.orch.Fail(job.ID, domain.ReasonInternal)
		return nil, err
	}
	return job.Clone(), nil
}

func (s *JobService) fetchAndRun(ctx context.Context, jobID, sourceURL string) {
	log := logger.Job(jobID)
	if ctx.Err() != nil {
		s.orch.Fail(jobID, domain.ReasonCancelled)
		return
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0755); err != nil {
		log.Error("failed to create upload directory", zap.Error(err))
		s.orch.Fail(jobID, domain.ReasonInternal)
		return
	}

	dest := s.inputPath(jobID)
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	path, err := s.fetcher.Fetch(fctx, sourceURL, dest)
	cancel()
	if err != nil {
		_ = os.Remove(dest)
		reason := domain.ReasonInputUnavailable
		if ctx.Err() != nil {
			reason = domain.ReasonCancelled
		}
		log.Warn("source fetch failed", logger.UserString("url", sourceURL), zap.Error(err))
		s.orch.Fail(jobID, reason)
		return
	}

	if digest, err := fileDigest(path); err != nil {
		log.Warn("failed to hash fetched input", zap.Error(err))
	} else if job, err := s.store.Get(jobID); err == nil {
		job.SourceDigest = digest
		if err := s.store.Set(job); err != nil {
			log.Warn("failed to record input digest", zap.Error(err))
		}
	}

	s.orch.Run(ctx, jobID, path)
}

// CreateEmpty records a job that arrived with neither bytes nor a source.
func (s *JobService) CreateEmpty() (*domain.Job, error) {
	return s.createFailed(domain.NewJob(), domain.ReasonInputUnavailable)
}

func (s *JobService) createFailed(job *domain.Job, reason domain.FailureReason) (*domain.Job, error) {
	if err := s.store.Create(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	job.MarkFailed(reason)
	if err := s.store.Set(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if s.orch != nil && s.orch.events != nil {
		s.orch.events.Publish(job.ID, EventFromJob(job))
	}
	return job.Clone(), nil
}

func (s *JobService) Status(id string) (*domain.Job, error) {
	return s.store.Get(id)
}

// Cancel stops a queued or running job. The job ends in the error state with
// reason cancelled.
func (s *JobService) Cancel(id string) error {
	job, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return domain.ErrAlreadyTerminal
	}
	if !s.pool.Cancel(id) {
		// No live worker owns it; nobody else will write this entry.
		s.orch.Fail(id, domain.ReasonCancelled)
	}
	logger.Job(id).Info("job cancel requested")
	return nil
}

// FailInterrupted marks jobs left running by a previous process as failed.
func (s *JobService) FailInterrupted(jobs []*domain.Job) int {
	n := 0
	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		s.orch.Fail(job.ID, domain.ReasonInternal)
		_ = os.Remove(s.inputPath(job.ID))
		n++
	}
	return n
}

// ClipPath resolves a clip file name to its path on disk.
func (s *JobService) ClipPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".mp4") {
		return "", domain.ErrNotFound
	}
	path := filepath.Join(s.cfg.ClipsDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", domain.ErrNotFound
	}
	return path, nil
}

func validateSourceURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidSource, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", domain.ErrInvalidSource)
	}
	return nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	h, _ := blake2b.New256(nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidSource)
}
