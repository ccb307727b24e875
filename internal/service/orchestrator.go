package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/port"
	"go.uber.org/zap"
)

const (
	DefaultClipSeconds = 8.0
	DefaultClipTimeout = 5 * time.Minute
)

type OrchestratorConfig struct {
	ClipsDir      string
	PublicBaseURL string
	ClipSeconds   float64
	ClipTimeout   time.Duration
}

// Orchestrator drives one job from its acquired input to a terminal state.
// It is the only writer of a job's store entry while it runs.
type Orchestrator struct {
	store     port.JobStore
	extractor port.ClipExtractor
	detector  *PeakDetector
	cache     *PeakCache
	events    EventPublisher
	cfg       OrchestratorConfig
}

func NewOrchestrator(
	store port.JobStore,
	extractor port.ClipExtractor,
	detector *PeakDetector,
	cache *PeakCache,
	events EventPublisher,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.ClipSeconds <= 0 {
		cfg.ClipSeconds = DefaultClipSeconds
	}
	if cfg.ClipTimeout <= 0 {
		cfg.ClipTimeout = DefaultClipTimeout
	}
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		detector:  detector,
		cache:     cache,
		events:    events,
		cfg:       cfg,
	}
}

// Run processes jobID using the file at inputPath. It never returns an
// error: every failure ends as the job's error state, and the input file is
// removed on every path.
func (o *Orchestrator) Run(ctx context.Context, jobID, inputPath string) {
	log := logger.Job(jobID)

	defer func() {
		if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove input", zap.String("path", inputPath), zap.Error(err))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Error("orchestrator panic", zap.Any("panic", r), zap.Stack("stack"))
			o.Fail(jobID, domain.ReasonInternal)
		}
	}()

	job, err := o.store.Get(jobID)
	if err != nil {
		log.Error("job vanished before processing", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		o.Fail(jobID, domain.ReasonCancelled)
		return
	}

	job.StartProcessing()
	if err := o.save(job); err != nil {
		log.Error("failed to start job", zap.Error(err))
		return
	}

	starts := o.detect(ctx, job.SourceDigest, inputPath)
	if ctx.Err() != nil {
		o.Fail(jobID, domain.ReasonCancelled)
		return
	}
	log.Info("peaks detected", zap.Float64s("starts", starts))

	if err := os.MkdirAll(o.cfg.ClipsDir, 0755); err != nil {
		log.Error("failed to create clips directory", zap.Error(err))
		o.Fail(jobID, domain.ReasonInternal)
		return
	}

	clips := make([]domain.ClipResult, 0, len(starts))
	produced := make([]string, 0, len(starts))
	for i, start := range starts {
		n := i + 1
		job.ReportProgress(n, len(starts))
		if err := o.save(job); err != nil {
			log.Warn("failed to report progress", zap.Error(err))
		}

		name := domain.ClipFileName(jobID, n)
		spec := domain.ClipSpec{
			SourcePath:      inputPath,
			StartSeconds:    start,
			DurationSeconds: o.cfg.ClipSeconds,
			OutputPath:      filepath.Join(o.cfg.ClipsDir, name),
		}
		if err := o.extract(ctx, spec); err != nil {
			removeFiles(append(produced, spec.OutputPath))
			reason := domain.ReasonExtractionFailed
			if ctx.Err() != nil {
				reason = domain.ReasonCancelled
			}
			logExtractFailure(log, n, start, err)
			o.Fail(jobID, reason)
			return
		}

		produced = append(produced, spec.OutputPath)
		clips = append(clips, domain.ClipResult{
			Name:         domain.ClipDisplayName(n),
			URL:          o.clipURL(name),
			StartSeconds: start,
		})
	}

	job.MarkDone(clips)
	if err := o.save(job); err != nil {
		log.Error("failed to complete job", zap.Error(err))
		removeFiles(produced)
		o.Fail(jobID, domain.ReasonInternal)
		return
	}
	log.Info("job done", zap.Int("clips", len(clips)))
}

// Fail moves a non-terminal job to the error state. Terminal jobs are left
// untouched.
func (o *Orchestrator) Fail(jobID string, reason domain.FailureReason) {
	job, err := o.store.Get(jobID)
	if err != nil {
		logger.Job(jobID).Error("cannot fail unknown job", zap.Error(err))
		return
	}
	if job.Status.IsTerminal() {
		return
	}
	job.MarkFailed(reason)
	if err := o.save(job); err != nil {
		logger.Job(jobID).Error("failed to record job failure", zap.Error(err))
		return
	}
	logger.Job(jobID).Info("job failed", zap.String("reason", string(reason)))
}

func (o *Orchestrator) detect(ctx context.Context, digest, path string) []float64 {
	if o.cache == nil {
		return o.detector.Detect(ctx, path)
	}
	return o.cache.Detect(ctx, o.detector, digest, path)
}

func (o *Orchestrator) extract(ctx context.Context, spec domain.ClipSpec) error {
	cctx, cancel := context.WithTimeout(ctx, o.cfg.ClipTimeout)
	defer cancel()
	if err := o.extractor.Extract(cctx, spec); err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(spec.OutputPath), err)
	}
	return nil
}

func (o *Orchestrator) save(job *domain.Job) error {
	if err := o.store.Set(job); err != nil {
		return err
	}
	if o.events != nil {
		o.events.Publish(job.ID, EventFromJob(job))
	}
	return nil
}

func (o *Orchestrator) clipURL(name string) string {
	return strings.TrimRight(o.cfg.PublicBaseURL, "/") + "/stream/" + name
}

func logExtractFailure(log *zap.Logger, n int, start float64, err error) {
	fields := []zap.Field{zap.Int("clip", n), zap.Float64("start", start), zap.Error(err)}
	var xe *domain.ExtractError
	if errors.As(err, &xe) {
		fields = append(fields, zap.Int("exit_code", xe.ExitCode), zap.String("ffmpeg_output", xe.Output))
	}
	log.Error("clip extraction failed", fields...)
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.L.Warn("failed to remove file", zap.String("path", p), zap.Error(err))
		}
	}
}
