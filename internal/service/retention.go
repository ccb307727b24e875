package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/port"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

const minSweepInterval = time.Minute

// Only files the service itself produces are eligible for removal.
const (
	clipFilePattern  = "*_clip*.mp4"
	inputFilePattern = "*.{mp4,part}"
)

// Janitor removes finished jobs and their files once they outlive the
// retention window. Inputs that still belong to a live job are never touched.
type Janitor struct {
	store     port.JobStore
	clipsDir  string
	uploadDir string
	retention time.Duration
	now       func() time.Time
}

type SweepResult struct {
	Jobs   int
	Clips  int
	Inputs int
}

func NewJanitor(store port.JobStore, clipsDir, uploadDir string, retention time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		clipsDir:  clipsDir,
		uploadDir: uploadDir,
		retention: retention,
		now:       time.Now,
	}
}

func (j *Janitor) Enabled() bool {
	return j.retention > 0
}

func (j *Janitor) Interval() time.Duration {
	return max(j.retention/4, minSweepInterval)
}

// Run sweeps on a ticker until ctx is done. It returns immediately when
// retention is disabled.
func (j *Janitor) Run(ctx context.Context) {
	if !j.Enabled() {
		return
	}
	log := logger.Named("janitor")
	ticker := time.NewTicker(j.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			res, err := j.Sweep()
			if err != nil {
				log.Error("cleanup failed", zap.Error(err))
				continue
			}
			if res != (SweepResult{}) {
				log.Info("cleanup done", zap.Int("jobs", res.Jobs), zap.Int("clips", res.Clips), zap.Int("inputs", res.Inputs))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (j *Janitor) Sweep() (SweepResult, error) {
	var res SweepResult
	cutoff := j.now().Add(-j.retention)

	expired, err := j.store.ListTerminalBefore(cutoff)
	if err != nil {
		return res, err
	}
	for _, job := range expired {
		if err := j.store.Delete(job.ID); err != nil {
			logger.Job(job.ID).Warn("failed to delete expired job", zap.Error(err))
			continue
		}
		res.Jobs++
	}

	res.Clips = j.removeOlder(j.clipsDir, cutoff, func(name string) bool {
		return matches(clipFilePattern, name)
	})
	res.Inputs = j.removeOlder(j.uploadDir, cutoff, func(name string) bool {
		return matches(inputFilePattern, name) && j.inputOrphaned(name)
	})
	return res, nil
}

// inputOrphaned reports whether an input file has no live job to consume it.
func (j *Janitor) inputOrphaned(name string) bool {
	id, _, _ := strings.Cut(name, ".")
	job, err := j.store.Get(id)
	if err != nil {
		return true
	}
	return job.Status.IsTerminal()
}

func matches(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

func (j *Janitor) removeOlder(dir string, cutoff time.Time, eligible func(name string) bool) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Named("janitor").Warn("failed to list directory", zap.String("dir", dir), zap.Error(err))
		}
		return 0
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) || !eligible(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			logger.Named("janitor").Warn("failed to remove file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
