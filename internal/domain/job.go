package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// FailureReason is a coarse, caller-safe explanation of why a job ended in
// the error state. Encoder diagnostics are never stored here.
type FailureReason string

const (
	ReasonInputUnavailable FailureReason = "input_unavailable"
	ReasonExtractionFailed FailureReason = "extraction_failed"
	ReasonCancelled        FailureReason = "cancelled"
	ReasonInternal         FailureReason = "internal"
)

type ClipResult struct {
	Name         string  `json:"name"`
	URL          string  `json:"url"`
	StartSeconds float64 `json:"start_seconds"`
}

// Progress is the cosmetic sub-state of a processing job.
type Progress struct {
	Clip  int `json:"clip"`
	Total int `json:"total"`
}

type Job struct {
	ID           string        `json:"job_id"`
	Status       JobStatus     `json:"status"`
	Clips        []ClipResult  `json:"clips,omitempty"`
	Progress     *Progress     `json:"progress,omitempty"`
	Reason       FailureReason `json:"reason,omitempty"`
	SourceDigest string        `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ClipSpec fully describes one extraction.
type ClipSpec struct {
	SourcePath      string
	StartSeconds    float64
	DurationSeconds float64
	OutputPath      string
}

// PeakCandidate is one sampled frame and its motion energy relative to the
// previous sample.
type PeakCandidate struct {
	TimestampSeconds float64
	MotionScore      uint64
}

func NewJob() *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusStarting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ClipFileName is the on-disk name of the n-th clip (1-based) of a job.
func ClipFileName(jobID string, n int) string {
	return fmt.Sprintf("%s_clip%d.mp4", jobID, n)
}

func ClipDisplayName(n int) string {
	return fmt.Sprintf("Clip %d", n)
}

// CanTransition reports whether a job may move from one status to another.
// Self-transitions are allowed for non-terminal states so that metadata and
// progress can be updated in place.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusStarting:
		return to == JobStatusStarting || to == JobStatusProcessing || to == JobStatusError
	case JobStatusProcessing:
		return to == JobStatusProcessing || to == JobStatusDone || to == JobStatusError
	default:
		return false
	}
}

func (j *Job) StartProcessing() {
	j.Status = JobStatusProcessing
	j.touch()
}

func (j *Job) ReportProgress(clip, total int) {
	j.Progress = &Progress{Clip: clip, Total: total}
	j.touch()
}

func (j *Job) MarkDone(clips []ClipResult) {
	j.Status = JobStatusDone
	j.Clips = append([]ClipResult(nil), clips...)
	j.Progress = nil
	j.touch()
}

func (j *Job) MarkFailed(reason FailureReason) {
	j.Status = JobStatusError
	j.Reason = reason
	j.Clips = nil
	j.Progress = nil
	j.touch()
}

// Validate checks the invariants that tie clips, progress and reason to the
// job status.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job id is required")
	}
	switch j.Status {
	case JobStatusStarting, JobStatusProcessing, JobStatusDone, JobStatusError:
	default:
		return fmt.Errorf("unknown job status %q", j.Status)
	}
	if j.Status == JobStatusDone && len(j.Clips) == 0 {
		return fmt.Errorf("job %s: done without clips", j.ID)
	}
	if j.Status != JobStatusDone && len(j.Clips) > 0 {
		return fmt.Errorf("job %s: clips present in status %s", j.ID, j.Status)
	}
	if j.Progress != nil && j.Status != JobStatusProcessing {
		return fmt.Errorf("job %s: progress present in status %s", j.ID, j.Status)
	}
	if j.Reason != "" && j.Status != JobStatusError {
		return fmt.Errorf("job %s: reason present in status %s", j.ID, j.Status)
	}
	return nil
}

// Clone returns a deep copy so that readers never share state with the writer.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Clips != nil {
		c.Clips = append([]ClipResult(nil), j.Clips...)
	}
	if j.Progress != nil {
		p := *j.Progress
		c.Progress = &p
	}
	return &c
}

func (j *Job) touch() {
	j.UpdatedAt = time.Now().UTC()
}
