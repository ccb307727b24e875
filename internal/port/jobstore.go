package port

import (
	"time"

	"github.com/bnema/peakclips/internal/domain"
)

// JobStore is the single source of truth for job progress and results.
// Implementations return copies from Get so callers never observe a job
// mid-update, and reject Set calls that move a job backwards.
type JobStore interface {
	Create(job *domain.Job) error
	Get(id string) (*domain.Job, error)
	Set(job *domain.Job) error
	Delete(id string) error
	ListTerminalBefore(cutoff time.Time) ([]*domain.Job, error)
}
