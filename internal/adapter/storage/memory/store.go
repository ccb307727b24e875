package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/port"
)

// Store keeps jobs in a mutex-guarded map. Jobs are copied on the way in and
// out so no caller ever holds a pointer into the map.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*domain.Job),
	}
}

func (s *Store) Create(job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) Get(id string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *Store) Set(job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !domain.CanTransition(current.Status, job.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, job.Status)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	return nil
}

func (s *Store) ListTerminalBefore(cutoff time.Time) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Job
	for _, job := range s.jobs {
		if job.Status.IsTerminal() && job.UpdatedAt.Before(cutoff) {
			out = append(out, job.Clone())
		}
	}
	return out, nil
}

var _ port.JobStore = (*Store)(nil)
