package service

import (
	"sync"

	"github.com/bnema/peakclips/internal/domain"
)

// Event is a job status snapshot pushed to live subscribers.
type Event struct {
	JobID    string               `json:"job_id"`
	Status   domain.JobStatus     `json:"status"`
	Progress *domain.Progress     `json:"progress,omitempty"`
	Clips    []domain.ClipResult  `json:"clips,omitempty"`
	Reason   domain.FailureReason `json:"reason,omitempty"`
}

func EventFromJob(job *domain.Job) Event {
	c := job.Clone()
	return Event{
		JobID:    c.ID,
		Status:   c.Status,
		Progress: c.Progress,
		Clips:    c.Clips,
		Reason:   c.Reason,
	}
}

type EventPublisher interface {
	Publish(jobID string, event Event)
}

type EventBus struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Event),
	}
}

func (eb *EventBus) Subscribe(jobID string) chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, 16)
	eb.subscribers[jobID] = append(eb.subscribers[jobID], ch)
	return ch
}

func (eb *EventBus) Unsubscribe(jobID string, ch chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[jobID]
	for i, sub := range subs {
		if sub == ch {
			eb.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}

	if len(eb.subscribers[jobID]) == 0 {
		delete(eb.subscribers, jobID)
	}
}

func (eb *EventBus) Publish(jobID string, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[jobID] {
		select {
		case ch <- event:
		default:
			// Slow subscriber; it will catch up from the store.
		}
	}
}

func (eb *EventBus) Subscribers(jobID string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[jobID])
}
