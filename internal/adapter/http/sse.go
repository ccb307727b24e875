package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/peakclips/internal/service"
	"github.com/go-chi/chi/v5"
)

const keepAliveInterval = 15 * time.Second

type SSEHandler struct {
	eventBus *service.EventBus
	jobs     JobService
}

func NewSSEHandler(eventBus *service.EventBus, jobs JobService) *SSEHandler {
	return &SSEHandler{
		eventBus: eventBus,
		jobs:     jobs,
	}
}

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sendStatus(w http.ResponseWriter, ev service.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	sseWrite(w, "status", string(data))
	return nil
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Events streams a job's status changes until it reaches a terminal state.
func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		if id == "" {
			http.Error(w, "Missing job ID", http.StatusBadRequest)
			return
		}

		// Subscribe before reading the current state so no transition is missed.
		ch := h.eventBus.Subscribe(id)
		defer h.eventBus.Unsubscribe(id, ch)

		job, err := h.jobs.Status(id)
		if err != nil {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		_ = sendStatus(w, service.EventFromJob(job))
		if job.Status.IsTerminal() {
			return
		}

		ctx := r.Context()
		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case event, ok := <-ch:
				if !ok {
					return
				}
				_ = sendStatus(w, event)
				if event.Status.IsTerminal() {
					return
				}
			}
		}
	}
}
