package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bnema/peakclips/internal/adapter/http/templates"
	"github.com/bnema/peakclips/internal/adapter/http/validation"
	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type JobService interface {
	CreateFromUpload(filename string, r io.Reader) (*domain.Job, error)
	CreateFromURL(sourceURL string) (*domain.Job, error)
	CreateEmpty() (*domain.Job, error)
	Status(id string) (*domain.Job, error)
	Cancel(id string) error
	ClipPath(name string) (string, error)
}

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type Handlers struct {
	jobs           JobService
	maxUploadBytes int64
	redirectURL    string
}

func NewHandlers(jobs JobService, maxUploadMB int, redirectURL string) *Handlers {
	return &Handlers{
		jobs:           jobs,
		maxUploadBytes: int64(maxUploadMB) * 1024 * 1024,
		redirectURL:    redirectURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Named("http").Debug("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Process accepts a multipart "video" file or a "url" form field. A request
// carrying neither still creates a job, which is immediately failed.
func (h *Handlers) Process() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		}

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
				return
			case errors.Is(err, http.ErrNotMultipart):
				if err := r.ParseForm(); err != nil {
					writeError(w, http.StatusBadRequest, "invalid form")
					return
				}
			default:
				writeError(w, http.StatusBadRequest, "invalid multipart form")
				return
			}
		}

		var (
			job *domain.Job
			err error
		)
		file, header, ferr := r.FormFile("video")
		switch {
		case ferr == nil:
			defer file.Close() //nolint:errcheck
			if header.Size > 0 {
				mime, allowed, verr := validation.ValidateMagicBytes(file)
				if verr != nil {
					writeError(w, http.StatusBadRequest, "unreadable upload")
					return
				}
				if !allowed {
					logger.Named("http").Info("rejected upload",
						logger.UserString("filename", header.Filename), zap.String("mime", mime))
					writeError(w, http.StatusUnsupportedMediaType, "unsupported media type")
					return
				}
			}
			job, err = h.jobs.CreateFromUpload(validation.SanitizeFilename(header.Filename), file)
		case strings.TrimSpace(r.FormValue("url")) != "":
			job, err = h.jobs.CreateFromURL(strings.TrimSpace(r.FormValue("url")))
		default:
			job, err = h.jobs.CreateEmpty()
		}

		if err != nil {
			if service.IsClientError(err) {
				writeError(w, http.StatusBadRequest, "invalid source url")
				return
			}
			logger.Named("http").Error("failed to create job", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create job")
			return
		}

		if h.redirectURL != "" {
			http.Redirect(w, r, h.redirectURL+"?job="+url.QueryEscape(job.ID), http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
	}
}

func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Status(chi.URLParam(r, "jobID"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
				return
			}
			logger.Named("http").Error("status lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "status unavailable")
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, job)
	}
}

func (h *Handlers) CancelJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		err := h.jobs.Cancel(id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "cancelling"})
		case errors.Is(err, domain.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		case errors.Is(err, domain.ErrAlreadyTerminal):
			writeError(w, http.StatusConflict, "job already finished")
		default:
			logger.Job(id).Error("cancel failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "cancel failed")
		}
	}
}

// Stream serves a finished clip with range support.
func (h *Handlers) Stream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "fileName")
		if err := validation.ValidateClipName(name); err != nil {
			http.Error(w, "Clip not found", http.StatusNotFound)
			return
		}

		path, err := h.jobs.ClipPath(name)
		if err != nil {
			http.Error(w, "Clip not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", validation.ContentDisposition(name, true))
		http.ServeFile(w, r, path)
	}
}

func (h *Handlers) ResultPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		job, err := h.jobs.Status(chi.URLParam(r, "jobID"))
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			_ = templates.NotFound().Render(r.Context(), w)
			return
		}
		_ = templates.Result(job).Render(r.Context(), w)
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
