package http

import (
	"net/http"

	"github.com/bnema/peakclips/internal/adapter/http/middleware"
	"github.com/bnema/peakclips/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Config struct {
	MaxUploadMB       int
	ResultRedirectURL string
	CORSOrigins       []string
}

type Server struct {
	router     chi.Router
	handlers   *Handlers
	sseHandler *SSEHandler
}

func NewServer(jobs JobService, eventBus *service.EventBus, cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		handlers:   NewHandlers(jobs, cfg.MaxUploadMB, cfg.ResultRedirectURL),
		sseHandler: NewSSEHandler(eventBus, jobs),
	}

	s.router.Use(
		chimw.RequestID,
		chimw.RealIP,
		middleware.RequestLogger,
		middleware.Recovery,
		middleware.SecurityHeaders,
		middleware.CORS(cfg.CORSOrigins),
	)
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.router.Post("/process", s.handlers.Process())
	s.router.Get("/status/{jobID}", s.handlers.Status())
	s.router.Delete("/jobs/{jobID}", s.handlers.CancelJob())
	s.router.Get("/stream/{fileName}", s.handlers.Stream())
	s.router.Get("/result/{jobID}", s.handlers.ResultPage())
	s.router.Get("/events/{jobID}", s.sseHandler.Events())
	s.router.Get("/healthz", s.handlers.Health())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
