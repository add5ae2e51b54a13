package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
	"github.com/mkweon/cafe-archiver/internal/metrics"
)

// Config carries the HTTP-surface knobs.
type Config struct {
	AuthEnabled     bool
	APIKey          string
	RequestTimeout  time.Duration
	DefaultMaxPosts int
}

// Server wires HTTP handlers to the stores.
type Server struct {
	router   chi.Router
	jobs     archiver.JobStore
	progress archiver.ProgressStore
	idGen    archiver.IDGenerator
	clock    archiver.Clock
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobs archiver.JobStore,
	progress archiver.ProgressStore,
	idGen archiver.IDGenerator,
	clock archiver.Clock,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.DefaultMaxPosts <= 0 {
		cfg.DefaultMaxPosts = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:     jobs,
		progress: progress,
		idGen:    idGen,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.AuthEnabled {
		r.Use(apiKeyMiddleware(cfg.APIKey, logger))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/progress", s.getProgress)
				r.Post("/cancel", s.cancelJob)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The job store is the only hard dependency of the HTTP surface.
	if _, err := s.jobs.ListJobs(r.Context(), nil, 1, 0); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createJobRequest struct {
	Keywords        []string        `json:"keywords"`
	Cafes           []archiver.Cafe `json:"cafes"`
	FromDate        *time.Time      `json:"from_date"`
	ToDate          *time.Time      `json:"to_date"`
	MinViewCount    *int            `json:"min_view_count"`
	MinCommentCount *int            `json:"min_comment_count"`
	UseAutoFilter   bool            `json:"use_auto_filter"`
	MaxPosts        *int            `json:"max_posts"`
	IncludeWords    []string        `json:"include_words"`
	ExcludeWords    []string        `json:"exclude_words"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.toJob(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("create job: %v", err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}

func (s *Server) toJob(req createJobRequest) (archiver.Job, error) {
	keywords := trimAll(req.Keywords)
	if len(keywords) == 0 {
		return archiver.Job{}, errors.New("at least one keyword required")
	}
	if len(req.Cafes) == 0 {
		return archiver.Job{}, errors.New("at least one cafe required")
	}
	for _, cafe := range req.Cafes {
		if strings.TrimSpace(cafe.ID) == "" {
			return archiver.Job{}, errors.New("every cafe needs an id")
		}
	}
	if req.FromDate != nil && req.ToDate != nil && req.ToDate.Before(*req.FromDate) {
		return archiver.Job{}, errors.New("to_date precedes from_date")
	}
	maxPosts := s.cfg.DefaultMaxPosts
	if req.MaxPosts != nil {
		if *req.MaxPosts <= 0 {
			return archiver.Job{}, errors.New("max_posts must be positive")
		}
		maxPosts = *req.MaxPosts
	}
	jobID, err := s.idGen.NewID()
	if err != nil {
		return archiver.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	return archiver.Job{
		ID:              jobID,
		Status:          archiver.JobStatusQueued,
		Keywords:        keywords,
		Cafes:           req.Cafes,
		FromDate:        req.FromDate,
		ToDate:          req.ToDate,
		MinViewCount:    req.MinViewCount,
		MinCommentCount: req.MinCommentCount,
		UseAutoFilter:   req.UseAutoFilter,
		MaxPosts:        maxPosts,
		IncludeWords:    trimAll(req.IncludeWords),
		ExcludeWords:    trimAll(req.ExcludeWords),
		CreatedAt:       s.clock.Now(),
	}, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.jobError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	doc, err := s.progress.GetProgress(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, archiver.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "progress not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch progress")
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.jobError(w, err)
		return
	}
	// Cancelling a finished job is a no-op, not an error.
	if job.Status.Terminal() {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(job.Status),
		})
		return
	}
	if err := s.jobs.RequestCancel(r.Context(), jobID); err != nil {
		s.jobError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":           jobID,
		"cancel_requested": "true",
	})
}

func (s *Server) jobError(w http.ResponseWriter, err error) {
	if errors.Is(err, archiver.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeError(w, http.StatusInternalServerError, "job store error")
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
