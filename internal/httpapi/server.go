// Package httpapi exposes job management and run triggering over HTTP.
// The X-User-ID header stands in for an authenticated user.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/prospectline/prospector/internal/adapter"
	"github.com/prospectline/prospector/internal/model"
	"github.com/prospectline/prospector/internal/scraping"
	"github.com/prospectline/prospector/internal/store"
)

// Runner triggers and relabels job runs. *scraping.Engine satisfies it.
type Runner interface {
	Launch(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
}

// Server serves the scraping API.
type Server struct {
	store          store.Store
	runner         Runner
	allowedOrigins []string
	log            *zap.Logger
}

// NewServer creates a Server.
func NewServer(s store.Store, r Runner, allowedOrigins []string) *Server {
	return &Server{
		store:          s,
		runner:         r,
		allowedOrigins: allowedOrigins,
		log:            zap.L().With(zap.String("component", "httpapi")),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-User-ID"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/scraping", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Put("/", s.handleUpdateJob)
				r.Delete("/", s.handleDeleteJob)
				r.Post("/run", s.handleRunJob)
				r.Post("/pause", s.handlePauseJob)
				r.Post("/resume", s.handleResumeJob)
				r.Get("/logs", s.handleJobLogs)
				r.Get("/results", s.handleJobResults)
			})
		})
		r.Get("/businesses", s.handleListBusinesses)
		r.Get("/businesses/stats", s.handleBusinessStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jobPayload is the writable subset of a job. Status, progress, logs and
// results are owned by the engine.
type jobPayload struct {
	Name          *string            `json:"name"`
	Description   *string            `json:"description"`
	Source        *model.Source      `json:"source"`
	SourceURL     *string            `json:"source_url"`
	SearchTerms   *[]string          `json:"search_terms"`
	Locations     *[]string          `json:"locations"`
	Filters       *map[string]string `json:"filters"`
	Configuration *map[string]string `json:"configuration"`
	Schedule      *model.Schedule    `json:"schedule"`
}

func (p *jobPayload) applyTo(job *model.ScrapingJob) {
	if p.Name != nil {
		job.Name = *p.Name
	}
	if p.Description != nil {
		job.Description = *p.Description
	}
	if p.Source != nil {
		job.Source = *p.Source
	}
	if p.SourceURL != nil {
		job.SourceURL = *p.SourceURL
	}
	if p.SearchTerms != nil {
		job.SearchTerms = *p.SearchTerms
	}
	if p.Locations != nil {
		job.Locations = *p.Locations
	}
	if p.Filters != nil {
		job.Filters = *p.Filters
	}
	if p.Configuration != nil {
		job.Configuration = *p.Configuration
	}
	if p.Schedule != nil {
		job.Schedule = p.Schedule
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var p jobPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job := &model.ScrapingJob{Owner: owner, Status: model.JobStatusPending}
	p.applyTo(job)

	if job.Name == "" || job.Source == "" {
		s.respondError(w, http.StatusBadRequest, "name and source are required")
		return
	}
	if len(job.Locations) == 0 {
		s.respondError(w, http.StatusBadRequest, "at least one location is required")
		return
	}

	if err := s.store.CreateJob(r.Context(), job); err != nil {
		s.internalError(w, "create job", err)
		return
	}
	s.respond(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	filter := store.JobFilter{
		Owner:  owner,
		Status: model.JobStatus(r.URL.Query().Get("status")),
		Source: model.Source(r.URL.Query().Get("source")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []model.ScrapingJob{}
	}
	s.respond(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	s.respond(w, http.StatusOK, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	var p jobPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.applyTo(job)

	if err := s.store.SaveJob(r.Context(), job); err != nil {
		s.internalError(w, "update job", err)
		return
	}
	s.respond(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteJob(r.Context(), job.ID); err != nil {
		s.internalError(w, "delete job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	if err := s.runner.Launch(r.Context(), job.ID); err != nil {
		switch {
		case errors.Is(err, scraping.ErrAlreadyRunning):
			s.respondError(w, http.StatusConflict, "job is already running")
		case errors.Is(err, store.ErrJobNotFound):
			s.respondError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, adapter.ErrUnsupportedSource):
			s.respondError(w, http.StatusBadRequest, "unsupported source")
		default:
			s.internalError(w, "run job", err)
		}
		return
	}
	s.respond(w, http.StatusAccepted, map[string]string{
		"id":     job.ID,
		"status": string(model.JobStatusInProgress),
	})
}

func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	s.relabelJob(w, r, s.runner.Pause)
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	s.relabelJob(w, r, s.runner.Resume)
}

func (s *Server) relabelJob(w http.ResponseWriter, r *http.Request, flip func(context.Context, string) error) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	if err := flip(r.Context(), job.ID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			s.respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.internalError(w, "relabel job", err)
		return
	}

	updated, err := s.store.GetJob(r.Context(), job.ID)
	if err != nil {
		s.internalError(w, "get job", err)
		return
	}
	s.respond(w, http.StatusOK, updated)
}

func (s *Server) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	logs := job.Logs
	if logs == nil {
		logs = []model.JobLog{}
	}
	s.respond(w, http.StatusOK, logs)
}

func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	results := job.Results
	if results == nil {
		results = []model.Record{}
	}
	s.respond(w, http.StatusOK, map[string]any{
		"results":       results,
		"results_count": job.ResultsCount,
	})
}

func (s *Server) handleListBusinesses(w http.ResponseWriter, r *http.Request) {
	filter := store.BusinessFilter{
		Source: model.Source(r.URL.Query().Get("source")),
		City:   r.URL.Query().Get("city"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	businesses, err := s.store.ListBusinesses(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list businesses", err)
		return
	}
	if businesses == nil {
		businesses = []model.Business{}
	}
	s.respond(w, http.StatusOK, businesses)
}

func (s *Server) handleBusinessStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountBySource(r.Context())
	if err != nil {
		s.internalError(w, "business stats", err)
		return
	}
	s.respond(w, http.StatusOK, counts)
}

// ownedJob loads the route's job and enforces that the caller owns it.
func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request) (*model.ScrapingJob, bool) {
	owner, ok := s.requireUser(w, r)
	if !ok {
		return nil, false
	}

	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			s.respondError(w, http.StatusNotFound, "job not found")
			return nil, false
		}
		s.internalError(w, "get job", err)
		return nil, false
	}
	if job.Owner != owner {
		s.respondError(w, http.StatusForbidden, "not your job")
		return nil, false
	}
	return job, true
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := r.Header.Get("X-User-ID")
	if user == "" {
		s.respondError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	return user, true
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("write response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.log.Error(action, zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
