package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/clock/system"
	"github.com/JakeFAU/research-infograph/internal/config"
	"github.com/JakeFAU/research-infograph/internal/metrics"
	"github.com/JakeFAU/research-infograph/internal/middleware"
	"github.com/JakeFAU/research-infograph/internal/research"
)

const requestTimeout = 60 * time.Second

// JobService submits and looks up research jobs.
type JobService interface {
	Submit(ctx context.Context, sessionID int64) (research.Job, error)
	Job(ctx context.Context, jobID string) (research.Job, error)
}

// FailFastSearcher searches without waiting on the rate limiter.
type FailFastSearcher interface {
	TrySearch(ctx context.Context, query string, maxResults int) ([]research.SearchResult, error)
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Sessions research.SessionStore
	Jobs     JobService
	Searcher FailFastSearcher
	Ingester research.Ingester
	// Infographics renders on demand; nil disables POST .../infographic.
	Infographics InfographicGenerator
	// Media lets the SVG download read stored files instead of redirecting.
	Media MediaReader
	// Clock stamps attached sources. Defaults to the system clock.
	Clock research.Clock
	// MediaDir, when set, is served under /media/.
	MediaDir string
}

// Server wires HTTP handlers to the stores and job dispatcher.
type Server struct {
	router chi.Router
	deps   Deps
	clock  research.Clock
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, clock: deps.Clock, cfg: cfg, logger: logger}
	if s.clock == nil {
		s.clock = system.New()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if deps.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(deps.MediaDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(middleware.APIKey(cfg.Auth.APIKey))
		}
		r.Post("/sessions", s.createSession)
		r.Get("/sessions", s.listSessions)
		r.Route("/sessions/{session_id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Post("/research", s.startResearch)
			r.Post("/sources", s.addSource)
			r.Post("/search", s.attachSearch)
			r.Post("/ingest", s.backfill)
			r.Post("/infographic", s.generateInfographic)
			r.Get("/infographic.svg", s.downloadInfographic)
		})
		r.Get("/jobs/{job_id}", s.getJob)
		r.Post("/search", s.search)
		r.Post("/ingest", s.ingest)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sessions == nil || s.deps.Jobs == nil {
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createSessionRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	prompt, err := research.ValidatePrompt(req.Prompt)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.deps.Sessions.CreateSession(r.Context(), prompt)
	if err != nil {
		s.logger.Error("create session failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"session": session})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	export, err := research.ExportSession(r.Context(), s.deps.Sessions, sessionID)
	if err != nil {
		if errors.Is(err, research.ErrSessionNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("export session failed", zap.Int64("session_id", sessionID), zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, export)
}

func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if err := s.deps.Sessions.SetStatus(r.Context(), sessionID, research.SessionStatusRunning); err != nil {
		s.writeSessionError(w, sessionID, "mark session running", err)
		return
	}
	job, err := s.deps.Jobs.Submit(r.Context(), sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, research.ErrQueueClosed):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		middleware.WriteError(w, status, err.Error())
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID, "job": job})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, research.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results"`
}

func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (searchRequest, int, bool) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return req, 0, false
	}
	if strings.TrimSpace(req.Query) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "query required")
		return req, 0, false
	}
	maxResults := s.cfg.Search.MaxResults
	if req.MaxResults != nil {
		maxResults = *req.MaxResults
	}
	if maxResults <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "max_results must be > 0")
		return req, 0, false
	}
	return req, maxResults, true
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	req, maxResults, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	results, err := s.deps.Searcher.TrySearch(r.Context(), req.Query, maxResults)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	if results == nil {
		results = []research.SearchResult{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}

type ingestRequest struct {
	URL string `json:"url"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "url required")
		return
	}
	src, err := s.deps.Ingester.Ingest(r.Context(), req.URL)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, src)
}

// writeUpstreamError maps search and fetch failures onto HTTP statuses.
// Rate limiting is checked first since fetch denials wrap a RateLimitError.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	var (
		rateErr    *research.RateLimitError
		qualityErr *research.ContentQualityError
		fetchErr   *research.FetchError
		searchErr  *research.SearchError
	)
	switch {
	case errors.As(err, &rateErr):
		middleware.WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &qualityErr):
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &fetchErr), errors.As(err, &searchErr):
		middleware.WriteError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("upstream call failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "session_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return id, true
}
