package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/middleware"
	"github.com/JakeFAU/research-infograph/internal/research"
)

// InfographicGenerator renders a session's infographic synchronously.
type InfographicGenerator interface {
	GenerateInfographic(ctx context.Context, sessionID int64) (*research.Infographic, error)
}

// MediaReader reads back artifacts by the URL the media store returned.
// owned is false when the URL belongs to some other store.
type MediaReader interface {
	Load(ctx context.Context, url string) (data []byte, owned bool, err error)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	sessions, err := s.deps.Sessions.ListSessions(r.Context(), query, research.MaxListedSessions)
	if err != nil {
		s.logger.Error("list sessions failed", zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []research.Session{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type addSourceRequest struct {
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Snippet    string   `json:"snippet"`
	Confidence *float64 `json:"confidence"`
}

func (r addSourceRequest) validate() (research.SourceInput, error) {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return research.SourceInput{}, errors.New("title cannot be empty")
	}
	if len([]rune(title)) > research.MaxSourceTitleRunes {
		return research.SourceInput{}, errors.New("title too long")
	}
	u, err := url.Parse(strings.TrimSpace(r.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return research.SourceInput{}, errors.New("url must be an absolute http(s) URL")
	}
	in := research.SourceInput{Title: title, URL: u.String(), Snippet: r.Snippet}
	if r.Confidence != nil {
		c := *r.Confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return research.SourceInput{}, errors.New("confidence must be between 0 and 1")
		}
		in.Confidence = c
	}
	return in, nil
}

func (s *Server) addSource(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	in, err := req.validate()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.FetchedAt = s.clock.Now()
	id, err := s.deps.Sessions.AddSource(r.Context(), sessionID, in)
	if err != nil {
		s.writeSessionError(w, sessionID, "add source", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) attachSearch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	req, maxResults, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Sessions.GetSession(r.Context(), sessionID); err != nil {
		s.writeSessionError(w, sessionID, "load session", err)
		return
	}
	hits, err := s.deps.Searcher.TrySearch(r.Context(), req.Query, maxResults)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	res, err := research.AttachSearchResults(r.Context(), s.deps.Sessions, s.clock, sessionID, req.Query, hits)
	if err != nil {
		s.writeSessionError(w, sessionID, "attach search results", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

type backfillRequest struct {
	MaxSources *int `json:"max_sources"`
}

func (s *Server) backfill(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	maxSources := s.cfg.Ingest.MaxSourcesPerSession
	if req.MaxSources != nil {
		maxSources = *req.MaxSources
	}
	if maxSources <= 0 {
		middleware.WriteError(w, http.StatusBadRequest, "max_sources must be > 0")
		return
	}
	res, err := research.BackfillSources(r.Context(), s.deps.Sessions, s.deps.Ingester, s.clock, sessionID, maxSources)
	if err != nil {
		s.writeSessionError(w, sessionID, "backfill sources", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

func (s *Server) generateInfographic(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if s.deps.Infographics == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "infographic rendering not configured")
		return
	}
	graphic, err := s.deps.Infographics.GenerateInfographic(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, sessionID, "generate infographic", err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{"infographic": graphic})
}

func (s *Server) downloadInfographic(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Sessions.GetSession(r.Context(), sessionID); err != nil {
		s.writeSessionError(w, sessionID, "load session", err)
		return
	}
	graphic, err := s.deps.Sessions.GetInfographic(r.Context(), sessionID)
	if err != nil {
		s.writeSessionError(w, sessionID, "load infographic", err)
		return
	}
	if graphic == nil || graphic.ImageURL == "" {
		middleware.WriteError(w, http.StatusNotFound, "infographic not found")
		return
	}

	if s.deps.Media != nil {
		data, owned, err := s.deps.Media.Load(r.Context(), graphic.ImageURL)
		if owned {
			if errors.Is(err, fs.ErrNotExist) {
				middleware.WriteError(w, http.StatusNotFound, "infographic file missing")
				return
			}
			if err != nil {
				s.logger.Error("read infographic failed", zap.Int64("session_id", sessionID), zap.Error(err))
				middleware.WriteError(w, http.StatusInternalServerError, "failed to read infographic")
				return
			}
			w.Header().Set("Content-Type", "image/svg+xml")
			w.Header().Set("Content-Disposition",
				fmt.Sprintf("attachment; filename=infographic-session-%d.svg", sessionID))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}

	if strings.HasPrefix(graphic.ImageURL, "http://") || strings.HasPrefix(graphic.ImageURL, "https://") {
		w.Header().Set("Location", graphic.ImageURL)
		w.WriteHeader(http.StatusTemporaryRedirect)
		return
	}
	middleware.WriteError(w, http.StatusConflict, "infographic is not an SVG")
}

// writeSessionError maps store failures for one session onto HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, sessionID int64, op string, err error) {
	switch {
	case errors.Is(err, research.ErrSessionNotFound):
		middleware.WriteError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, research.ErrSourceNotFound):
		middleware.WriteError(w, http.StatusNotFound, "source not found")
	default:
		s.logger.Error(op+" failed", zap.Int64("session_id", sessionID), zap.Error(err))
		middleware.WriteError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
