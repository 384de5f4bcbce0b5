package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/metrics"
)

// RunnerConfig bounds the work one research job may do.
type RunnerConfig struct {
	SearchMaxResults      int
	MaxSourcesPerSession  int
	MaxFailuresPerSession int
}

// Runner executes search -> ingest -> persist -> render -> store for a session.
type Runner struct {
	sessions SessionStore
	searcher Searcher
	ingester Ingester
	renderer Renderer
	media    MediaStore
	clock    Clock
	cfg      RunnerConfig
	logger   *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(
	sessions SessionStore,
	searcher Searcher,
	ingester Ingester,
	renderer Renderer,
	media MediaStore,
	clock Clock,
	cfg RunnerConfig,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SearchMaxResults <= 0 {
		cfg.SearchMaxResults = 5
	}
	if cfg.MaxSourcesPerSession <= 0 {
		cfg.MaxSourcesPerSession = 5
	}
	if cfg.MaxFailuresPerSession <= 0 {
		cfg.MaxFailuresPerSession = 3
	}
	return &Runner{
		sessions: sessions,
		searcher: searcher,
		ingester: ingester,
		renderer: renderer,
		media:    media,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// InfographicPath is the media path the rendered SVG for a session is saved under.
func InfographicPath(sessionID int64) string {
	return fmt.Sprintf("sessions/%d/infographic.svg", sessionID)
}

// Run executes one research job. Per-source ingest failures are counted and
// skipped; failures in any other stage are returned.
func (r *Runner) Run(ctx context.Context, sessionID int64) (JobResult, error) {
	start := r.clock.Now()
	logger := r.logger.With(zap.Int64("session_id", sessionID))

	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			logger.Warn("research session missing")
			return JobResult{SessionID: sessionID, Status: StatusMissing}, nil
		}
		return JobResult{}, fmt.Errorf("load session: %w", err)
	}

	var timing JobTiming

	stageStart := r.clock.Now()
	hits, err := r.searcher.Search(ctx, session.Prompt, r.cfg.SearchMaxResults)
	timing.Search = r.since(stageStart, "search")
	if err != nil {
		return JobResult{}, fmt.Errorf("search: %w", err)
	}
	logger.Debug("search complete", zap.Int("hits", len(hits)))

	stageStart = r.clock.Now()
	ingested, failures, err := r.ingestHits(ctx, hits, logger)
	timing.Ingest = r.since(stageStart, "ingest")
	if err != nil {
		return JobResult{}, err
	}

	if err := r.persist(ctx, session.ID, ingested); err != nil {
		return JobResult{}, err
	}

	stageStart = r.clock.Now()
	rendered, err := r.render(ctx, session)
	timing.Render = r.since(stageStart, "render")
	if err != nil {
		return JobResult{}, err
	}

	stageStart = r.clock.Now()
	url, err := r.media.Save(ctx, InfographicPath(session.ID), rendered.SVG)
	if err != nil {
		return JobResult{}, fmt.Errorf("store infographic: %w", err)
	}
	if err := r.sessions.CompleteSession(ctx, session.ID, url, rendered.Layout); err != nil {
		return JobResult{}, fmt.Errorf("complete session: %w", err)
	}
	timing.Store = r.since(stageStart, "store")
	timing.Total = r.since(start, "total")

	logger.Info("research job complete",
		zap.Int("sources_created", len(ingested)),
		zap.Int("sources_failed", failures),
		zap.String("infographic_url", url),
		zap.Int64("total_ms", timing.Total),
	)
	return JobResult{
		SessionID:      session.ID,
		Status:         SessionStatusCompleted,
		SourcesCreated: len(ingested),
		SourcesFailed:  failures,
		InfographicURL: url,
		Timing:         &timing,
	}, nil
}

// GenerateInfographic renders the session's current sources synchronously,
// stores the SVG and moves the session to SessionStatusInfographicGenerated.
func (r *Runner) GenerateInfographic(ctx context.Context, sessionID int64) (*Infographic, error) {
	session, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rendered, err := r.render(ctx, session)
	if err != nil {
		return nil, err
	}
	url, err := r.media.Save(ctx, InfographicPath(session.ID), rendered.SVG)
	if err != nil {
		return nil, fmt.Errorf("store infographic: %w", err)
	}
	if err := r.sessions.CompleteSession(ctx, session.ID, url, rendered.Layout); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if err := r.sessions.SetStatus(ctx, session.ID, SessionStatusInfographicGenerated); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	graphic, err := r.sessions.GetInfographic(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("get infographic: %w", err)
	}
	if graphic == nil {
		return nil, fmt.Errorf("infographic for session %d was not stored", session.ID)
	}
	r.logger.Info("infographic generated", zap.Int64("session_id", session.ID), zap.String("infographic_url", url))
	return graphic, nil
}

func (r *Runner) ingestHits(ctx context.Context, hits []SearchResult, logger *zap.Logger) ([]SourceInput, int, error) {
	var (
		ingested []SourceInput
		failures int
	)
	for _, hit := range hits {
		if len(ingested) >= r.cfg.MaxSourcesPerSession || failures >= r.cfg.MaxFailuresPerSession {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, failures, fmt.Errorf("ingest canceled: %w", err)
		}
		src, err := r.ingester.Ingest(ctx, hit.URL)
		if err != nil {
			failures++
			metrics.ObserveIngest("failed")
			logger.Info("source skipped", zap.String("url", hit.URL), zap.Error(err))
			continue
		}
		metrics.ObserveIngest("succeeded")
		ingested = append(ingested, SourceInput{
			Title:      firstNonEmpty(src.Title, hit.Title),
			URL:        src.URL,
			Snippet:    firstNonEmpty(src.Snippet, hit.Snippet),
			Confidence: 1.0,
			FetchedAt:  r.clock.Now(),
		})
	}
	return ingested, failures, nil
}

func (r *Runner) persist(ctx context.Context, sessionID int64, sources []SourceInput) error {
	msg := Message{
		SessionID: sessionID,
		Role:      "assistant",
		Content:   fmt.Sprintf("Collected %d sources.", len(sources)),
		CreatedAt: r.clock.Now(),
	}
	if _, err := r.sessions.PersistSources(ctx, sessionID, sources, msg); err != nil {
		return fmt.Errorf("persist sources: %w", err)
	}
	return nil
}

func (r *Runner) render(ctx context.Context, session Session) (RenderedInfographic, error) {
	records, err := r.sessions.ListSources(ctx, session.ID)
	if err != nil {
		return RenderedInfographic{}, fmt.Errorf("list sources: %w", err)
	}
	metas := make([]SourceMeta, 0, len(records))
	for _, rec := range records {
		metas = append(metas, SourceMeta{
			SourceID:   rec.ID,
			Title:      rec.Title,
			URL:        rec.URL,
			Confidence: rec.Confidence,
		})
	}
	rendered, err := r.renderer.Render(session.Prompt, metas)
	if err != nil {
		return RenderedInfographic{}, fmt.Errorf("render infographic: %w", err)
	}
	return rendered, nil
}

func (r *Runner) since(start time.Time, stage string) int64 {
	d := r.clock.Now().Sub(start)
	if d < 0 {
		d = 0
	}
	metrics.ObserveStageDuration(stage, d)
	return d.Milliseconds()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
