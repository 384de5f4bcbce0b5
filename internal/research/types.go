// Package research defines the core types, interfaces and job runner shared
// across the ingestion subsystems.
package research

import (
	"strconv"
	"time"
)

// JobState represents the lifecycle state of a background job.
type JobState string

// Job states persisted in the job store.
const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// JobKindResearch is the only job kind the worker pool executes today.
const JobKindResearch = "research"

// Session statuses.
const (
	SessionStatusCreated              = "created"
	SessionStatusRunning              = "running"
	SessionStatusSourced              = "sourced"
	SessionStatusIngested             = "ingested"
	SessionStatusInfographicGenerated = "infographic_generated"
	SessionStatusCompleted            = "completed"
)

// MaxListedSessions caps ListSessions.
const MaxListedSessions = 100

// StatusMissing is reported when a job targets a session that no longer exists.
const StatusMissing = "missing"

// SearchResult is a single hit from the search backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// FetchedSource is a page that passed the quality gate.
type FetchedSource struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"text"`
	ContentType string    `json:"content_type,omitempty"`
	StatusCode  int       `json:"status_code,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Summary is the deterministic digest of a fetched page.
type Summary struct {
	URL       string   `json:"url"`
	Title     string   `json:"title,omitempty"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// IngestedSource is the output of the ingest pipeline for one URL.
type IngestedSource struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Summary Summary `json:"summary"`
}

// JobTiming holds per-stage wall-clock durations in milliseconds.
type JobTiming struct {
	Total  int64 `json:"total"`
	Search int64 `json:"search"`
	Ingest int64 `json:"ingest"`
	Render int64 `json:"render"`
	Store  int64 `json:"store"`
}

// JobResult is the outcome of one research run.
type JobResult struct {
	SessionID      int64      `json:"session_id"`
	Status         string     `json:"status"`
	SourcesCreated int        `json:"sources_created"`
	SourcesFailed  int        `json:"sources_failed"`
	InfographicURL string     `json:"infographic_url,omitempty"`
	Timing         *JobTiming `json:"timing_ms,omitempty"`
}

// Session is a user research request.
type Session struct {
	ID        int64     `json:"id"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceInput is a source about to be persisted for a session.
type SourceInput struct {
	Title      string
	URL        string
	Snippet    string
	Confidence float64
	FetchedAt  time.Time
}

// SourceRecord is a persisted source row.
type SourceRecord struct {
	ID         int64      `json:"id"`
	SessionID  int64      `json:"-"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Snippet    string     `json:"snippet,omitempty"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	Confidence float64    `json:"confidence"`
}

// Message is a chat-style note attached to a session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"-"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceMeta is the renderer's view of a persisted source.
type SourceMeta struct {
	SourceID   int64   `json:"source_id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
}

// Claim is a rendered statement linked to the sources backing it.
type Claim struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	SourceIDs []int64 `json:"source_ids"`
	Grounded  bool    `json:"grounded"`
}

// LayoutMeta describes what the renderer drew.
type LayoutMeta struct {
	Title       string       `json:"title"`
	KeyBullets  []string     `json:"key_bullets"`
	Claims      []Claim      `json:"claims"`
	Sources     []SourceMeta `json:"sources"`
	GeneratedBy string       `json:"generated_by"`
	Version     int          `json:"version"`
}

// RenderedInfographic is the renderer output.
type RenderedInfographic struct {
	SVG    []byte
	Layout LayoutMeta
}

// Infographic is the persisted rendering for a session (one per session).
type Infographic struct {
	ID        int64      `json:"id"`
	SessionID int64      `json:"-"`
	ImageURL  string     `json:"image_url"`
	Layout    LayoutMeta `json:"layout_meta"`
	CreatedAt time.Time  `json:"created_at"`
}

// SessionExport bundles everything stored for a session.
type SessionExport struct {
	Session     Session        `json:"session"`
	Sources     []SourceRecord `json:"sources"`
	Messages    []Message      `json:"messages"`
	Infographic *Infographic   `json:"infographic"`
}

// Job represents the metadata persisted for each submitted job.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	SessionID  int64      `json:"session_id"`
	State      JobState   `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *JobResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Kind      string
	SessionID int64
	Submitted int64
}

// JobNotification is published when a job reaches a terminal state.
type JobNotification struct {
	JobID     string     `json:"job_id"`
	SessionID int64      `json:"session_id"`
	State     JobState   `json:"state"`
	Result    *JobResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Attributes returns the message attributes attached when publishing.
func (n JobNotification) Attributes() map[string]string {
	return map[string]string{
		"job_id":     n.JobID,
		"session_id": strconv.FormatInt(n.SessionID, 10),
		"state":      string(n.State),
	}
}
