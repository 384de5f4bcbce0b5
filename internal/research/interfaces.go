package research

import (
	"context"
	"time"
)

// Searcher returns ranked hits for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Fetcher retrieves a URL and returns quality-checked text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchedSource, error)
}

// Summarizer condenses page text.
type Summarizer interface {
	Summarize(url, title, text string) Summary
}

// Ingester turns a URL into a stored-ready summary.
type Ingester interface {
	Ingest(ctx context.Context, url string) (IngestedSource, error)
}

// Renderer draws an infographic for a session.
type Renderer interface {
	Render(prompt string, sources []SourceMeta) (RenderedInfographic, error)
}

// MediaStore persists rendered artifacts and returns a public URL.
type MediaStore interface {
	Save(ctx context.Context, relPath string, data []byte) (string, error)
}

// SessionStore persists sessions and their sources, messages and infographic.
type SessionStore interface {
	CreateSession(ctx context.Context, prompt string) (Session, error)
	GetSession(ctx context.Context, id int64) (Session, error)
	// ListSessions returns at most limit sessions, newest first. A non-empty
	// query keeps only prompts containing it, ignoring case.
	ListSessions(ctx context.Context, query string, limit int) ([]Session, error)
	SetStatus(ctx context.Context, sessionID int64, status string) error
	AddSource(ctx context.Context, sessionID int64, in SourceInput) (int64, error)
	// UpdateSource replaces a source's title and snippet and stamps fetchedAt.
	UpdateSource(ctx context.Context, sessionID, sourceID int64, title, snippet string, fetchedAt time.Time) error
	AppendMessage(ctx context.Context, sessionID int64, msg Message) error
	// PersistSources writes every source plus the message in one commit and
	// returns the new source IDs in input order.
	PersistSources(ctx context.Context, sessionID int64, sources []SourceInput, msg Message) ([]int64, error)
	ListSources(ctx context.Context, sessionID int64) ([]SourceRecord, error)
	ListMessages(ctx context.Context, sessionID int64) ([]Message, error)
	GetInfographic(ctx context.Context, sessionID int64) (*Infographic, error)
	// CompleteSession upserts the infographic and marks the session completed.
	CompleteSession(ctx context.Context, sessionID int64, imageURL string, layout LayoutMeta) error
}

// JobStore persists job state transitions.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	MarkRunning(ctx context.Context, jobID string) error
	MarkSucceeded(ctx context.Context, jobID string, result JobResult) error
	MarkFailed(ctx context.Context, jobID string, errText string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Queue provides enqueue/dequeue semantics for jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes job notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Attributer is implemented by payloads that carry publish attributes.
type Attributer interface {
	Attributes() map[string]string
}
