package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/research-infograph/internal/research"
)

// SessionStore keeps sessions and their sources, messages and infographic in
// memory. IDs are assigned from one counter per table, starting at 1.
type SessionStore struct {
	mu       sync.RWMutex
	clock    research.Clock
	sessions map[int64]research.Session
	sources  map[int64][]research.SourceRecord
	messages map[int64][]research.Message
	graphics map[int64]research.Infographic

	nextSessionID int64
	nextSourceID  int64
	nextMessageID int64
	nextGraphicID int64
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(clock research.Clock) *SessionStore {
	return &SessionStore{
		clock:    clock,
		sessions: make(map[int64]research.Session),
		sources:  make(map[int64][]research.SourceRecord),
		messages: make(map[int64][]research.Message),
		graphics: make(map[int64]research.Infographic),
	}
}

// CreateSession stores a new session and the user's prompt as its first message.
func (s *SessionStore) CreateSession(_ context.Context, prompt string) (research.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()
	s.nextSessionID++
	session := research.Session{
		ID:        s.nextSessionID,
		Prompt:    prompt,
		Status:    research.SessionStatusCreated,
		CreatedAt: now,
	}
	s.sessions[session.ID] = session
	s.appendMessage(research.Message{SessionID: session.ID, Role: "user", Content: prompt, CreatedAt: now})
	return session, nil
}

// GetSession returns research.ErrSessionNotFound for unknown IDs.
func (s *SessionStore) GetSession(_ context.Context, id int64) (research.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return research.Session{}, fmt.Errorf("get session %d: %w", id, research.ErrSessionNotFound)
	}
	return session, nil
}

// ListSessions filters prompts by a case-insensitive substring.
func (s *SessionStore) ListSessions(_ context.Context, query string, limit int) ([]research.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]research.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if needle != "" && !strings.Contains(strings.ToLower(session.Prompt), needle) {
			continue
		}
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetStatus overwrites the session status.
func (s *SessionStore) SetStatus(_ context.Context, sessionID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("set status for session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	session.Status = status
	s.sessions[sessionID] = session
	return nil
}

// AddSource appends a single source.
func (s *SessionStore) AddSource(_ context.Context, sessionID int64, in research.SourceInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return 0, fmt.Errorf("add source for session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	return s.appendSource(sessionID, in), nil
}

// UpdateSource rewrites title and snippet in place.
func (s *SessionStore) UpdateSource(
	_ context.Context,
	sessionID, sourceID int64,
	title, snippet string,
	fetchedAt time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources[sessionID] {
		rec := &s.sources[sessionID][i]
		if rec.ID != sourceID {
			continue
		}
		rec.Title = title
		rec.Snippet = snippet
		rec.FetchedAt = pointerTime(fetchedAt.UTC())
		return nil
	}
	return fmt.Errorf("update source %d: %w", sourceID, research.ErrSourceNotFound)
}

// AppendMessage stores msg, stamping CreatedAt when unset.
func (s *SessionStore) AppendMessage(_ context.Context, sessionID int64, msg research.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("append message for session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	msg.SessionID = sessionID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock.Now().UTC()
	}
	s.appendMessage(msg)
	return nil
}

// PersistSources appends all sources and the message under one lock.
func (s *SessionStore) PersistSources(
	_ context.Context,
	sessionID int64,
	sources []research.SourceInput,
	msg research.Message,
) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("persist sources for session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	ids := make([]int64, 0, len(sources))
	for _, in := range sources {
		ids = append(ids, s.appendSource(sessionID, in))
	}
	msg.SessionID = sessionID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock.Now().UTC()
	}
	s.appendMessage(msg)
	return ids, nil
}

// ListSources returns a copy of the session's sources in insertion order.
func (s *SessionStore) ListSources(_ context.Context, sessionID int64) ([]research.SourceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]research.SourceRecord, len(s.sources[sessionID]))
	copy(out, s.sources[sessionID])
	return out, nil
}

// ListMessages returns a copy of the session's messages in insertion order.
func (s *SessionStore) ListMessages(_ context.Context, sessionID int64) ([]research.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]research.Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out, nil
}

// GetInfographic returns nil when the session has not been rendered yet.
func (s *SessionStore) GetInfographic(_ context.Context, sessionID int64) (*research.Infographic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	graphic, ok := s.graphics[sessionID]
	if !ok {
		return nil, nil
	}
	return &graphic, nil
}

// CompleteSession upserts the infographic and marks the session completed.
func (s *SessionStore) CompleteSession(
	_ context.Context,
	sessionID int64,
	imageURL string,
	layout research.LayoutMeta,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("complete session %d: %w", sessionID, research.ErrSessionNotFound)
	}
	graphic, exists := s.graphics[sessionID]
	if !exists {
		s.nextGraphicID++
		graphic = research.Infographic{ID: s.nextGraphicID, SessionID: sessionID}
	}
	graphic.ImageURL = imageURL
	graphic.Layout = layout
	graphic.CreatedAt = s.clock.Now().UTC()
	s.graphics[sessionID] = graphic

	session.Status = research.SessionStatusCompleted
	s.sessions[sessionID] = session
	return nil
}

func (s *SessionStore) appendSource(sessionID int64, in research.SourceInput) int64 {
	s.nextSourceID++
	var fetchedAt *time.Time
	if !in.FetchedAt.IsZero() {
		fetchedAt = pointerTime(in.FetchedAt.UTC())
	}
	s.sources[sessionID] = append(s.sources[sessionID], research.SourceRecord{
		ID:         s.nextSourceID,
		SessionID:  sessionID,
		Title:      in.Title,
		URL:        in.URL,
		Snippet:    in.Snippet,
		FetchedAt:  fetchedAt,
		Confidence: in.Confidence,
	})
	return s.nextSourceID
}

func (s *SessionStore) appendMessage(msg research.Message) {
	s.nextMessageID++
	msg.ID = s.nextMessageID
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
}
