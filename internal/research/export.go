package research

import (
	"context"
	"fmt"
)

// ExportSession gathers everything stored for a session. Empty collections are
// returned as empty slices, not nil.
func ExportSession(ctx context.Context, store SessionStore, sessionID int64) (SessionExport, error) {
	session, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return SessionExport{}, err
	}
	sources, err := store.ListSources(ctx, sessionID)
	if err != nil {
		return SessionExport{}, fmt.Errorf("list sources: %w", err)
	}
	messages, err := store.ListMessages(ctx, sessionID)
	if err != nil {
		return SessionExport{}, fmt.Errorf("list messages: %w", err)
	}
	graphic, err := store.GetInfographic(ctx, sessionID)
	if err != nil {
		return SessionExport{}, fmt.Errorf("get infographic: %w", err)
	}
	if sources == nil {
		sources = []SourceRecord{}
	}
	if messages == nil {
		messages = []Message{}
	}
	return SessionExport{
		Session:     session,
		Sources:     sources,
		Messages:    messages,
		Infographic: graphic,
	}, nil
}
