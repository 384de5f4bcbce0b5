package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/research-infograph/internal/metrics"
)

// MaxSourceTitleRunes bounds titles written back by BackfillSources.
const MaxSourceTitleRunes = 500

// AttachResult reports how many search hits became new sources.
type AttachResult struct {
	Added int `json:"added"`
	Found int `json:"found"`
}

// BackfillResult reports what BackfillSources did with a session's sources.
type BackfillResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// AttachSearchResults stores hits whose URL the session does not already
// have. Attached sources are unscored and carry the hit's snippet, if any.
// When anything was added an assistant message is recorded and the session
// moves to SessionStatusSourced.
func AttachSearchResults(
	ctx context.Context,
	store SessionStore,
	clock Clock,
	sessionID int64,
	query string,
	hits []SearchResult,
) (AttachResult, error) {
	if _, err := store.GetSession(ctx, sessionID); err != nil {
		return AttachResult{}, err
	}
	existing, err := store.ListSources(ctx, sessionID)
	if err != nil {
		return AttachResult{}, fmt.Errorf("list sources: %w", err)
	}
	seen := make(map[string]struct{}, len(existing)+len(hits))
	for _, src := range existing {
		seen[src.URL] = struct{}{}
	}

	now := clock.Now()
	var fresh []SourceInput
	for _, hit := range hits {
		if _, dup := seen[hit.URL]; dup {
			continue
		}
		seen[hit.URL] = struct{}{}
		fresh = append(fresh, SourceInput{Title: hit.Title, URL: hit.URL, Snippet: hit.Snippet, FetchedAt: now})
	}

	result := AttachResult{Added: len(fresh), Found: len(hits)}
	if len(fresh) == 0 {
		return result, nil
	}
	msg := Message{
		Role:      "assistant",
		Content:   fmt.Sprintf("Added %d sources from web search: '%s'.", len(fresh), query),
		CreatedAt: now,
	}
	if _, err := store.PersistSources(ctx, sessionID, fresh, msg); err != nil {
		return AttachResult{}, fmt.Errorf("persist sources: %w", err)
	}
	if err := store.SetStatus(ctx, sessionID, SessionStatusSourced); err != nil {
		return AttachResult{}, fmt.Errorf("set status: %w", err)
	}
	return result, nil
}

// BackfillSources ingests up to maxSources of the session's sources that have
// no snippet yet. Sources that already have one, or whose fetch fails, are
// counted as skipped; any other ingest error aborts the run.
func BackfillSources(
	ctx context.Context,
	store SessionStore,
	ingester Ingester,
	clock Clock,
	sessionID int64,
	maxSources int,
) (BackfillResult, error) {
	if _, err := store.GetSession(ctx, sessionID); err != nil {
		return BackfillResult{}, err
	}
	sources, err := store.ListSources(ctx, sessionID)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("list sources: %w", err)
	}

	result := BackfillResult{Total: len(sources)}
	for _, src := range sources {
		if result.Processed >= maxSources {
			break
		}
		if src.Snippet != "" {
			result.Skipped++
			continue
		}
		ingested, err := ingester.Ingest(ctx, src.URL)
		if err != nil {
			if !isSkippableFetch(err) {
				return BackfillResult{}, fmt.Errorf("ingest %s: %w", src.URL, err)
			}
			metrics.ObserveIngest("failed")
			result.Skipped++
			continue
		}
		metrics.ObserveIngest("succeeded")

		title := src.Title
		if ingested.Title != "" {
			title = TruncateRunes(ingested.Title, MaxSourceTitleRunes)
		}
		if err := store.UpdateSource(ctx, sessionID, src.ID, title, ingested.Snippet, clock.Now()); err != nil {
			return BackfillResult{}, fmt.Errorf("update source %d: %w", src.ID, err)
		}
		result.Processed++
	}

	if result.Processed == 0 {
		return result, nil
	}
	msg := Message{
		Role:      "assistant",
		Content:   fmt.Sprintf("Ingested %d sources (fetched + summarized).", result.Processed),
		CreatedAt: clock.Now(),
	}
	if err := store.AppendMessage(ctx, sessionID, msg); err != nil {
		return BackfillResult{}, fmt.Errorf("append message: %w", err)
	}
	if err := store.SetStatus(ctx, sessionID, SessionStatusIngested); err != nil {
		return BackfillResult{}, fmt.Errorf("set status: %w", err)
	}
	return result, nil
}

func isSkippableFetch(err error) bool {
	var fetchErr *FetchError
	var qualityErr *ContentQualityError
	return errors.As(err, &fetchErr) || errors.As(err, &qualityErr)
}
