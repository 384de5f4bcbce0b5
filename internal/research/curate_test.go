package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-infograph/internal/clock/manual"
)

func TestAttachSearchResultsDedupesByURL(t *testing.T) {
	t.Parallel()

	clock := manual.New(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	store := newFakeSessionStore(clock)
	ctx := context.Background()
	session, err := store.CreateSession(ctx, "grid storage")
	require.NoError(t, err)
	_, err = store.AddSource(ctx, session.ID, SourceInput{Title: "Known", URL: "https://a.example"})
	require.NoError(t, err)

	res, err := AttachSearchResults(ctx, store, clock, session.ID, "grid storage", []SearchResult{
		{Title: "A again", URL: "https://a.example"},
		{Title: "B", URL: "https://b.example", Snippet: "from the results page"},
		{Title: "B twice", URL: "https://b.example"},
		{Title: "C", URL: "https://c.example"},
	})
	require.NoError(t, err)
	assert.Equal(t, AttachResult{Added: 2, Found: 4}, res)

	sources, err := store.ListSources(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, "B", sources[1].Title)
	assert.Equal(t, "from the results page", sources[1].Snippet)
	assert.Zero(t, sources[1].Confidence)
	require.NotNil(t, sources[2].FetchedAt)
	assert.True(t, sources[2].FetchedAt.Equal(clock.Now()))

	assert.Equal(t, []string{"Added 2 sources from web search: 'grid storage'."}, store.messageContents())
	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusSourced, got.Status)
}

func TestAttachSearchResultsNothingNew(t *testing.T) {
	t.Parallel()

	clock := manual.New(time.Unix(0, 0))
	store := newFakeSessionStore(clock)
	ctx := context.Background()
	session, err := store.CreateSession(ctx, "grid storage")
	require.NoError(t, err)

	res, err := AttachSearchResults(ctx, store, clock, session.ID, "grid storage", nil)
	require.NoError(t, err)
	assert.Equal(t, AttachResult{}, res)
	assert.Empty(t, store.messageContents())
	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusCreated, got.Status)

	_, err = AttachSearchResults(ctx, store, clock, 404, "q", []SearchResult{{URL: "u"}})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBackfillSources(t *testing.T) {
	t.Parallel()

	clock := manual.New(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	store := newFakeSessionStore(clock)
	ctx := context.Background()
	session, err := store.CreateSession(ctx, "grid storage")
	require.NoError(t, err)
	for _, in := range []SourceInput{
		{Title: "Has snippet", URL: "https://done.example", Snippet: "already summarized"},
		{Title: "Broken", URL: "https://broken.example"},
		{Title: "Fresh", URL: "https://fresh.example"},
		{Title: "Over budget", URL: "https://later.example"},
	} {
		_, err := store.AddSource(ctx, session.ID, in)
		require.NoError(t, err)
	}
	ingester := &fakeIngester{fail: map[string]bool{"https://broken.example": true}}

	clock.Advance(time.Minute)
	res, err := BackfillSources(ctx, store, ingester, clock, session.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Processed: 1, Skipped: 2, Total: 4}, res)
	assert.Equal(t, []string{"https://broken.example", "https://fresh.example"}, ingester.calls)

	sources, err := store.ListSources(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "already summarized", sources[0].Snippet)
	assert.Empty(t, sources[1].Snippet)
	assert.Equal(t, "Ingested https://fresh.example", sources[2].Title)
	assert.Equal(t, "summary of https://fresh.example", sources[2].Snippet)
	require.NotNil(t, sources[2].FetchedAt)
	assert.True(t, sources[2].FetchedAt.Equal(clock.Now()))
	assert.Empty(t, sources[3].Snippet)

	assert.Equal(t, []string{"Ingested 1 sources (fetched + summarized)."}, store.messageContents())
	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusIngested, got.Status)
}

func TestBackfillSourcesKeepsTitleAndTruncates(t *testing.T) {
	t.Parallel()

	clock := manual.New(time.Unix(0, 0))
	store := newFakeSessionStore(clock)
	ctx := context.Background()
	session, err := store.CreateSession(ctx, "grid storage")
	require.NoError(t, err)
	_, err = store.AddSource(ctx, session.ID, SourceInput{Title: "Original", URL: "https://x.example"})
	require.NoError(t, err)

	res, err := BackfillSources(ctx, store, &fakeIngester{blank: true}, clock, session.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	sources, err := store.ListSources(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", sources[0].Title)

	long := &titledIngester{title: strings.Repeat("é", MaxSourceTitleRunes+20)}
	_, err = store.AddSource(ctx, session.ID, SourceInput{Title: "Short", URL: "https://y.example"})
	require.NoError(t, err)
	_, err = BackfillSources(ctx, store, long, clock, session.ID, 5)
	require.NoError(t, err)
	sources, err = store.ListSources(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", MaxSourceTitleRunes), sources[1].Title)
}

func TestBackfillSourcesAbortsOnUnexpectedError(t *testing.T) {
	t.Parallel()

	clock := manual.New(time.Unix(0, 0))
	store := newFakeSessionStore(clock)
	ctx := context.Background()
	session, err := store.CreateSession(ctx, "grid storage")
	require.NoError(t, err)
	_, err = store.AddSource(ctx, session.ID, SourceInput{Title: "A", URL: "https://a.example"})
	require.NoError(t, err)

	_, err = BackfillSources(ctx, store, &fakeIngester{err: context.Canceled}, clock, session.ID, 5)
	require.ErrorIs(t, err, context.Canceled)

	quality := &ContentQualityError{URL: "https://a.example", Reason: "too short"}
	res, err := BackfillSources(ctx, store, &fakeIngester{err: quality}, clock, session.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{Skipped: 1, Total: 1}, res)
	assert.Empty(t, store.messageContents())

	_, err = BackfillSources(ctx, store, &fakeIngester{}, clock, 404, 5)
	require.True(t, errors.Is(err, ErrSessionNotFound))
}

type titledIngester struct {
	title string
}

func (f *titledIngester) Ingest(_ context.Context, url string) (IngestedSource, error) {
	return IngestedSource{URL: url, Title: f.title, Snippet: "body"}, nil
}
