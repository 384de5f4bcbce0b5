package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-infograph/internal/clock/manual"
	"github.com/JakeFAU/research-infograph/internal/research"
)

func testStore(t *testing.T) (*SessionStore, *manual.Clock) {
	t.Helper()
	clock := manual.New(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "test.db"), clock, nil)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", manual.New(time.Unix(0, 0)), nil)
	var cfgErr *research.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	store, clock := testStore(t)
	ctx := context.Background()

	session, err := store.CreateSession(ctx, "EV market trends")
	require.NoError(t, err)
	assert.Equal(t, int64(1), session.ID)

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "EV market trends", got.Prompt)
	assert.Equal(t, research.SessionStatusCreated, got.Status)
	assert.True(t, got.CreatedAt.Equal(clock.Now()))

	fetched := clock.Now().Add(-time.Minute)
	ids, err := store.PersistSources(ctx, session.ID, []research.SourceInput{
		{Title: "A", URL: "https://a.example", Snippet: "a", Confidence: 1, FetchedAt: fetched},
		{Title: "B", URL: "https://b.example", Confidence: 0.5},
	}, research.Message{Role: "assistant", Content: "Collected 2 sources."})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	sources, err := store.ListSources(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.NotNil(t, sources[0].FetchedAt)
	assert.True(t, sources[0].FetchedAt.Equal(fetched))
	assert.Nil(t, sources[1].FetchedAt)
	assert.InDelta(t, 0.5, sources[1].Confidence, 0.0001)

	msgs, err := store.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "Collected 2 sources.", msgs[1].Content)

	graphic, err := store.GetInfographic(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, graphic)

	layout := research.LayoutMeta{
		Title:      "EV market trends",
		KeyBullets: []string{"1. A"},
		Claims:     []research.Claim{{ID: "c1", Text: "1. A", SourceIDs: []int64{1, 2}, Grounded: true}},
		Sources:    []research.SourceMeta{{SourceID: 1, Title: "A", URL: "https://a.example", Confidence: 1}},
		Version:    2,
	}
	require.NoError(t, store.CompleteSession(ctx, session.ID, "http://m/first.svg", layout))
	require.NoError(t, store.CompleteSession(ctx, session.ID, "http://m/second.svg", layout))

	graphic, err = store.GetInfographic(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, graphic)
	assert.Equal(t, "http://m/second.svg", graphic.ImageURL)
	assert.Equal(t, layout, graphic.Layout)

	got, err = store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, research.SessionStatusCompleted, got.Status)
}

func TestUnknownSession(t *testing.T) {
	t.Parallel()

	store, _ := testStore(t)
	ctx := context.Background()

	_, err := store.GetSession(ctx, 99)
	require.ErrorIs(t, err, research.ErrSessionNotFound)

	_, err = store.PersistSources(ctx, 99, []research.SourceInput{{Title: "A", URL: "u"}}, research.Message{Role: "assistant"})
	require.ErrorIs(t, err, research.ErrSessionNotFound)

	err = store.CompleteSession(ctx, 99, "u", research.LayoutMeta{})
	require.ErrorIs(t, err, research.ErrSessionNotFound)

	_, err = store.AddSource(ctx, 99, research.SourceInput{Title: "A", URL: "u"})
	require.ErrorIs(t, err, research.ErrSessionNotFound)
	require.ErrorIs(t, store.SetStatus(ctx, 99, research.SessionStatusRunning), research.ErrSessionNotFound)
	require.ErrorIs(t, store.AppendMessage(ctx, 99, research.Message{Role: "assistant"}), research.ErrSessionNotFound)
}

func TestPersistEmptyBatchStillRecordsMessage(t *testing.T) {
	t.Parallel()

	store, _ := testStore(t)
	ctx := context.Background()
	session, err := store.CreateSession(ctx, "nothing found")
	require.NoError(t, err)

	ids, err := store.PersistSources(ctx, session.ID, nil, research.Message{Role: "assistant", Content: "Collected 0 sources."})
	require.NoError(t, err)
	assert.Empty(t, ids)

	msgs, err := store.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestListSessionsFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store, clock := testStore(t)
	ctx := context.Background()
	for _, prompt := range []string{"Solar adoption", "EV market trends", "solar storage costs"} {
		_, err := store.CreateSession(ctx, prompt)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	all, err := store.ListSessions(ctx, "", research.MaxListedSessions)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "solar storage costs", all[0].Prompt)
	assert.Equal(t, "Solar adoption", all[2].Prompt)

	solar, err := store.ListSessions(ctx, "SoLaR", research.MaxListedSessions)
	require.NoError(t, err)
	require.Len(t, solar, 2)
	assert.Equal(t, int64(3), solar[0].ID)
	assert.Equal(t, int64(1), solar[1].ID)

	limited, err := store.ListSessions(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSourceEditsAndStatus(t *testing.T) {
	t.Parallel()

	store, clock := testStore(t)
	ctx := context.Background()
	session, err := store.CreateSession(ctx, "heat pumps")
	require.NoError(t, err)

	id, err := store.AddSource(ctx, session.ID, research.SourceInput{Title: "Manual", URL: "https://m.example", Confidence: 0.3})
	require.NoError(t, err)

	fetched := clock.Now().Add(time.Hour)
	require.NoError(t, store.UpdateSource(ctx, session.ID, id, "Fetched", "body text", fetched))
	require.ErrorIs(t, store.UpdateSource(ctx, session.ID+1, id, "x", "y", fetched), research.ErrSourceNotFound)

	sources, err := store.ListSources(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Fetched", sources[0].Title)
	assert.Equal(t, "body text", sources[0].Snippet)
	require.NotNil(t, sources[0].FetchedAt)
	assert.True(t, sources[0].FetchedAt.Equal(fetched))

	require.NoError(t, store.AppendMessage(ctx, session.ID, research.Message{Role: "assistant", Content: "Ingested 1 sources."}))
	msgs, err := store.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Ingested 1 sources.", msgs[1].Content)

	require.NoError(t, store.SetStatus(ctx, session.ID, research.SessionStatusIngested))
	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, research.SessionStatusIngested, got.Status)
}
