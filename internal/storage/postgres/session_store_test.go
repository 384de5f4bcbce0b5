package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-infograph/internal/clock/manual"
	"github.com/JakeFAU/research-infograph/internal/research"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*SessionStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewSessionStoreWithPool(mock, manual.New(testNow), nil)
	require.NoError(t, err)
	return store, mock
}

func TestNewSessionStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewSessionStore(context.Background(), Config{}, manual.New(testNow), nil)
	var cfgErr *research.ConfigError
	require.True(t, errors.As(err, &cfgErr))

	_, err = NewSessionStoreWithPool(nil, manual.New(testNow), nil)
	require.Error(t, err)
}

func TestMigrateAppliesSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS research_sessions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSessionInsertsSessionAndPromptMessage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO research_sessions").
		WithArgs("EV market trends", research.SessionStatusCreated, testNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(int64(11), "user", "EV market trends", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	session, err := store.CreateSession(context.Background(), "EV market trends")
	require.NoError(t, err)
	assert.Equal(t, research.Session{
		ID:        11,
		Prompt:    "EV market trends",
		Status:    research.SessionStatusCreated,
		CreatedAt: testNow,
	}, session)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionMapsNoRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, prompt, status, created_at FROM research_sessions").
		WithArgs(int64(5)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetSession(context.Background(), 5)
	require.ErrorIs(t, err, research.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, prompt, status, created_at FROM research_sessions").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "prompt", "status", "created_at"}).
			AddRow(int64(5), "solar", research.SessionStatusCompleted, testNow))

	session, err := store.GetSession(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "solar", session.Prompt)
	assert.Equal(t, research.SessionStatusCompleted, session.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistSourcesCommitsOnce(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	fetched := testNow.Add(-time.Minute)
	mock.ExpectBegin()
	expectSessionCheck(mock, 3, true)
	mock.ExpectQuery("INSERT INTO sources").
		WithArgs(int64(3), "A", "https://a.example", "a", pgxmock.AnyArg(), 1.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectQuery("INSERT INTO sources").
		WithArgs(int64(3), "B", "https://b.example", "", pgxmock.AnyArg(), 1.0).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(101)))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(int64(3), "assistant", "Collected 2 sources.", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ids, err := store.PersistSources(context.Background(), 3, []research.SourceInput{
		{Title: "A", URL: "https://a.example", Snippet: "a", Confidence: 1, FetchedAt: fetched},
		{Title: "B", URL: "https://b.example", Confidence: 1},
	}, research.Message{Role: "assistant", Content: "Collected 2 sources."})
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 101}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistSourcesRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	boom := errors.New("boom")
	mock.ExpectBegin()
	expectSessionCheck(mock, 3, true)
	mock.ExpectQuery("INSERT INTO sources").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := store.PersistSources(context.Background(), 3, []research.SourceInput{{Title: "A", URL: "u"}},
		research.Message{Role: "assistant", Content: "Collected 1 sources."})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistSourcesUnknownSession(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	expectSessionCheck(mock, 42, false)
	mock.ExpectRollback()

	_, err := store.PersistSources(context.Background(), 42, []research.SourceInput{{Title: "A", URL: "u"}},
		research.Message{Role: "assistant", Content: "Collected 1 sources."})
	require.ErrorIs(t, err, research.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, prompt, status, created_at FROM research_sessions").
		WithArgs("solar", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "prompt", "status", "created_at"}).
			AddRow(int64(3), "solar storage", research.SessionStatusSourced, testNow).
			AddRow(int64(1), "Solar adoption", research.SessionStatusCreated, testNow.Add(-time.Hour)))

	sessions, err := store.ListSessions(context.Background(), "solar", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(3), sessions[0].ID)
	assert.Equal(t, research.SessionStatusSourced, sessions[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatus(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE research_sessions SET status").
		WithArgs(research.SessionStatusRunning, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE research_sessions SET status").
		WithArgs(research.SessionStatusRunning, int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.SetStatus(context.Background(), 3, research.SessionStatusRunning))
	err := store.SetStatus(context.Background(), 4, research.SessionStatusRunning)
	require.ErrorIs(t, err, research.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSource(t *testing.T) {
	t.Parallel()

	t.Run("inserts", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		expectSessionCheck(mock, 3, true)
		mock.ExpectQuery("INSERT INTO sources").
			WithArgs(int64(3), "Manual", "https://m.example", "", pgxmock.AnyArg(), 0.4).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(55)))
		mock.ExpectCommit()

		id, err := store.AddSource(context.Background(), 3,
			research.SourceInput{Title: "Manual", URL: "https://m.example", Confidence: 0.4})
		require.NoError(t, err)
		assert.Equal(t, int64(55), id)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		expectSessionCheck(mock, 9, false)
		mock.ExpectRollback()

		_, err := store.AddSource(context.Background(), 9, research.SourceInput{Title: "A", URL: "u"})
		require.ErrorIs(t, err, research.ErrSessionNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateSource(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE sources SET title").
		WithArgs("Fetched", "body", pgxmock.AnyArg(), int64(55), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE sources SET title").
		WithArgs("Fetched", "body", pgxmock.AnyArg(), int64(56), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.UpdateSource(context.Background(), 3, 55, "Fetched", "body", testNow))
	err := store.UpdateSource(context.Background(), 3, 56, "Fetched", "body", testNow)
	require.ErrorIs(t, err, research.ErrSourceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(int64(3), "assistant", "Ingested 2 sources (fetched + summarized).", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(int64(8), "assistant", "hello", testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.AppendMessage(context.Background(), 3,
		research.Message{Role: "assistant", Content: "Ingested 2 sources (fetched + summarized)."}))
	err := store.AppendMessage(context.Background(), 8, research.Message{Role: "assistant", Content: "hello"})
	require.ErrorIs(t, err, research.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSourcesScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, session_id, title, url, snippet, fetched_at, confidence").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "title", "url", "snippet", "fetched_at", "confidence"}).
			AddRow(int64(100), int64(3), "A", "https://a.example", "a", testNow, 1.0).
			AddRow(int64(101), int64(3), "B", "https://b.example", "", nil, 0.5))

	sources, err := store.ListSources(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.NotNil(t, sources[0].FetchedAt)
	assert.True(t, sources[0].FetchedAt.Equal(testNow))
	assert.Nil(t, sources[1].FetchedAt)
	assert.InDelta(t, 0.5, sources[1].Confidence, 0.0001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesScansRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id, session_id, role, content, created_at FROM messages").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
			AddRow(int64(1), int64(3), "user", "prompt", testNow))

	msgs, err := store.ListMessages(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInfographic(t *testing.T) {
	t.Parallel()

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectQuery("FROM infographics").WithArgs(int64(3)).WillReturnError(pgx.ErrNoRows)

		graphic, err := store.GetInfographic(context.Background(), 3)
		require.NoError(t, err)
		assert.Nil(t, graphic)
	})

	t.Run("decodes layout", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		layout := []byte(`{"title":"T","key_bullets":["1. A"],"claims":[],"sources":[],"generated_by":"mvp-svg-template","version":2}`)
		mock.ExpectQuery("FROM infographics").
			WithArgs(int64(3)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "image_url", "layout_meta", "created_at"}).
				AddRow(int64(9), int64(3), "http://m/x.svg", layout, testNow))

		graphic, err := store.GetInfographic(context.Background(), 3)
		require.NoError(t, err)
		require.NotNil(t, graphic)
		assert.Equal(t, "T", graphic.Layout.Title)
		assert.Equal(t, []string{"1. A"}, graphic.Layout.KeyBullets)
		assert.Equal(t, 2, graphic.Layout.Version)
	})
}

func TestCompleteSession(t *testing.T) {
	t.Parallel()

	t.Run("upserts infographic", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE research_sessions SET status").
			WithArgs(research.SessionStatusCompleted, int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO infographics").
			WithArgs(int64(3), "http://m/x.svg", pgxmock.AnyArg(), testNow).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, store.CompleteSession(context.Background(), 3, "http://m/x.svg", research.LayoutMeta{Title: "T"}))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE research_sessions SET status").
			WithArgs(research.SessionStatusCompleted, int64(4)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err := store.CompleteSession(context.Background(), 4, "u", research.LayoutMeta{})
		require.ErrorIs(t, err, research.ErrSessionNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func expectSessionCheck(mock pgxmock.PgxPoolIface, id int64, found bool) {
	q := mock.ExpectQuery("SELECT id FROM research_sessions").WithArgs(id)
	if found {
		q.WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
		return
	}
	q.WillReturnError(pgx.ErrNoRows)
}
