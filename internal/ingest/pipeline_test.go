package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-infograph/internal/research"
	"github.com/JakeFAU/research-infograph/internal/summarize"
)

func TestIngestTruncatesBeforeSummarizing(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{source: research.FetchedSource{
		URL:   "https://example.com",
		Title: "Example",
		Text:  strings.Repeat("x", 10000),
	}}
	recorder := &recordingSummarizer{inner: summarize.New(800, 5)}
	p := New(fetcher, recorder, 1234)

	got, err := p.Ingest(context.Background(), "https://example.com")
	require.NoError(t, err)
	require.Equal(t, 1234, utf8.RuneCountInString(recorder.lastText))
	require.LessOrEqual(t, utf8.RuneCountInString(got.Summary.Summary), 800)
	require.Equal(t, SnippetLength, utf8.RuneCountInString(got.Snippet))
	require.Equal(t, "Example", got.Title)
	require.Equal(t, "https://example.com", got.URL)
}

func TestIngestWithoutMaxCharsPassesFullText(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{source: research.FetchedSource{URL: "u", Text: strings.Repeat("y", 3000)}}
	recorder := &recordingSummarizer{inner: summarize.New(800, 5)}
	_, err := New(fetcher, recorder, 0).Ingest(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, 3000, utf8.RuneCountInString(recorder.lastText))
}

func TestIngestShortSummaryKeepsWholeSnippet(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{source: research.FetchedSource{URL: "u", Text: "Short text. Two sentences."}}
	got, err := New(fetcher, summarize.New(800, 5), 6000).Ingest(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, "Short text. Two sentences.", got.Snippet)
}

func TestIngestEmptySummaryHasEmptySnippet(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{source: research.FetchedSource{URL: "u", Text: "   "}}
	got, err := New(fetcher, summarize.New(800, 5), 6000).Ingest(context.Background(), "u")
	require.NoError(t, err)
	require.Empty(t, got.Snippet)
}

func TestIngestPropagatesFetchErrorsUnchanged(t *testing.T) {
	t.Parallel()

	qualityErr := &research.ContentQualityError{URL: "u", Reason: "text too short"}
	fetcher := &fakeFetcher{err: qualityErr}
	_, err := New(fetcher, summarize.New(800, 5), 6000).Ingest(context.Background(), "u")
	require.Same(t, qualityErr, err)

	var qErr *research.ContentQualityError
	require.True(t, errors.As(err, &qErr))
}

// --- fakes ---

type fakeFetcher struct {
	source research.FetchedSource
	err    error
}

func (f *fakeFetcher) Fetch(context.Context, string) (research.FetchedSource, error) {
	if f.err != nil {
		return research.FetchedSource{}, f.err
	}
	return f.source, nil
}

type recordingSummarizer struct {
	inner    research.Summarizer
	lastText string
}

func (s *recordingSummarizer) Summarize(url, title, text string) research.Summary {
	s.lastText = text
	return s.inner.Summarize(url, title, text)
}
