// Package ingest turns a URL into a summarized source.
package ingest

import (
	"context"

	"github.com/JakeFAU/research-infograph/internal/research"
)

// SnippetLength is the number of summary characters kept as the source snippet.
const SnippetLength = 240

// Pipeline fetches a page, bounds its text and summarizes it.
type Pipeline struct {
	fetcher    research.Fetcher
	summarizer research.Summarizer
	maxChars   int
}

// New builds a Pipeline. maxChars <= 0 disables pre-summary truncation.
func New(fetcher research.Fetcher, summarizer research.Summarizer, maxChars int) *Pipeline {
	return &Pipeline{fetcher: fetcher, summarizer: summarizer, maxChars: maxChars}
}

// Ingest fetches url and summarizes it. Fetch and quality errors are
// returned unchanged.
func (p *Pipeline) Ingest(ctx context.Context, url string) (research.IngestedSource, error) {
	fetched, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return research.IngestedSource{}, err
	}
	text := research.TruncateRunes(fetched.Text, p.maxChars)
	summary := p.summarizer.Summarize(fetched.URL, fetched.Title, text)
	return research.IngestedSource{
		URL:     fetched.URL,
		Title:   fetched.Title,
		Snippet: research.TruncateRunes(summary.Summary, SnippetLength),
		Summary: summary,
	}, nil
}
