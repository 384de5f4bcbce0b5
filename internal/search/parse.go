package search

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/research-infograph/internal/research"
)

const resultMarker = `class="result__a"`

// ParseResults scans DuckDuckGo HTML for result anchors. Markup that does not
// fit the expected shape ends the scan early.
func ParseResults(page string, maxResults int) []research.SearchResult {
	results := make([]research.SearchResult, 0, maxResults)
	pos := 0
	for len(results) < maxResults {
		rel := strings.Index(page[pos:], resultMarker)
		if rel == -1 {
			break
		}
		idx := pos + rel

		hrefIdx := strings.LastIndex(page[:idx], "href=")
		if hrefIdx == -1 {
			pos = idx + len(resultMarker)
			continue
		}
		url, ok := quotedValue(page, hrefIdx+len("href="))
		if !ok {
			break
		}

		gt := strings.IndexByte(page[idx:], '>')
		if gt == -1 {
			break
		}
		titleStart := idx + gt + 1
		titleLen := strings.Index(page[titleStart:], "</a>")
		if titleLen == -1 {
			break
		}
		title := cleanTitle(page[titleStart : titleStart+titleLen])
		if title == "" {
			title = url
		}
		results = append(results, research.SearchResult{Title: title, URL: url})
		pos = titleStart + titleLen
	}
	return results
}

// quotedValue reads the first double-quoted string at or after start.
func quotedValue(page string, start int) (string, bool) {
	open := strings.IndexByte(page[start:], '"')
	if open == -1 {
		return "", false
	}
	valueStart := start + open + 1
	end := strings.IndexByte(page[valueStart:], '"')
	if end == -1 {
		return "", false
	}
	return page[valueStart : valueStart+end], true
}

func cleanTitle(raw string) string {
	var b strings.Builder
	inTag := false
	for _, r := range raw {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(html.UnescapeString(b.String()))
}
