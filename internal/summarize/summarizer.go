// Package summarize produces deterministic extractive summaries.
package summarize

import (
	"strings"

	"github.com/JakeFAU/research-infograph/internal/research"
)

// Defaults for Simple.
const (
	DefaultMaxChars  = 800
	DefaultMaxPoints = 5
)

// Simple keeps the leading text of a page and bullets its first sentences.
type Simple struct {
	maxChars  int
	maxPoints int
}

// New creates a Simple summarizer. Non-positive limits fall back to the defaults.
func New(maxChars, maxPoints int) *Simple {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Simple{maxChars: maxChars, maxPoints: maxPoints}
}

// Summarize collapses whitespace, keeps the first maxChars characters and
// turns up to maxPoints "."-separated segments into "- segment." bullets.
func (s *Simple) Summarize(url, title, text string) research.Summary {
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return research.Summary{URL: url, Title: title, Summary: "", KeyPoints: []string{}}
	}

	summary := research.TruncateRunes(cleaned, s.maxChars)
	points := make([]string, 0, s.maxPoints)
	for _, part := range strings.Split(summary, ".") {
		if len(points) == s.maxPoints {
			break
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		points = append(points, "- "+part+".")
	}
	return research.Summary{URL: url, Title: title, Summary: summary, KeyPoints: points}
}
