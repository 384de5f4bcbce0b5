// Package quality decides whether fetched HTML is worth ingesting and reduces
// it to plain text.
package quality

import (
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/research-infograph/internal/research"
)

// Default text length gate.
const (
	DefaultMinTextLength = 200
	DefaultMaxTextLength = 20000
)

var blockPageIndicators = []string{
	"captcha",
	"cloudflare",
	"attention required",
	"verify you are human",
	"unusual traffic",
	"access denied",
	"temporarily blocked",
	"temporary blocked",
}

var acceptedContentTypes = []string{
	"text/html",
	"application/xhtml",
}

// Heuristic applies the content-type, block-page and length rules in order.
type Heuristic struct {
	MinTextLength int
	MaxTextLength int
}

// NewHeuristic creates a Heuristic. Zero values fall back to the defaults.
func NewHeuristic(minTextLength, maxTextLength int) *Heuristic {
	if minTextLength <= 0 {
		minTextLength = DefaultMinTextLength
	}
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}
	return &Heuristic{MinTextLength: minTextLength, MaxTextLength: maxTextLength}
}

// Evaluate validates a response and returns its title and normalized text.
// Text is truncated to MaxTextLength before the minimum length check.
func (h *Heuristic) Evaluate(url, contentType, html string) (title, text string, err error) {
	if !AcceptableContentType(contentType) {
		return "", "", &research.ContentQualityError{URL: url, Reason: "unsupported content type " + contentType}
	}
	if indicator, blocked := BlockPageIndicator(html); blocked {
		return "", "", &research.ContentQualityError{URL: url, Reason: "block page detected (" + indicator + ")"}
	}
	title = ExtractTitle(html)
	text = research.TruncateRunes(Normalize(HTMLToText(html)), h.MaxTextLength)
	if n := utf8.RuneCountInString(text); n < h.MinTextLength {
		return "", "", &research.ContentQualityError{URL: url, Reason: "text too short"}
	}
	return title, text, nil
}

// AcceptableContentType passes an absent header or any HTML media type.
func AcceptableContentType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	lower := strings.ToLower(contentType)
	for _, accepted := range acceptedContentTypes {
		if strings.Contains(lower, accepted) {
			return true
		}
	}
	return false
}

// BlockPageIndicator reports the first interstitial phrase found in the raw HTML.
func BlockPageIndicator(html string) (string, bool) {
	lower := strings.ToLower(html)
	for _, indicator := range blockPageIndicators {
		if strings.Contains(lower, indicator) {
			return indicator, true
		}
	}
	return "", false
}
