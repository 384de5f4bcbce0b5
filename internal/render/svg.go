// Package render draws session infographics as deterministic SVG documents.
package render

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/research-infograph/internal/research"
)

const (
	// GeneratedBy identifies this template in layout metadata.
	GeneratedBy = "mvp-svg-template"
	// LayoutVersion is bumped whenever the layout metadata shape changes.
	LayoutVersion = 2

	maxTitleRunes  = 80
	maxBullets     = 5
	maxClaims      = 8
	maxClaimSource = 2
	fallbackBullet = "Add sources to generate richer results."
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// SVG renders the MVP infographic template.
type SVG struct{}

// New returns an SVG renderer.
func New() *SVG {
	return &SVG{}
}

// Render produces the SVG bytes and layout metadata for a prompt and its sources.
// Output depends only on the inputs.
func (r *SVG) Render(prompt string, sources []research.SourceMeta) (research.RenderedInfographic, error) {
	title := xmlEscaper.Replace(research.TruncateRunes(strings.TrimSpace(prompt), maxTitleRunes))
	bullets := keyBullets(sources)
	claims := buildClaims(bullets, sources)

	if sources == nil {
		sources = []research.SourceMeta{}
	}
	layout := research.LayoutMeta{
		Title:       title,
		KeyBullets:  bullets,
		Claims:      claims,
		Sources:     sources,
		GeneratedBy: GeneratedBy,
		Version:     LayoutVersion,
	}
	return research.RenderedInfographic{SVG: drawSVG(title, bullets), Layout: layout}, nil
}

// keyBullets numbers bullets by source position, so skipped untitled sources
// leave gaps in the numbering.
func keyBullets(sources []research.SourceMeta) []string {
	limit := min(len(sources), maxBullets)
	bullets := make([]string, 0, limit)
	for idx, src := range sources[:limit] {
		if src.Title == "" {
			continue
		}
		title := research.TruncateRunes(strings.TrimSpace(src.Title), maxTitleRunes)
		bullets = append(bullets, fmt.Sprintf("%d. %s", idx+1, title))
	}
	if len(bullets) == 0 {
		bullets = append(bullets, fallbackBullet)
	}
	return bullets
}

func buildClaims(bullets []string, sources []research.SourceMeta) []research.Claim {
	limit := min(len(bullets), maxClaims)
	claims := make([]research.Claim, 0, limit)
	for idx, bullet := range bullets[:limit] {
		ids := make([]int64, 0, maxClaimSource)
		for _, src := range sources[:min(len(sources), maxClaimSource)] {
			ids = append(ids, src.SourceID)
		}
		claims = append(claims, research.Claim{
			ID:        fmt.Sprintf("c%d", idx+1),
			Text:      bullet,
			SourceIDs: ids,
			Grounded:  len(ids) > 0,
		})
	}
	return claims
}

func drawSVG(title string, bullets []string) []byte {
	var b strings.Builder
	b.WriteString("<svg xmlns='http://www.w3.org/2000/svg' width='800' height='450'>")
	b.WriteString("<rect width='100%' height='100%' fill='#0B1220'/>")
	b.WriteString("<text x='40' y='70' fill='#E5E7EB' font-family='Arial' font-size='28' font-weight='700'>")
	b.WriteString(title)
	b.WriteString("</text>")
	b.WriteString("<text x='40' y='110' fill='#9CA3AF' font-family='Arial' font-size='14'>Generated infographic (MVP)</text>")
	y := 160
	for _, bullet := range bullets[:min(len(bullets), maxClaims)] {
		fmt.Fprintf(&b, "<text x='60' y='%d' fill='#E5E7EB' font-family='Arial' font-size='18'>%s</text>",
			y, xmlEscaper.Replace(bullet))
		y += 36
	}
	b.WriteString("</svg>")
	return []byte(b.String())
}
