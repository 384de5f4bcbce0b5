package summarize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestSummarizeEmptyText(t *testing.T) {
	t.Parallel()

	got := New(0, 0).Summarize("https://example.com", "T", " \n\t ")
	require.Equal(t, "", got.Summary)
	require.Empty(t, got.KeyPoints)
	require.Equal(t, "https://example.com", got.URL)
	require.Equal(t, "T", got.Title)
}

func TestSummarizeCollapsesWhitespaceAndBullets(t *testing.T) {
	t.Parallel()

	text := "First   point.\n\nSecond point. Third\tpoint..  Fourth. Fifth. Sixth."
	got := New(800, 5).Summarize("u", "", text)
	require.Equal(t, "First point. Second point. Third point.. Fourth. Fifth. Sixth.", got.Summary)
	require.Equal(t, []string{
		"- First point.",
		"- Second point.",
		"- Third point.",
		"- Fourth.",
		"- Fifth.",
	}, got.KeyPoints)
}

func TestSummarizeTruncatesToMaxChars(t *testing.T) {
	t.Parallel()

	got := New(800, 5).Summarize("u", "", strings.Repeat("x", 10000))
	require.Equal(t, 800, utf8.RuneCountInString(got.Summary))
	require.Len(t, got.KeyPoints, 1)
}

func TestSummarizeIsDeterministic(t *testing.T) {
	t.Parallel()

	s := New(50, 2)
	text := "Alpha beta. Gamma delta. Epsilon."
	require.Equal(t, s.Summarize("u", "t", text), s.Summarize("u", "t", text))
}
