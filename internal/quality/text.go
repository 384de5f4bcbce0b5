package quality

import "strings"

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&quot;", `"`,
	"&#39;", "'",
	"&lt;", "<",
	"&gt;", ">",
)

// HTMLToText drops script and style contents, turns br and p tags into
// newlines, strips every other tag and unescapes the five basic entities.
// An unterminated script, style or tag ends the scan.
func HTMLToText(html string) string {
	lower := asciiLower(html)
	var out strings.Builder
	out.Grow(len(html))

	i := 0
	for i < len(html) {
		if strings.HasPrefix(lower[i:], "<script") {
			end := strings.Index(lower[i:], "</script>")
			if end == -1 {
				break
			}
			i += end + len("</script>")
			continue
		}
		if strings.HasPrefix(lower[i:], "<style") {
			end := strings.Index(lower[i:], "</style>")
			if end == -1 {
				break
			}
			i += end + len("</style>")
			continue
		}
		if html[i] == '<' {
			end := strings.IndexByte(html[i:], '>')
			if end == -1 {
				break
			}
			tag := strings.TrimSpace(lower[i+1 : i+end])
			if strings.HasPrefix(tag, "br") || strings.HasPrefix(tag, "p") || strings.HasPrefix(tag, "/p") {
				out.WriteByte('\n')
			}
			i += end + 1
			continue
		}
		out.WriteByte(html[i])
		i++
	}
	return entityReplacer.Replace(out.String())
}

// ExtractTitle returns the <title> content collapsed to one line, or "".
func ExtractTitle(html string) string {
	lower := asciiLower(html)
	start := strings.Index(lower, "<title")
	if start == -1 {
		return ""
	}
	gt := strings.IndexByte(lower[start:], '>')
	if gt == -1 {
		return ""
	}
	contentStart := start + gt + 1
	end := strings.Index(lower[contentStart:], "</title>")
	if end == -1 {
		return ""
	}
	return strings.Join(strings.Fields(HTMLToText(html[contentStart:contentStart+end])), " ")
}

// Normalize collapses whitespace within lines, keeps at most one blank line
// in a row and trims blank lines at both ends.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		collapsed := strings.Join(strings.Fields(line), " ")
		if collapsed == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, collapsed)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

// asciiLower lowercases A-Z only so byte offsets stay aligned with the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
