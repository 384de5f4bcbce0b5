package research

import "unicode/utf8"

// TruncateRunes returns at most limit characters of s. A non-positive limit
// returns s unchanged.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
