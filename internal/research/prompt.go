package research

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Prompt length bounds, counted in characters after trimming.
const (
	MinPromptLength = 3
	MaxPromptLength = 4000
)

// ValidatePrompt trims the prompt and enforces the length bounds.
func ValidatePrompt(prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case n == 0:
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidPrompt)
	case n < MinPromptLength:
		return "", fmt.Errorf("%w: must be at least %d characters", ErrInvalidPrompt, MinPromptLength)
	case n > MaxPromptLength:
		return "", fmt.Errorf("%w: must be at most %d characters", ErrInvalidPrompt, MaxPromptLength)
	}
	return trimmed, nil
}
