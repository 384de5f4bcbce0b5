// Package storage holds helpers shared by the media store backends.
package storage

import (
	"path"
	"strings"

	"github.com/JakeFAU/research-infograph/internal/research"
)

// CleanRelPath validates a slash-separated media path and returns its cleaned
// form. Empty, absolute and parent-escaping paths are rejected with a
// *research.StorageError.
func CleanRelPath(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", &research.StorageError{Path: relPath, Reason: "path is required"}
	}
	if strings.HasPrefix(relPath, "/") || strings.HasPrefix(relPath, `\`) || hasDriveLetter(relPath) {
		return "", &research.StorageError{Path: relPath, Reason: "path must be relative"}
	}
	cleaned := path.Clean(strings.ReplaceAll(relPath, `\`, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &research.StorageError{Path: relPath, Reason: "path escapes media root"}
	}
	return cleaned, nil
}

// ContentType guesses a media type from the path extension.
func ContentType(relPath string) string {
	switch strings.ToLower(path.Ext(relPath)) {
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func hasDriveLetter(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		((p[0] >= 'a' && p[0] <= 'z') || (p[0] >= 'A' && p[0] <= 'Z'))
}
