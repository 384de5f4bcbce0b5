package research

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session ID has no row.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSourceNotFound is returned when a source ID is not part of the session.
	ErrSourceNotFound = errors.New("source not found")
	// ErrJobNotFound is returned when a job ID is unknown.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidPrompt is returned for blank, too short or too long prompts.
	ErrInvalidPrompt = errors.New("invalid prompt")
	// ErrQueueClosed is returned by queue operations after shutdown.
	ErrQueueClosed = errors.New("queue closed")
)

// ConfigError reports an invalid constructor or configuration argument.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError is returned by fail-fast token acquisition.
type RateLimitError struct {
	Resource string
}

func (e *RateLimitError) Error() string {
	if e.Resource == "" {
		return "rate limit exceeded"
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Resource)
}

// FetchError covers transport failures, bad status codes and limiter denials
// while retrieving a source.
type FetchError struct {
	URL        string
	StatusCode int
	Msg        string
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Msg
	switch {
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case e.Err != nil:
		msg = msg + ": " + e.Err.Error()
	}
	if e.URL == "" {
		return "fetch: " + msg
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, msg)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ContentQualityError is returned when a response is not worth ingesting.
type ContentQualityError struct {
	URL    string
	Reason string
}

func (e *ContentQualityError) Error() string {
	return fmt.Sprintf("low quality content at %s: %s", e.URL, e.Reason)
}

// SearchError is returned when the search backend fails.
type SearchError struct {
	Query      string
	StatusCode int
	Err        error
}

func (e *SearchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("search %q: %v", e.Query, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("search %q: unexpected status %d", e.Query, e.StatusCode)
	default:
		return fmt.Sprintf("search %q failed", e.Query)
	}
}

func (e *SearchError) Unwrap() error { return e.Err }

// StorageError is returned for rejected media paths and write failures.
type StorageError struct {
	Path   string
	Reason string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage %q: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("storage %q: %s", e.Path, e.Reason)
}

func (e *StorageError) Unwrap() error { return e.Err }
