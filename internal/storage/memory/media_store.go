// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"io/fs"
	"strings"
	"sync"

	"github.com/JakeFAU/research-infograph/internal/research"
	"github.com/JakeFAU/research-infograph/internal/storage"
)

// MediaStore keeps artifacts in memory and returns pseudo URLs.
type MediaStore struct {
	mu      sync.RWMutex
	baseURL string
	data    map[string][]byte
}

// NewMediaStore creates an in-memory media store. An empty baseURL yields
// memory:// URLs.
func NewMediaStore(baseURL string) *MediaStore {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "memory:/"
	}
	return &MediaStore{
		baseURL: baseURL,
		data:    make(map[string][]byte),
	}
}

// Save stores a copy of data under relPath.
func (s *MediaStore) Save(_ context.Context, relPath string, data []byte) (string, error) {
	cleaned, err := storage.CleanRelPath(relPath)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cleaned] = append([]byte(nil), data...)
	return s.baseURL + "/" + cleaned, nil
}

// Get returns a copy of the stored bytes.
func (s *MediaStore) Get(relPath string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[relPath]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Load resolves a URL returned by Save. owned is false for foreign URLs.
func (s *MediaStore) Load(_ context.Context, url string) (data []byte, owned bool, err error) {
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil, false, nil
	}
	data, found := s.Get(rel)
	if !found {
		return nil, true, &research.StorageError{Path: rel, Reason: "not stored", Err: fs.ErrNotExist}
	}
	return data, true, nil
}
