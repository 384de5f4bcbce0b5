// Package local implements a filesystem-backed media store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/research-infograph/internal/research"
	"github.com/JakeFAU/research-infograph/internal/storage"
)

// Config captures the parameters for the local media store.
type Config struct {
	// MediaRoot is the directory files are written under.
	MediaRoot string `mapstructure:"media_root"`
	// BaseURL prefixes returned URLs.
	BaseURL string `mapstructure:"media_base_url"`
}

// MediaStore writes rendered artifacts below a root directory.
type MediaStore struct {
	root    string
	baseURL string
}

// New creates the root directory when missing and checks it is writable.
func New(cfg Config) (*MediaStore, error) {
	if strings.TrimSpace(cfg.MediaRoot) == "" {
		return nil, &research.ConfigError{Field: "media_root", Reason: "is required"}
	}
	root, err := filepath.Abs(cfg.MediaRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}

	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create media root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat media root: %w", err)
	case !info.IsDir():
		return nil, &research.ConfigError{Field: "media_root", Reason: "is not a directory"}
	}

	probe := filepath.Join(root, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("media root is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &MediaStore{
		root:    root,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Root returns the absolute media directory.
func (s *MediaStore) Root() string {
	return s.root
}

// Save writes data to root/relPath through a temp file and rename, so readers
// never observe a partial file. The returned URL is baseURL + "/" + relPath.
func (s *MediaStore) Save(_ context.Context, relPath string, data []byte) (string, error) {
	cleaned, fullPath, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", &research.StorageError{Path: relPath, Reason: "create parent directories", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), filepath.Base(fullPath)+".*.tmp")
	if err != nil {
		return "", &research.StorageError{Path: relPath, Reason: "create temp file", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", &research.StorageError{Path: relPath, Reason: "write temp file", Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", &research.StorageError{Path: relPath, Reason: "close temp file", Err: err}
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", &research.StorageError{Path: relPath, Reason: "rename temp file", Err: err}
	}

	return s.baseURL + "/" + cleaned, nil
}

// Load reads back an artifact by the URL Save returned. owned is false when
// url does not live under this store's base URL.
func (s *MediaStore) Load(_ context.Context, url string) (data []byte, owned bool, err error) {
	rel, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil, false, nil
	}
	_, fullPath, err := s.resolve(rel)
	if err != nil {
		return nil, true, err
	}
	data, err = os.ReadFile(fullPath)
	if err != nil {
		return nil, true, &research.StorageError{Path: rel, Reason: "read file", Err: err}
	}
	return data, true, nil
}

func (s *MediaStore) resolve(relPath string) (cleaned, fullPath string, err error) {
	cleaned, err = storage.CleanRelPath(relPath)
	if err != nil {
		return "", "", err
	}
	fullPath = filepath.Join(s.root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(fullPath, s.root+string(filepath.Separator)) {
		return "", "", &research.StorageError{Path: relPath, Reason: "path escapes media root"}
	}
	return cleaned, fullPath, nil
}
