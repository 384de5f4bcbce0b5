// Package gcs provides a MediaStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/research-infograph/internal/research"
	mediastorage "github.com/JakeFAU/research-infograph/internal/storage"
)

// DefaultBaseURL is the public object endpoint.
const DefaultBaseURL = "https://storage.googleapis.com"

// Config captures the parameters required to write to GCS.
type Config struct {
	Bucket  string
	BaseURL string
}

// MediaStore uploads rendered artifacts to a configured bucket.
type MediaStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

// New creates a GCS-backed media store.
func New(client *storage.Client, cfg Config) (*MediaStore, error) {
	if client == nil {
		return nil, &research.ConfigError{Field: "gcs client", Reason: "is required"}
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, &research.ConfigError{Field: "gcs_bucket", Reason: "is required"}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &MediaStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: baseURL,
	}, nil
}

// Save uploads data as object relPath and returns baseURL/bucket/relPath.
func (s *MediaStore) Save(ctx context.Context, relPath string, data []byte) (string, error) {
	object, err := mediastorage.CleanRelPath(relPath)
	if err != nil {
		return "", err
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = mediastorage.ContentType(object)
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", &research.StorageError{
				Path:   relPath,
				Reason: fmt.Sprintf("write object (close writer: %v)", closeErr),
				Err:    err,
			}
		}
		return "", &research.StorageError{Path: relPath, Reason: "write object", Err: err}
	}
	if err := writer.Close(); err != nil {
		return "", &research.StorageError{Path: relPath, Reason: "close writer", Err: err}
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, object), nil
}
