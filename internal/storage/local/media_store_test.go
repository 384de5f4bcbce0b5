// Package local_test tests the local filesystem media store.
package local_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-infograph/internal/research"
	"github.com/JakeFAU/research-infograph/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{MediaRoot: t.TempDir(), BaseURL: "http://example/media"})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "media")
		_, err := local.New(local.Config{MediaRoot: root})
		require.NoError(t, err)
		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := local.New(local.Config{})
		var cfgErr *research.ConfigError
		assert.True(t, errors.As(err, &cfgErr))
	})

	t.Run("RootIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{MediaRoot: file})
		assert.Error(t, err)
	})
}

func TestSave(t *testing.T) {
	root := t.TempDir()
	store, err := local.New(local.Config{MediaRoot: root, BaseURL: "http://example/media/"})
	require.NoError(t, err)

	t.Run("WritesFileAndReturnsURL", func(t *testing.T) {
		url, err := store.Save(context.Background(), "sessions/1/infographic.svg", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "http://example/media/sessions/1/infographic.svg", url)

		// #nosec G304 -- test reads from the controlled temp directory.
		data, err := os.ReadFile(filepath.Join(root, "sessions", "1", "infographic.svg"))
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), data)
	})

	t.Run("OverwritesWithoutLeavingTempFiles", func(t *testing.T) {
		_, err := store.Save(context.Background(), "sessions/2/infographic.svg", []byte("one"))
		require.NoError(t, err)
		_, err = store.Save(context.Background(), "sessions/2/infographic.svg", []byte("two"))
		require.NoError(t, err)

		entries, err := os.ReadDir(filepath.Join(root, "sessions", "2"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "infographic.svg", entries[0].Name())
	})

	for _, bad := range []string{"", "/abs.svg", "../escape.svg"} {
		t.Run("Rejects "+bad, func(t *testing.T) {
			_, err := store.Save(context.Background(), bad, []byte("x"))
			var storageErr *research.StorageError
			require.True(t, errors.As(err, &storageErr), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	store, err := local.New(local.Config{MediaRoot: root, BaseURL: "http://example/media"})
	require.NoError(t, err)
	ctx := context.Background()

	url, err := store.Save(ctx, "sessions/3/infographic.svg", []byte("<svg/>"))
	require.NoError(t, err)

	data, owned, err := store.Load(ctx, url)
	require.NoError(t, err)
	assert.True(t, owned)
	assert.Equal(t, []byte("<svg/>"), data)

	_, owned, err = store.Load(ctx, "https://storage.googleapis.com/bucket/sessions/3/infographic.svg")
	require.NoError(t, err)
	assert.False(t, owned)

	_, owned, err = store.Load(ctx, "http://example/media/sessions/4/infographic.svg")
	assert.True(t, owned)
	require.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)

	_, owned, err = store.Load(ctx, "http://example/media/../secret.svg")
	assert.True(t, owned)
	var storageErr *research.StorageError
	require.True(t, errors.As(err, &storageErr), "got %v", err)
}
