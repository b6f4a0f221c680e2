package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlscope/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "dumps", "nested")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObjectWritesDump(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	dump := "http://(com,example,)\nhttp://(org,archive,)/details/\n"
	uri, err := store.PutObject(ctx, "run-1/surts.txt", "text/plain", strings.NewReader(dump))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "run-1", "surts.txt"), uri)

	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(filepath.Join(dir, "run-1", "surts.txt"))
	require.NoError(t, err)
	assert.Equal(t, dump, string(got))

	_, err = store.PutObject(ctx, "run-1/surts.txt", "text/plain", strings.NewReader("replaced\n"))
	require.NoError(t, err)
	got, err = os.ReadFile(filepath.Join(dir, "run-1", "surts.txt")) // #nosec G304
	require.NoError(t, err)
	assert.Equal(t, "replaced\n", string(got))

	entries, err := os.ReadDir(filepath.Join(dir, "run-1"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	for _, path := range []string{"", "../escape.txt", "a/../../escape.txt"} {
		_, err := store.PutObject(context.Background(), path, "text/plain", strings.NewReader("x"))
		assert.Error(t, err, path)
	}
}
