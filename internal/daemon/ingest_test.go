package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndaru/kirana/internal/config"
	"github.com/ndaru/kirana/internal/logger"
	"github.com/ndaru/kirana/internal/store"
)

func newIngestFixture(t *testing.T) (*Daemon, string) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log, err := logger.New(logger.Config{Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	docsDir := t.TempDir()

	d := &Daemon{
		config: &config.Config{
			Knowledge: config.KnowledgeConfig{
				WatchDirs: []config.WatchDir{{KBID: "docs", Path: docsDir}},
			},
		},
		logger: log,
		store:  st,
	}

	return d, docsDir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestIngestDir(t *testing.T) {
	d, docsDir := newIngestFixture(t)
	ctx := context.Background()

	writeFile(t, docsDir, "geography.md", "Paris is the capital of France.")
	writeFile(t, docsDir, "nested/history.txt", "The French Revolution began in 1789.")
	writeFile(t, docsDir, "ignored.pdf", "binary")

	changed, err := d.ingestDir(ctx, "docs", docsDir)
	require.NoError(t, err)
	assert.True(t, changed)

	docs, err := d.store.ListDocuments(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "geography.md", docs[0].Path)
	assert.Equal(t, filepath.Join("nested", "history.txt"), docs[1].Path)
	assert.NotEmpty(t, docs[0].ContentHash)

	t.Run("unchanged files are skipped", func(t *testing.T) {
		changed, err := d.ingestDir(ctx, "docs", docsDir)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("modified file is re-ingested", func(t *testing.T) {
		writeFile(t, docsDir, "geography.md", "Paris and Lyon are French cities.")

		changed, err := d.ingestDir(ctx, "docs", docsDir)
		require.NoError(t, err)
		assert.True(t, changed)

		docs, err := d.store.ListDocuments(ctx, "docs")
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Contains(t, docs[0].Content, "Lyon")
	})

	t.Run("removed file drops its document", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(docsDir, "geography.md")))

		changed, err := d.ingestDir(ctx, "docs", docsDir)
		require.NoError(t, err)
		assert.True(t, changed)

		docs, err := d.store.ListDocuments(ctx, "docs")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, filepath.Join("nested", "history.txt"), docs[0].Path)
	})
}

func TestIsDocumentFile(t *testing.T) {
	assert.True(t, isDocumentFile("notes.md"))
	assert.True(t, isDocumentFile("notes.TXT"))
	assert.False(t, isDocumentFile("notes.pdf"))
	assert.False(t, isDocumentFile("notes"))
}

func TestContentHash(t *testing.T) {
	a := contentHash([]byte("same"))
	b := contentHash([]byte("same"))
	c := contentHash([]byte("different"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
