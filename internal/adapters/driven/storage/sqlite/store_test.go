package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func makeChunks(n int, prefix string) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			Text:      fmt.Sprintf("%s chunk %d body text", prefix, i),
			Embedding: []float32{float32(i), 0.5, -1.25},
			Artifact:  domain.ArtifactText,
		}
	}
	return chunks
}

func TestOpen(t *testing.T) {
	t.Run("creates database file", func(t *testing.T) {
		dir := t.TempDir()
		store, err := Open(dir)
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(filepath.Join(dir, DBFileName))
		assert.NoError(t, err)
	})

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "collection")
		store, err := Open(dir)
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(filepath.Join(dir, DBFileName))
		assert.NoError(t, err)
	})

	t.Run("reopening applies no migrations twice", func(t *testing.T) {
		dir := t.TempDir()
		store, err := Open(dir)
		require.NoError(t, err)
		require.NoError(t, store.AddChunks(context.Background(), "sources/a.md", ".md", makeChunks(2, "a")))
		require.NoError(t, store.Close())

		store, err = Open(dir)
		require.NoError(t, err)
		defer store.Close()

		infos, err := store.ListSources(context.Background())
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, 2, infos[0].Chunks)
	})
}

func TestAddChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("stores chunks with contiguous indices", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(3, "doc")))

		all, err := store.AllChunks(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, sc := range all {
			assert.Equal(t, i, sc.Chunk.Index)
			assert.Equal(t, "sources/doc.md", sc.Source.Path)
			assert.Equal(t, ".md", sc.Source.Type)
			assert.Equal(t, []float32{float32(i), 0.5, -1.25}, sc.Chunk.Embedding)
			assert.False(t, sc.Chunk.CreatedAt.IsZero())
		}
	})

	t.Run("reuses the source row by path", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(2, "a")))
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(2, "b")))

		infos, err := store.ListSources(ctx)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, 4, infos[0].Chunks)
	})

	t.Run("retried run duplicates indices until dedup", func(t *testing.T) {
		store := setupTestStore(t)
		chunks := makeChunks(10, "doc")
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", chunks))
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", chunks))

		all, err := store.AllChunks(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 20)

		removed, err := store.Dedup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, removed)

		all, err = store.AllChunks(ctx)
		require.NoError(t, err)
		require.Len(t, all, 10)
		seen := map[int]bool{}
		for _, sc := range all {
			assert.False(t, seen[sc.Chunk.Index])
			seen[sc.Chunk.Index] = true
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", nil))

		infos, err := store.ListSources(ctx)
		require.NoError(t, err)
		assert.Empty(t, infos)
	})

	t.Run("stores page and artifact fields", func(t *testing.T) {
		store := setupTestStore(t)
		page := 3
		require.NoError(t, store.AddChunks(ctx, "sources/doc.pdf", ".pdf", []domain.Chunk{{
			Text:         "The chart shows an increase over time.",
			Embedding:    []float32{1, 2},
			Artifact:     domain.ArtifactChartSummary,
			ArtifactPath: "artifacts/charts/c1.png",
			Page:         &page,
		}}))

		all, err := store.AllChunks(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, domain.ArtifactChartSummary, all[0].Chunk.Artifact)
		assert.Equal(t, "artifacts/charts/c1.png", all[0].Chunk.ArtifactPath)
		require.NotNil(t, all[0].Chunk.Page)
		assert.Equal(t, 3, *all[0].Chunk.Page)
	})
}

func TestGetSourceAndChunk(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(3, "doc")))

	infos, err := store.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	id := infos[0].Source.ID

	t.Run("get source", func(t *testing.T) {
		src, err := store.GetSource(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "sources/doc.md", src.Path)
		assert.Equal(t, ".md", src.Type)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := store.GetSource(ctx, id+99)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("get chunk", func(t *testing.T) {
		sc, err := store.GetChunk(ctx, id, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, sc.Chunk.Index)
		assert.Contains(t, sc.Chunk.Text, "chunk 1")
		assert.Equal(t, "sources/doc.md", sc.Source.Path)
	})

	t.Run("missing chunk", func(t *testing.T) {
		_, err := store.GetChunk(ctx, id, 99)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateChunkText(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(2, "doc")))

	infos, err := store.ListSources(ctx)
	require.NoError(t, err)
	id := infos[0].Source.ID

	require.NoError(t, store.UpdateChunkText(ctx, id, 1, "edited body", []float32{9, 9, 9}))

	all, err := store.AllChunks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "edited body", all[1].Chunk.Text)
	assert.Equal(t, []float32{9, 9, 9}, all[1].Chunk.Embedding)

	assert.ErrorIs(t, store.UpdateChunkText(ctx, id, 99, "x", nil), domain.ErrNotFound)
}

func assertContiguous(t *testing.T, store *Store, sourceID int64) {
	t.Helper()
	all, err := store.AllChunks(context.Background())
	require.NoError(t, err)
	next := 0
	for _, sc := range all {
		if sc.Chunk.SourceID != sourceID {
			continue
		}
		assert.Equal(t, next, sc.Chunk.Index)
		next++
	}
}

func TestInsertAndDeleteChunk(t *testing.T) {
	ctx := context.Background()

	t.Run("insert shifts later indices up", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(3, "doc")))
		infos, _ := store.ListSources(ctx)
		id := infos[0].Source.ID

		require.NoError(t, store.InsertChunkAt(ctx, id, 1, domain.Chunk{
			Text: "inserted body", Embedding: []float32{1}, Artifact: domain.ArtifactText,
		}))

		all, err := store.AllChunks(ctx)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "inserted body", all[1].Chunk.Text)
		assertContiguous(t, store, id)
	})

	t.Run("delete shifts later indices down", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(4, "doc")))
		infos, _ := store.ListSources(ctx)
		id := infos[0].Source.ID

		require.NoError(t, store.DeleteChunk(ctx, id, 1))

		all, err := store.AllChunks(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Contains(t, all[1].Chunk.Text, "chunk 2")
		assertContiguous(t, store, id)
	})

	t.Run("deleting the last chunk removes the source", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(1, "doc")))
		infos, _ := store.ListSources(ctx)
		id := infos[0].Source.ID

		require.NoError(t, store.DeleteChunk(ctx, id, 0))

		_, err := store.GetSource(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("deleting a missing chunk", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(1, "doc")))
		infos, _ := store.ListSources(ctx)
		assert.ErrorIs(t, store.DeleteChunk(ctx, infos[0].Source.ID, 5), domain.ErrNotFound)
	})
}

func TestDeleteSource(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	require.NoError(t, store.AddChunks(ctx, "sources/a.md", ".md", makeChunks(3, "a")))
	require.NoError(t, store.AddChunks(ctx, "sources/b.md", ".md", makeChunks(2, "b")))

	infos, err := store.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	removed, err := store.DeleteSource(ctx, infos[0].Source.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	infos, err = store.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "sources/b.md", infos[0].Source.Path)

	_, err = store.DeleteSource(ctx, 9999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDedup(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps the lowest id per pair", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", []domain.Chunk{
			{Text: "original body", Artifact: domain.ArtifactText},
		}))
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", []domain.Chunk{
			{Text: "retried body", Artifact: domain.ArtifactText},
		}))

		removed, err := store.Dedup(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		all, err := store.AllChunks(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "original body", all[0].Chunk.Text)
	})

	t.Run("clean store removes nothing", func(t *testing.T) {
		store := setupTestStore(t)
		require.NoError(t, store.AddChunks(ctx, "sources/doc.md", ".md", makeChunks(5, "doc")))

		removed, err := store.Dedup(ctx)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}

func TestMigrationBackfill(t *testing.T) {
	// A database created with only the initial flat schema gets its
	// sources table populated and chunks relinked on open.
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	// Roll the schema back to version 1 shape by hand: recreate the
	// flat chunks table and erase the version record for 002.
	_, err = store.db.Exec(`
		DROP INDEX IF EXISTS idx_chunks_source_index;
		DROP TABLE chunks;
		DROP TABLE sources;
		DELETE FROM schema_migrations WHERE version >= 2;
		CREATE TABLE chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_path TEXT NOT NULL,
			source_type TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB,
			artifact_type TEXT NOT NULL DEFAULT 'text',
			artifact_path TEXT NOT NULL DEFAULT '',
			page INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO chunks (source_path, source_type, chunk_index, text) VALUES
			('sources/old.md', '.md', 0, 'legacy chunk zero'),
			('sources/old.md', '.md', 1, 'legacy chunk one'),
			('sources/other.md', '.md', 0, 'other chunk zero');
	`)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(dir)
	require.NoError(t, err)
	defer store.Close()

	infos, err := store.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "sources/old.md", infos[0].Source.Path)
	assert.Equal(t, 2, infos[0].Chunks)
	assert.Equal(t, "sources/other.md", infos[1].Source.Path)
	assert.Equal(t, 1, infos[1].Chunks)

	all, err := store.AllChunks(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "legacy chunk zero", all[0].Chunk.Text)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, 3.14159, -2.5e7}
	out := bytesToFloat32Slice(float32SliceToBytes(in))
	assert.Equal(t, in, out)

	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
