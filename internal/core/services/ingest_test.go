package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragdoll/internal/adapters/driven/extract"
	"github.com/custodia-labs/ragdoll/internal/core/domain"
)

const (
	paraOne = "The migration plan describes how the billing service moves from the legacy cluster " +
		"to the new platform without downtime for paying customers."
	paraTwo = "Engineers rehearse the cutover in a staging environment and record every step " +
		"so the production move follows a tested checklist."
)

var docBody = paraOne + "\n\n" + paraTwo + "\n"

// mockWatcher implements driven.Watcher, emitting preset paths and
// then blocking until cancelled.
type mockWatcher struct {
	paths []string
}

func (m *mockWatcher) Watch(ctx context.Context, emit func(path string)) error {
	for _, p := range m.paths {
		emit(p)
	}
	<-ctx.Done()
	return nil
}

func newTestIngestor(t *testing.T, env *testEnv, watchRoot string, opts ...IngestOption) *Ingestor {
	t.Helper()
	cfg := IngestorConfig{
		WatchRoot:     watchRoot,
		SettleDelay:   time.Millisecond,
		ZeroSizeRetry: 5 * time.Millisecond,
		StopTimeout:   time.Second,
	}
	return NewIngestor(cfg, env.registry, &mockWatcher{}, extract.DefaultRegistry(), &mockEmbedder{}, opts...)
}

func writeDoc(t *testing.T, path, content string) os.FileInfo {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info
}

func TestProcessOne_TextFile(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	path := filepath.Join(root, "notes.md")
	info := writeDoc(t, path, docBody)

	require.NoError(t, ing.processOne(context.Background(), path))

	store := env.store(t, "_root")
	infos, err := store.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	dest := filepath.Join(env.dataDir, "_root", "sources", "notes.md")
	assert.Equal(t, dest, infos[0].Source.Path)
	assert.Equal(t, ".md", infos[0].Source.Type)
	assert.Greater(t, infos[0].Chunks, 0)

	// Every chunk came from the document body.
	for _, text := range store.chunkTexts(infos[0].Source.ID) {
		assert.Contains(t, docBody, text)
	}

	log := env.log(t, "_root")
	for _, action := range []string{"process_start", "extract_ok", "chunk_ok", "store", "move", "process_done"} {
		assert.True(t, log.has(action), "missing action %s", action)
	}

	// The original moved into the collection's sources directory.
	assert.NoFileExists(t, path)
	assert.FileExists(t, dest)

	assert.True(t, env.ledger(t, "_root").Contains(path, info.ModTime().UnixNano(), info.Size()))
}

func TestProcessOne_GroupAndFlattening(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	path := filepath.Join(root, "research", "2024", "q1", "report.txt")
	writeDoc(t, path, docBody)

	require.NoError(t, ing.processOne(context.Background(), path))

	store := env.store(t, "research")
	infos, err := store.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	// Nesting below the group folder is flattened into one filename.
	dest := filepath.Join(env.dataDir, "research", "sources", "2024_q1_report.txt")
	assert.Equal(t, dest, infos[0].Source.Path)
	assert.FileExists(t, dest)
}

func TestProcessOne_AlreadyProcessed(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	path := filepath.Join(root, "notes.md")
	info := writeDoc(t, path, docBody)

	_, err := env.registry.Get("_root")
	require.NoError(t, err)
	require.NoError(t, env.ledger(t, "_root").Mark(path, info.ModTime().UnixNano(), info.Size()))

	require.NoError(t, ing.processOne(context.Background(), path))

	assert.True(t, env.log(t, "_root").has("already_processed"))
	assert.False(t, env.log(t, "_root").has("process_start"))
	chunks, err := env.store(t, "_root").AllChunks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chunks)
	// The file stays put.
	assert.FileExists(t, path)
}

func TestProcessOne_ChangedFileIsReprocessed(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	path := filepath.Join(root, "notes.md")
	info := writeDoc(t, path, docBody)

	_, err := env.registry.Get("_root")
	require.NoError(t, err)
	// A ledger record for a different size does not match.
	require.NoError(t, env.ledger(t, "_root").Mark(path, info.ModTime().UnixNano(), info.Size()+1))

	require.NoError(t, ing.processOne(context.Background(), path))
	assert.True(t, env.log(t, "_root").has("process_done"))
}

func TestProcessOne_EmptyFile(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	path := filepath.Join(root, "empty.txt")
	writeDoc(t, path, "")

	require.NoError(t, ing.processOne(context.Background(), path))

	assert.True(t, env.log(t, "_root").has("file_empty"))
	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(root, "failed", "empty.txt"))
}

func TestProcessOne_WhitespaceOnlyFile(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	path := filepath.Join(root, "blank.txt")
	writeDoc(t, path, "   \n\n   \n")

	require.NoError(t, ing.processOne(context.Background(), path))

	assert.True(t, env.log(t, "_root").has("chunk_empty"))
	assert.FileExists(t, filepath.Join(root, "failed", "blank.txt"))
}

func TestProcessOne_AllChunksRejected(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	// Long enough to chunk, but a single repeated word fails the
	// repetition rule.
	path := filepath.Join(root, "junk.txt")
	writeDoc(t, path, strings.Repeat("widget ", 40))

	require.NoError(t, ing.processOne(context.Background(), path))

	assert.True(t, env.log(t, "_root").has("chunk_all_rejected"))
	assert.FileExists(t, filepath.Join(root, "failed", "junk.txt"))
	chunks, err := env.store(t, "_root").AllChunks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessOne_EmbedFailure(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)
	ing.embedder = &mockEmbedder{err: errors.New("connection refused")}

	path := filepath.Join(root, "notes.md")
	info := writeDoc(t, path, docBody)

	require.NoError(t, ing.processOne(context.Background(), path))

	log := env.log(t, "_root")
	assert.True(t, log.has("embed_fail"))
	assert.False(t, log.has("store"))
	assert.FileExists(t, filepath.Join(root, "failed", "notes.md"))
	assert.False(t, env.ledger(t, "_root").Contains(path, info.ModTime().UnixNano(), info.Size()))
}

func TestProcessOne_EmbedCountMismatch(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)
	ing.embedder = &mockEmbedder{err: domain.ErrEmbeddingMismatch}

	path := filepath.Join(root, "notes.md")
	writeDoc(t, path, docBody)

	require.NoError(t, ing.processOne(context.Background(), path))

	assert.True(t, env.log(t, "_root").has("embed_mismatch"))
	assert.FileExists(t, filepath.Join(root, "failed", "notes.md"))
}

func TestProcessOne_ShortVectorCountIsMismatch(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)
	ing.embedder = &mockEmbedder{short: true}

	path := filepath.Join(root, "notes.md")
	writeDoc(t, path, docBody)

	require.NoError(t, ing.processOne(context.Background(), path))
	assert.True(t, env.log(t, "_root").has("embed_mismatch"))
	assert.FileExists(t, filepath.Join(root, "failed", "notes.md"))
}

func TestProcessOne_DocumentSummaryPrepended(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root,
		WithChunkLLM(&mockLLM{response: "A billing migration runbook."}))

	path := filepath.Join(root, "notes.md")
	writeDoc(t, path, docBody)

	require.NoError(t, ing.processOne(context.Background(), path))

	store := env.store(t, "_root")
	infos, err := store.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)

	texts := store.chunkTexts(infos[0].Source.ID)
	require.NotEmpty(t, texts)
	for _, text := range texts {
		assert.True(t, strings.HasPrefix(text, "A billing migration runbook.\n\n"))
	}
}

func TestProcessOne_SemanticChunking(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()

	// No chunk LLM, so semantic splitting lands on the deterministic
	// fallback and offsets map every chunk onto a page.
	cfg := IngestorConfig{
		WatchRoot:     root,
		SettleDelay:   time.Millisecond,
		ZeroSizeRetry: 5 * time.Millisecond,
		StopTimeout:   time.Second,
		Semantic:      true,
	}
	ing := NewIngestor(cfg, env.registry, &mockWatcher{}, extract.DefaultRegistry(), &mockEmbedder{})

	path := filepath.Join(root, "notes.md")
	writeDoc(t, path, docBody)

	require.NoError(t, ing.processOne(context.Background(), path))

	chunks, err := env.store(t, "_root").AllChunks(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, sc := range chunks {
		assert.Contains(t, docBody, sc.Chunk.Text)
		require.NotNil(t, sc.Chunk.Page)
		assert.Equal(t, 1, *sc.Chunk.Page)
	}
	assert.True(t, env.hasAction("_root", "process_done"))
}

func TestProcessOne_DuplicateIngestionThenReconcile(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)
	ctx := context.Background()

	path := filepath.Join(root, "notes.md")
	writeDoc(t, path, docBody)
	require.NoError(t, ing.processOne(ctx, path))

	store := env.store(t, "_root")
	first, err := store.AllChunks(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// The same file arrives again (new write, new mtime): the run
	// stores a second copy of every chunk at the same indices.
	writeDoc(t, path, docBody)
	require.NoError(t, ing.processOne(ctx, path))

	doubled, err := store.AllChunks(ctx)
	require.NoError(t, err)
	assert.Len(t, doubled, 2*len(first))

	removed := NewReconciler(env.registry, 0).Pass(ctx)
	assert.Equal(t, len(first), removed)

	after, err := store.AllChunks(ctx)
	require.NoError(t, err)
	require.Len(t, after, len(first))
	// The earliest copy survives.
	for i, sc := range after {
		assert.Equal(t, first[i].Chunk.ID, sc.Chunk.ID)
	}
}

func TestShouldEnqueue(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"supported file", filepath.Join(root, "a.md"), true},
		{"nested supported file", filepath.Join(root, "grp", "deep", "a.pdf"), true},
		{"resource fork", filepath.Join(root, "._a.md"), false},
		{"unsupported extension", filepath.Join(root, "a.exe"), false},
		{"no extension", filepath.Join(root, "README"), false},
		{"processed subtree", filepath.Join(root, "processed", "a.md"), false},
		{"failed subtree", filepath.Join(root, "grp", "failed", "a.md"), false},
		{"outside root", filepath.Join(t.TempDir(), "a.md"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ing.shouldEnqueue(tt.path))
		})
	}
}

func TestGroupFromPath(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	assert.Equal(t, "_root", ing.groupFromPath(filepath.Join(root, "a.md")))
	assert.Equal(t, "grp", ing.groupFromPath(filepath.Join(root, "grp", "a.md")))
	assert.Equal(t, "grp", ing.groupFromPath(filepath.Join(root, "grp", "deep", "a.md")))
	assert.Equal(t, "_root", ing.groupFromPath("/elsewhere/a.md"))
}

func TestRelWithinGroup(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()
	ing := newTestIngestor(t, env, root)

	assert.Equal(t, "a.md", ing.relWithinGroup(filepath.Join(root, "a.md")))
	assert.Equal(t, "a.md", ing.relWithinGroup(filepath.Join(root, "grp", "a.md")))
	assert.Equal(t, "deep_a.md", ing.relWithinGroup(filepath.Join(root, "grp", "deep", "a.md")))
	assert.Equal(t, "a.md", ing.relWithinGroup("/elsewhere/a.md"))
}

func TestStart_ProcessesWatchedFile(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()

	path := filepath.Join(root, "notes.md")
	writeDoc(t, path, docBody)

	ing := newTestIngestor(t, env, root)
	ing.watcher = &mockWatcher{paths: []string{path}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return env.hasAction("_root", "process_done")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestStart_ScanExisting(t *testing.T) {
	env := newTestEnv(t)
	root := t.TempDir()

	path := filepath.Join(root, "grp", "notes.md")
	writeDoc(t, path, docBody)

	ing := newTestIngestor(t, env, root)
	ing.cfg.ScanExisting = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Start(ctx) }()

	assert.Eventually(t, func() bool {
		return env.hasAction("grp", "process_done")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestStart_MissingWatchRoot(t *testing.T) {
	env := newTestEnv(t)
	ing := newTestIngestor(t, env, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, ing.Start(context.Background()))
}
