package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
)

// --- Mock implementations ---

// memChunkStore implements driven.ChunkStore in memory.
type memChunkStore struct {
	mu      sync.Mutex
	sources map[int64]*domain.Source
	chunks  []domain.Chunk
	nextSrc int64
	nextID  int64

	busy   bool
	closed bool
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{sources: make(map[int64]*domain.Source), nextSrc: 1, nextID: 1}
}

func (m *memChunkStore) sourceByPath(path string) *domain.Source {
	for _, s := range m.sources {
		if s.Path == path {
			return s
		}
	}
	return nil
}

func (m *memChunkStore) AddChunks(_ context.Context, sourcePath, sourceType string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.sourceByPath(sourcePath)
	if src == nil {
		src = &domain.Source{ID: m.nextSrc, Path: sourcePath, Type: sourceType}
		m.sources[src.ID] = src
		m.nextSrc++
	}
	for i, c := range chunks {
		c.ID = m.nextID
		c.SourceID = src.ID
		c.Index = i
		m.nextID++
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *memChunkStore) ListSources(_ context.Context) ([]driven.SourceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var infos []driven.SourceInfo
	for _, s := range m.sources {
		n := 0
		for _, c := range m.chunks {
			if c.SourceID == s.ID {
				n++
			}
		}
		infos = append(infos, driven.SourceInfo{Source: *s, Chunks: n})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Source.ID < infos[j].Source.ID })
	return infos, nil
}

func (m *memChunkStore) GetSource(_ context.Context, id int64) (*domain.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sources[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memChunkStore) GetChunk(_ context.Context, sourceID int64, index int) (*driven.StoredChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.chunks {
		if c.SourceID == sourceID && c.Index == index {
			src := m.sources[sourceID]
			return &driven.StoredChunk{Chunk: c, Source: *src}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memChunkStore) AllChunks(_ context.Context) ([]driven.StoredChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]driven.StoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, driven.StoredChunk{Chunk: c, Source: *m.sources[c.SourceID]})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Chunk, out[j].Chunk
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *memChunkStore) UpdateChunkText(_ context.Context, sourceID int64, index int, text string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.chunks {
		if c.SourceID == sourceID && c.Index == index {
			m.chunks[i].Text = text
			m.chunks[i].Embedding = embedding
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memChunkStore) InsertChunkAt(_ context.Context, sourceID int64, index int, chunk domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.chunks {
		if c.SourceID == sourceID && c.Index >= index {
			m.chunks[i].Index++
		}
	}
	chunk.ID = m.nextID
	chunk.SourceID = sourceID
	chunk.Index = index
	m.nextID++
	m.chunks = append(m.chunks, chunk)
	return nil
}

func (m *memChunkStore) DeleteChunk(_ context.Context, sourceID int64, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.SourceID == sourceID && c.Index == index && !found {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return domain.ErrNotFound
	}
	m.chunks = kept
	remaining := 0
	for i, c := range m.chunks {
		if c.SourceID == sourceID {
			remaining++
			if c.Index > index {
				m.chunks[i].Index--
			}
		}
	}
	if remaining == 0 {
		delete(m.sources, sourceID)
	}
	return nil
}

func (m *memChunkStore) DeleteSource(_ context.Context, sourceID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sources[sourceID]; !ok {
		return 0, domain.ErrNotFound
	}
	removed := 0
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	delete(m.sources, sourceID)
	return removed, nil
}

func (m *memChunkStore) Dedup(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return 0, domain.ErrStoreBusy
	}

	type key struct {
		src   int64
		index int
	}
	lowest := make(map[key]int64)
	for _, c := range m.chunks {
		k := key{c.SourceID, c.Index}
		if id, ok := lowest[k]; !ok || c.ID < id {
			lowest[k] = c.ID
		}
	}
	removed := 0
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if lowest[key{c.SourceID, c.Index}] == c.ID {
			kept = append(kept, c)
		} else {
			removed++
		}
	}
	m.chunks = kept
	return removed, nil
}

func (m *memChunkStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memChunkStore) chunkTexts(sourceID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	indexed := make(map[int]string)
	for _, c := range m.chunks {
		if c.SourceID == sourceID {
			indexed[c.Index] = c.Text
		}
	}
	texts := make([]string, 0, len(indexed))
	for i := 0; i < len(indexed); i++ {
		texts = append(texts, indexed[i])
	}
	return texts
}

// memLedger implements driven.ProcessedLedger in memory.
type memLedger struct {
	mu   sync.Mutex
	seen map[ledgerID]struct{}
}

type ledgerID struct {
	path  string
	mtime int64
	size  int64
}

func newMemLedger() *memLedger {
	return &memLedger{seen: make(map[ledgerID]struct{})}
}

func (m *memLedger) Contains(path string, mtimeNanos, size int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[ledgerID{path, mtimeNanos, size}]
	return ok
}

func (m *memLedger) Mark(path string, mtimeNanos, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[ledgerID{path, mtimeNanos, size}] = struct{}{}
	return nil
}

func (m *memLedger) Unmark(match string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k := range m.seen {
		if ledgerMatches(k.path, match) {
			delete(m.seen, k)
			removed++
		}
	}
	return removed, nil
}

// ledgerMatches mirrors the file ledger's matching: full path, base
// filename or flattened storage name.
func ledgerMatches(path, match string) bool {
	if path == match || filepath.Base(path) == match {
		return true
	}
	parts := strings.Split(filepath.ToSlash(path), "/")
	for k := 2; k <= len(parts); k++ {
		if strings.Join(parts[len(parts)-k:], "_") == match {
			return true
		}
	}
	return false
}

// recordActionLog implements driven.ActionLog, recording entries.
type recordActionLog struct {
	mu      sync.Mutex
	actions []string
	fields  []map[string]any
}

func (r *recordActionLog) Log(action string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	r.fields = append(r.fields, fields)
}

func (r *recordActionLog) has(action string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actions {
		if a == action {
			return true
		}
	}
	return false
}

// recordGarbageLog implements driven.GarbageLog, recording entries.
type recordGarbageLog struct {
	mu      sync.Mutex
	entries []domain.GarbageEntry
}

func (r *recordGarbageLog) Append(entry domain.GarbageEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// memArtifacts implements driven.ArtifactStore, fabricating paths.
type memArtifacts struct {
	mu     sync.Mutex
	charts int
	tables int
}

func (m *memArtifacts) StoreChart(stem string, page, idx int, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.charts++
	return filepath.Join("artifacts", "charts", stem), nil
}

func (m *memArtifacts) StoreTable(stem string, page, idx int, _ [][]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables++
	return filepath.Join("artifacts", "tables", stem), nil
}

func (m *memArtifacts) StoreFigure(stem string, page, idx int, _ []byte, _ domain.FigureProcess, _ string) (string, error) {
	return filepath.Join("artifacts", "figures", stem), nil
}

// mockEmbedder implements driven.EmbeddingService with per-text
// vectors.
type mockEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
	short    bool
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		if v, ok := m.vectors[t]; ok {
			out = append(out, v)
		} else if m.fallback != nil {
			out = append(out, m.fallback)
		} else {
			out = append(out, []float32{1, 0, 0})
		}
	}
	if m.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int              { return 3 }
func (m *mockEmbedder) ModelName() string            { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error                 { return nil }

// mockLLM implements driven.LLMService.
type mockLLM struct {
	response string
	err      error
}

func (m *mockLLM) Generate(_ context.Context, _ string, _ driven.GenerateOptions) (string, error) {
	return m.response, m.err
}

func (m *mockLLM) ModelName() string            { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error                 { return nil }

// --- Test wiring ---

// testEnv bundles a registry over in-memory collection bundles, with
// per-collection access to the mocks.
type testEnv struct {
	dataDir  string
	registry *Registry

	mu      sync.Mutex
	stores  map[string]*memChunkStore
	ledgers map[string]*memLedger
	logs    map[string]*recordActionLog
	garbage map[string]*recordGarbageLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		dataDir: t.TempDir(),
		stores:  make(map[string]*memChunkStore),
		ledgers: make(map[string]*memLedger),
		logs:    make(map[string]*recordActionLog),
		garbage: make(map[string]*recordGarbageLog),
	}
	opener := driven.CollectionOpenerFunc(func(dir string) (*driven.CollectionDeps, error) {
		// Touch the discovery marker like the real store does.
		marker := filepath.Join(dir, domain.StoreFileName)
		if err := os.WriteFile(marker, nil, 0o644); err != nil {
			return nil, err
		}

		name := filepath.Base(dir)
		env.mu.Lock()
		defer env.mu.Unlock()
		env.stores[name] = newMemChunkStore()
		env.ledgers[name] = newMemLedger()
		env.logs[name] = &recordActionLog{}
		env.garbage[name] = &recordGarbageLog{}
		return &driven.CollectionDeps{
			Store:      env.stores[name],
			Ledger:     env.ledgers[name],
			ActionLog:  env.logs[name],
			GarbageLog: env.garbage[name],
			Artifacts:  &memArtifacts{},
		}, nil
	})
	env.registry = NewRegistry(env.dataDir, opener)
	return env
}

func (e *testEnv) store(t *testing.T, name string) *memChunkStore {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.stores[name]
	require.True(t, ok, "collection %s never opened", name)
	return s
}

func (e *testEnv) log(t *testing.T, name string) *recordActionLog {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.logs[name]
	require.True(t, ok, "collection %s never opened", name)
	return l
}

// hasAction reports whether the named collection has been opened and
// its action log carries the action. Safe to poll.
func (e *testEnv) hasAction(name, action string) bool {
	e.mu.Lock()
	log, ok := e.logs[name]
	e.mu.Unlock()
	return ok && log.has(action)
}

func (e *testEnv) ledger(t *testing.T, name string) *memLedger {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.ledgers[name]
	require.True(t, ok, "collection %s never opened", name)
	return l
}
