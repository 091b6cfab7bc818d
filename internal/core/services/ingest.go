package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragdoll/internal/chunker"
	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driving"
	"github.com/custodia-labs/ragdoll/internal/garbage"
	"github.com/custodia-labs/ragdoll/internal/interpret"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// Ensure Ingestor implements the interface.
var _ driving.Ingestor = (*Ingestor)(nil)

// Ingest defaults.
const (
	DefaultSettleDelay   = 2 * time.Second
	DefaultZeroSizeRetry = 10 * time.Second
	DefaultQueueSize     = 1024
	DefaultStopTimeout   = 5 * time.Second
)

// IngestorConfig tunes the watched-folder pipeline.
type IngestorConfig struct {
	// WatchRoot is the folder watched for documents. Must exist when
	// Start is called.
	WatchRoot string

	// SettleDelay is how long a dequeued file rests before
	// processing, letting writes finish.
	SettleDelay time.Duration

	// ZeroSizeRetry is the wait before rechecking a zero-byte file.
	ZeroSizeRetry time.Duration

	// Semantic enables LLM window chunking for prose.
	Semantic bool

	// ScanExisting enqueues files already under the root at startup.
	ScanExisting bool

	// StopTimeout bounds the wait for the worker to drain its current
	// item on shutdown.
	StopTimeout time.Duration
}

func (c *IngestorConfig) applyDefaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ZeroSizeRetry <= 0 {
		c.ZeroSizeRetry = DefaultZeroSizeRetry
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
}

// Ingestor runs the full pipeline for one watch root: enqueue, settle,
// extract, chunk, filter, summarise, embed, store, move.
type Ingestor struct {
	cfg        IngestorConfig
	registry   *Registry
	watcher    driven.Watcher
	extractors driven.ExtractorRegistry
	embedder   driven.EmbeddingService

	chunkLLM     driven.LLMService
	interpretLLM driven.LLMService

	chunkOpts   []chunker.Option
	garbageOpts []garbage.Option

	queue chan string
}

// IngestOption configures an Ingestor.
type IngestOption func(*Ingestor)

// WithChunkLLM provides the generation service used for semantic
// chunking, oversize-block splitting and document summaries.
func WithChunkLLM(svc driven.LLMService) IngestOption {
	return func(s *Ingestor) { s.chunkLLM = svc }
}

// WithInterpretLLM provides the generation service used for chart,
// table and figure summaries.
func WithInterpretLLM(svc driven.LLMService) IngestOption {
	return func(s *Ingestor) { s.interpretLLM = svc }
}

// WithChunkerOptions sets base chunker options (budgets, window size).
// Per-collection logging is attached by the pipeline.
func WithChunkerOptions(opts ...chunker.Option) IngestOption {
	return func(s *Ingestor) { s.chunkOpts = opts }
}

// WithGarbageOptions sets base garbage-filter options (thresholds,
// validation). Per-collection logging is attached by the pipeline.
func WithGarbageOptions(opts ...garbage.Option) IngestOption {
	return func(s *Ingestor) { s.garbageOpts = opts }
}

// NewIngestor creates the ingest service.
func NewIngestor(
	cfg IngestorConfig,
	registry *Registry,
	watcher driven.Watcher,
	extractors driven.ExtractorRegistry,
	embedder driven.EmbeddingService,
	opts ...IngestOption,
) *Ingestor {
	cfg.applyDefaults()
	cfg.WatchRoot = filepath.Clean(cfg.WatchRoot)

	s := &Ingestor{
		cfg:        cfg,
		registry:   registry,
		watcher:    watcher,
		extractors: extractors,
		embedder:   embedder,
		queue:      make(chan string, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start scans existing files, starts the worker and blocks in the
// watch loop until ctx is cancelled.
func (s *Ingestor) Start(ctx context.Context) error {
	info, err := os.Stat(s.cfg.WatchRoot)
	if err != nil {
		return fmt.Errorf("watch root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s is not a directory", s.cfg.WatchRoot)
	}

	workerDone := make(chan struct{})
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	go func() {
		defer close(workerDone)
		s.work(workerCtx)
	}()

	if s.cfg.ScanExisting {
		s.scanExisting()
	}

	err = s.watcher.Watch(ctx, s.Enqueue)

	// Let the worker drain its current item, bounded.
	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(s.cfg.StopTimeout):
		logger.Warn("Worker did not stop within %s", s.cfg.StopTimeout)
	}
	return err
}

// Enqueue adds one path to the work queue, subject to the same
// filtering as watch events. A full queue drops the path; the next
// reconciliation-era scan or a touch re-surfaces it.
func (s *Ingestor) Enqueue(path string) {
	if !s.shouldEnqueue(path) {
		return
	}
	select {
	case s.queue <- path:
	default:
		logger.Warn("Ingest queue full, dropping %s", path)
	}
}

// shouldEnqueue filters resource-fork files, unsupported extensions
// and the reserved processed/failed subtrees.
func (s *Ingestor) shouldEnqueue(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "._") {
		return false
	}
	if !s.extractors.Supported(path) {
		return false
	}
	rel, err := filepath.Rel(s.cfg.WatchRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == domain.ProcessedSubdir || part == domain.FailedSubdir {
			return false
		}
	}
	return true
}

func (s *Ingestor) scanExisting() {
	err := filepath.WalkDir(s.cfg.WatchRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			s.Enqueue(path)
		}
		return nil
	})
	if err != nil {
		logger.Warn("Startup scan failed: %v", err)
	}
}

func (s *Ingestor) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-s.queue:
			if !s.sleep(ctx, s.cfg.SettleDelay) {
				return
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := s.processOne(ctx, path); err != nil {
				group := s.groupFromPath(path)
				if col, cerr := s.registry.Get(group); cerr == nil {
					col.ActionLog().Log("worker_error", map[string]any{
						"file": path, "error": err.Error(),
					})
				}
				logger.Warn("Worker error for %s: %v", path, err)
			}
		}
	}
}

// sleep waits for d unless ctx is cancelled first.
func (s *Ingestor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// processOne runs the pipeline for a single file. Expected failures
// (empty file, no content, all chunks rejected, embed failure) are
// logged, routed to the failed area and return nil; only unexpected
// infrastructure errors are returned.
func (s *Ingestor) processOne(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	group := s.groupFromPath(path)
	col, err := s.registry.Get(group)
	if err != nil {
		return err
	}

	col.Lock()
	defer col.Unlock()

	if col.Ledger().Contains(path, info.ModTime().UnixNano(), info.Size()) {
		col.ActionLog().Log("already_processed", map[string]any{"file": path})
		logger.Debug("Already processed: %s", path)
		return nil
	}

	// Zero bytes usually means the file is still being copied in.
	if info.Size() == 0 {
		if !s.sleep(ctx, s.cfg.ZeroSizeRetry) {
			return nil
		}
		info, err = os.Stat(path)
		if err != nil || info.Size() == 0 {
			col.ActionLog().Log("file_empty", map[string]any{"file": path})
			logger.Warn("Skipping empty file: %s", path)
			s.moveToFailed(col, path)
			return nil
		}
	}

	col.ActionLog().Log("process_start", map[string]any{"file": path})

	candidates, ok := s.extractCandidates(ctx, col, path)
	if !ok {
		return nil
	}
	if len(candidates) == 0 {
		col.ActionLog().Log("chunk_empty", map[string]any{"file": path})
		s.moveToFailed(col, path)
		return nil
	}

	filter := garbage.New(append(s.garbageOpts,
		garbage.WithGarbageLog(col.GarbageLog()),
		garbage.WithActionLog(col.ActionLog()),
	)...)
	candidates = filter.Filter(ctx, candidates, path)
	if len(candidates) == 0 {
		col.ActionLog().Log("chunk_all_rejected", map[string]any{"file": path})
		logger.Warn("All chunks rejected for %s", path)
		s.moveToFailed(col, path)
		return nil
	}

	s.prependDocumentSummary(ctx, col, path, candidates)

	col.ActionLog().Log("chunk_ok", map[string]any{
		"file": path, "num_chunks": len(candidates),
	})

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingMismatch) {
			col.ActionLog().Log("embed_mismatch", map[string]any{"file": path})
		} else {
			col.ActionLog().Log("embed_fail", map[string]any{
				"file": path, "error": err.Error(),
			})
		}
		logger.Warn("Embedding failed for %s: %v", path, err)
		s.moveToFailed(col, path)
		return nil
	}
	if len(embeddings) != len(candidates) {
		col.ActionLog().Log("embed_mismatch", map[string]any{"file": path})
		s.moveToFailed(col, path)
		return nil
	}

	chunks := make([]domain.Chunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = domain.Chunk{
			Text:         c.Text,
			Embedding:    embeddings[i],
			Artifact:     c.Artifact,
			ArtifactPath: c.ArtifactPath,
			Page:         c.Page,
		}
	}

	dest := filepath.Join(col.SourcesDir(), s.relWithinGroup(path))
	ext := strings.ToLower(filepath.Ext(path))
	if err := col.Store().AddChunks(ctx, dest, ext, chunks); err != nil {
		col.ActionLog().Log("store_fail", map[string]any{
			"file": path, "error": err.Error(),
		})
		logger.Warn("Store failed for %s: %v", path, err)
		s.moveToFailed(col, path)
		return nil
	}

	if err := col.Ledger().Mark(path, info.ModTime().UnixNano(), info.Size()); err != nil {
		logger.Warn("Failed to mark %s processed: %v", path, err)
	}
	col.ActionLog().Log("store", map[string]any{
		"source": dest, "num_chunks": len(chunks),
	})

	s.moveToSources(col, path, dest)
	col.ActionLog().Log("process_done", map[string]any{
		"file": path, "dest": dest, "num_chunks": len(chunks),
	})
	logger.Info("Processed %s -> %d chunks -> %s (collection=%s)", path, len(chunks), dest, col.Name)
	return nil
}

// extractCandidates turns one file into candidate chunks. The bool is
// false when the file was already routed to the failed area.
func (s *Ingestor) extractCandidates(ctx context.Context, col *Collection, path string) ([]domain.Candidate, bool) {
	extractor, err := s.extractors.ForPath(path)
	if err != nil {
		col.ActionLog().Log("extract_fail", map[string]any{
			"file": path, "error": err.Error(),
		})
		s.moveToFailed(col, path)
		return nil, false
	}

	ch := chunker.New(append(s.chunkOpts,
		chunker.WithLLM(s.chunkLLM),
		chunker.WithActionLog(col.ActionLog()),
	)...)

	doc, err := extractor.Extract(path)
	if err != nil {
		col.ActionLog().Log("extract_fail", map[string]any{
			"file": path, "error": err.Error(),
		})
		logger.Warn("Extract failed for %s: %v", path, err)
		s.moveToFailed(col, path)
		return nil, false
	}

	if doc.HasEmbeddable() {
		candidates := s.structuredCandidates(ctx, col, ch, path, doc)
		col.ActionLog().Log("extract_ok", map[string]any{
			"file":        path,
			"text_blocks": len(doc.TextBlocks),
			"charts":      len(doc.ChartRegions),
			"tables":      len(doc.TableRegions),
			"figures":     len(doc.FigureRegions),
			"images":      len(doc.ImageRegions),
		})
		return candidates, true
	}

	// Plain-text fallback.
	text, err := extractor.ExtractText(path)
	if err != nil {
		col.ActionLog().Log("extract_fail", map[string]any{
			"file": path, "error": err.Error(),
		})
		logger.Warn("Extract failed for %s: %v", path, err)
		s.moveToFailed(col, path)
		return nil, false
	}
	if strings.TrimSpace(text) == "" {
		col.ActionLog().Log("extract_empty", map[string]any{"file": path})
		logger.Warn("No text extracted from %s", path)
		s.moveToFailed(col, path)
		return nil, false
	}
	col.ActionLog().Log("extract_ok", map[string]any{
		"file": path, "chars": len(text),
	})
	return s.proseCandidates(ctx, ch, text, nil), true
}

// structuredCandidates chunks prose blocks and summarises non-text
// regions, storing the raw artifacts alongside.
func (s *Ingestor) structuredCandidates(
	ctx context.Context, col *Collection, ch *chunker.Chunker, path string, doc *domain.StructuredDocument,
) []domain.Candidate {
	var candidates []domain.Candidate

	if s.cfg.Semantic && len(doc.TextBlocks) > 0 {
		candidates = append(candidates, s.semanticBlockCandidates(ctx, ch, doc.TextBlocks)...)
	} else {
		for _, blk := range doc.TextBlocks {
			candidates = append(candidates, s.proseCandidates(ctx, ch, blk.Text, blk.Page)...)
		}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	interp := interpret.New(s.interpretLLM, interpret.WithActionLog(col.ActionLog()))

	for idx, cr := range doc.ChartRegions {
		summary := interp.Chart(ctx, "", stem)
		ap, err := col.Artifacts().StoreChart(stem, pageOrZero(cr.Page), idx, cr.ImageBytes, cr.ImageExt)
		if err != nil {
			logger.Warn("Failed to store chart artifact: %v", err)
		}
		candidates = append(candidates, domain.Candidate{
			ID: uuid.NewString(), Text: summary,
			Artifact: domain.ArtifactChartSummary, ArtifactPath: ap, Page: cr.Page,
		})
	}

	for idx, tr := range doc.TableRegions {
		summary := interp.Table(ctx, tr.Rows, stem)
		ap, err := col.Artifacts().StoreTable(stem, pageOrZero(tr.Page), idx, tr.Rows)
		if err != nil {
			logger.Warn("Failed to store table artifact: %v", err)
		}
		candidates = append(candidates, domain.Candidate{
			ID: uuid.NewString(), Text: summary,
			Artifact: domain.ArtifactTableSummary, ArtifactPath: ap, Page: tr.Page,
		})
	}

	figures := doc.FigureRegions
	// Unclassified images go down the figure path.
	for _, ir := range doc.ImageRegions {
		figures = append(figures, domain.FigureRegion(ir))
	}
	for idx, fr := range figures {
		summary, process := interp.Figure(ctx, "", stem)
		ap, err := col.Artifacts().StoreFigure(stem, pageOrZero(fr.Page), idx, fr.ImageBytes, process, "")
		if err != nil {
			logger.Warn("Failed to store figure artifact: %v", err)
		}
		candidates = append(candidates, domain.Candidate{
			ID: uuid.NewString(), Text: summary,
			Artifact: domain.ArtifactFigureSummary, ArtifactPath: ap, Page: fr.Page,
		})
	}

	return candidates
}

// proseCandidates runs the configured chunking over one prose string.
func (s *Ingestor) proseCandidates(ctx context.Context, ch *chunker.Chunker, text string, page *int) []domain.Candidate {
	var candidates []domain.Candidate
	if s.cfg.Semantic {
		for _, sc := range ch.SplitSemantic(ctx, text, false) {
			candidates = append(candidates, domain.Candidate{
				ID: uuid.NewString(), Text: sc.Text, Artifact: domain.ArtifactText, Page: page,
			})
		}
		return candidates
	}
	for _, c := range ch.Split(ctx, chunker.Clean(text)) {
		candidates = append(candidates, domain.Candidate{
			ID: uuid.NewString(), Text: c, Artifact: domain.ArtifactText, Page: page,
		})
	}
	return candidates
}

// semanticBlockCandidates joins page-ordered blocks into one cleaned
// string so each chunk's start offset maps back to a page.
func (s *Ingestor) semanticBlockCandidates(ctx context.Context, ch *chunker.Chunker, blocks []domain.TextBlock) []domain.Candidate {
	const pageSentinel = 1 << 30

	ordered := make([]domain.TextBlock, len(blocks))
	copy(ordered, blocks)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := pageSentinel, pageSentinel
		if ordered[i].Page != nil {
			pi = *ordered[i].Page
		}
		if ordered[j].Page != nil {
			pj = *ordered[j].Page
		}
		return pi < pj
	})

	parts := make([]string, len(ordered))
	for i, blk := range ordered {
		parts[i] = chunker.Clean(blk.Text)
	}
	joined := strings.Join(parts, "\n\n")

	// Start offset of each block in the joined string, with unknown
	// pages filled forward so every offset maps to a page.
	type offsetPage struct{ offset, page int }
	mapping := make([]offsetPage, len(ordered))
	offset, fill := 0, 1
	for i, blk := range ordered {
		if blk.Page != nil {
			fill = *blk.Page
		}
		mapping[i] = offsetPage{offset: offset, page: fill}
		offset += len(parts[i]) + 2
	}

	pageFor := func(start int) *int {
		page := mapping[0].page
		for _, m := range mapping {
			if m.offset <= start {
				page = m.page
			} else {
				break
			}
		}
		return &page
	}

	var candidates []domain.Candidate
	for _, sc := range ch.SplitSemantic(ctx, joined, true) {
		candidates = append(candidates, domain.Candidate{
			ID: uuid.NewString(), Text: sc.Text, Artifact: domain.ArtifactText, Page: pageFor(sc.Offset),
		})
	}
	return candidates
}

// prependDocumentSummary asks for a one-sentence summary of the whole
// document and prefixes it to every candidate so each chunk carries
// its document context.
func (s *Ingestor) prependDocumentSummary(ctx context.Context, col *Collection, path string, candidates []domain.Candidate) {
	interp := interpret.New(s.chunkLLM, interpret.WithActionLog(col.ActionLog()))

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	summary := interp.SummariseDocument(ctx, strings.Join(texts, "\n\n"), filepath.Base(path))
	if summary == "" {
		return
	}
	for i := range candidates {
		candidates[i].Text = summary + "\n\n" + candidates[i].Text
	}
}

// groupFromPath derives the collection: the first path segment below
// the watch root, or the default collection for top-level files.
func (s *Ingestor) groupFromPath(path string) string {
	rel, err := filepath.Rel(s.cfg.WatchRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return domain.DefaultCollection
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 1 {
		return domain.DefaultCollection
	}
	return parts[0]
}

// relWithinGroup is the filename inside the collection's sources
// directory. Only one level of grouping exists; deeper nesting is
// flattened into a single underscore-joined name.
func (s *Ingestor) relWithinGroup(path string) string {
	rel, err := filepath.Rel(s.cfg.WatchRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 1 {
		return rel
	}
	return strings.Join(parts[1:], "_")
}

func (s *Ingestor) moveToFailed(col *Collection, path string) {
	rel, err := filepath.Rel(s.cfg.WatchRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	dest := filepath.Join(s.cfg.WatchRoot, domain.FailedSubdir, rel)
	if err := moveFile(path, dest); err != nil {
		logger.Warn("Failed to move %s to failed area: %v", path, err)
		return
	}
	col.ActionLog().Log("move", map[string]any{
		"src": path, "to": dest, "reason": domain.FailedSubdir,
	})
}

func (s *Ingestor) moveToSources(col *Collection, path, dest string) {
	if err := moveFile(path, dest); err != nil {
		logger.Warn("Failed to move %s to sources: %v", path, err)
		return
	}
	col.ActionLog().Log("move", map[string]any{
		"src": path, "to": dest, "reason": domain.SourcesSubdir,
	})
}

// moveFile renames src to dest, replacing an existing dest, copying
// across filesystems when rename fails.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy to %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", dest, err)
	}
	return os.Remove(src)
}

func pageOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
