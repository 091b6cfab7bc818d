package cli

import (
	"fmt"
	"path/filepath"

	artifactsfile "github.com/custodia-labs/ragdoll/internal/adapters/driven/artifacts/file"
	configfile "github.com/custodia-labs/ragdoll/internal/adapters/driven/config/file"
	embedollama "github.com/custodia-labs/ragdoll/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/ragdoll/internal/adapters/driven/extract"
	ledgerfile "github.com/custodia-labs/ragdoll/internal/adapters/driven/ledger/file"
	llmollama "github.com/custodia-labs/ragdoll/internal/adapters/driven/llm/ollama"
	oplogfile "github.com/custodia-labs/ragdoll/internal/adapters/driven/oplog/file"
	"github.com/custodia-labs/ragdoll/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ragdoll/internal/adapters/driven/watch"
	"github.com/custodia-labs/ragdoll/internal/adapters/driving/api"
	"github.com/custodia-labs/ragdoll/internal/chunker"
	"github.com/custodia-labs/ragdoll/internal/core/domain"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
	"github.com/custodia-labs/ragdoll/internal/core/services"
	"github.com/custodia-labs/ragdoll/internal/garbage"
)

// skipWiring disables service construction so tests can install their
// own service doubles.
var skipWiring bool

// initServices loads the config and builds the real service graph.
// Runs once; collection stores open lazily so this is cheap for
// commands that never touch them.
func initServices() error {
	if skipWiring || appConfig != nil {
		return nil
	}

	cfg, err := configfile.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opener := driven.CollectionOpenerFunc(func(dir string) (*driven.CollectionDeps, error) {
		store, err := sqlite.Opener{}.Open(dir)
		if err != nil {
			return nil, err
		}
		ledger, err := ledgerfile.Open(dir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return &driven.CollectionDeps{
			Store:      store,
			Ledger:     ledger,
			ActionLog:  oplogfile.NewActionLog(dir),
			GarbageLog: oplogfile.NewGarbageLog(dir),
			Artifacts:  artifactsfile.New(filepath.Join(dir, domain.ArtifactsSubdir)),
		}, nil
	})
	registry := services.NewRegistry(cfg.DataDir, opener)

	embedder := embedollama.NewEmbeddingService(embedollama.Config{
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.EmbedModel,
	})
	chunkLLM := llmollama.NewLLMService(llmollama.LLMConfig{
		BaseURL:           cfg.Ollama.Host,
		Model:             cfg.Ollama.ChunkModel,
		RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
	})
	interpretLLM := llmollama.NewLLMService(llmollama.LLMConfig{
		BaseURL:           cfg.Ollama.Host,
		Model:             cfg.Ollama.InterpretModel,
		RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
	})
	queryLLM := llmollama.NewLLMService(llmollama.LLMConfig{
		BaseURL:           cfg.Ollama.Host,
		Model:             cfg.Ollama.QueryModel,
		RequestsPerSecond: cfg.Ollama.RequestsPerSecond,
	})

	garbageOpts := []garbage.Option{
		garbage.WithThresholds(
			cfg.Garbage.MinChars,
			cfg.Garbage.MinTokens,
			cfg.Garbage.MinDiversity,
			cfg.Garbage.MaxStopwordRatio,
			cfg.Garbage.MinScore,
		),
	}
	if cfg.Garbage.LLMValidation {
		garbageOpts = append(garbageOpts, garbage.WithLLMValidation(chunkLLM))
	}

	ingestService = services.NewIngestor(
		services.IngestorConfig{
			WatchRoot:     cfg.WatchRoot,
			SettleDelay:   cfg.Ingest.SettleDelay(),
			ZeroSizeRetry: cfg.Ingest.ZeroSizeRetry(),
			Semantic:      cfg.Chunk.Semantic,
			ScanExisting:  true,
		},
		registry,
		watch.New(cfg.WatchRoot),
		extract.DefaultRegistry(),
		embedder,
		services.WithChunkLLM(chunkLLM),
		services.WithInterpretLLM(interpretLLM),
		services.WithChunkerOptions(
			chunker.WithTargetTokens(cfg.Chunk.TargetTokens),
			chunker.WithMaxTokens(cfg.Chunk.MaxTokens),
		),
		services.WithGarbageOptions(garbageOpts...),
	)
	reconciler = services.NewReconciler(registry, cfg.Ingest.SyncInterval())
	queryService = services.NewQueryService(registry, embedder, queryLLM)
	adminService = services.NewAdminService(registry)
	apiServer = api.New(queryService, adminService, registry)

	appConfig = cfg
	return nil
}
