package services

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/ragdoll/internal/core/ports/driven"
	"github.com/custodia-labs/ragdoll/internal/core/ports/driving"
	"github.com/custodia-labs/ragdoll/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// DefaultThreshold is the minimum cosine similarity for a direct hit.
const DefaultThreshold = 0.45

// QueryService answers similarity searches with a brute-force cosine
// scan over the stored chunks of one or all collections.
type QueryService struct {
	registry *Registry
	embedder driven.EmbeddingService
	llm      driven.LLMService
}

// NewQueryService creates the query service. llm is optional; without
// it queries are embedded verbatim.
func NewQueryService(registry *Registry, embedder driven.EmbeddingService, llm driven.LLMService) *QueryService {
	return &QueryService{registry: registry, embedder: embedder, llm: llm}
}

// Query expands the prompt, embeds it and scans for similar chunks.
func (s *QueryService) Query(ctx context.Context, prompt string, opts driving.QueryOptions) (*driving.QueryResponse, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("empty query")
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	expanded := s.expandQuery(ctx, prompt, opts.History)
	logger.Debug("Query expansion: %q -> %q", prompt, expanded)

	vectors, err := s.embedder.EmbedBatch(ctx, []string{expanded})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("failed to embed query: got %d vectors for 1 input", len(vectors))
	}
	queryVec := vectors[0]

	names, err := s.collectionNames(opts.Collection)
	if err != nil {
		return nil, err
	}

	type key struct {
		collection string
		sourceID   int64
		index      int
	}
	hits := make(map[key]driving.QueryResult)
	// Every scanned chunk, kept for neighbor lookup.
	byKey := make(map[key]driven.StoredChunk)

	for _, name := range names {
		col, err := s.registry.Get(name)
		if err != nil {
			logger.Warn("Query skipping %s: %v", name, err)
			continue
		}
		chunks, err := col.Store().AllChunks(ctx)
		if err != nil {
			logger.Warn("Query skipping %s: %v", name, err)
			continue
		}
		for _, sc := range chunks {
			k := key{name, sc.Chunk.SourceID, sc.Chunk.Index}
			byKey[k] = sc
			sim := cosineSimilarity(queryVec, sc.Chunk.Embedding)
			if sim >= threshold {
				hits[k] = toResult(name, sc, &sim, true)
			}
		}
	}

	// One chunk of context before and after each hit. Direct hits are
	// snapshotted first so neighbors never expand transitively.
	if opts.ExpandNeighbors {
		hitKeys := make([]key, 0, len(hits))
		for k := range hits {
			hitKeys = append(hitKeys, k)
		}
		for _, k := range hitKeys {
			for _, delta := range []int{-1, 1} {
				nk := key{k.collection, k.sourceID, k.index + delta}
				if _, taken := hits[nk]; taken {
					continue
				}
				if sc, ok := byKey[nk]; ok {
					hits[nk] = toResult(nk.collection, sc, nil, false)
				}
			}
		}
	}

	results := make([]driving.QueryResult, 0, len(hits))
	for _, r := range hits {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Collection != b.Collection {
			return a.Collection < b.Collection
		}
		if a.SourcePath != b.SourcePath {
			return a.SourcePath < b.SourcePath
		}
		return a.ChunkIndex < b.ChunkIndex
	})

	return &driving.QueryResponse{
		Query:         prompt,
		ExpandedQuery: expanded,
		Threshold:     threshold,
		Results:       results,
		Count:         len(results),
	}, nil
}

// collectionNames resolves the search scope: one named collection or
// every discovered one.
func (s *QueryService) collectionNames(collection string) ([]string, error) {
	if collection != "" {
		return []string{collection}, nil
	}
	names, err := s.registry.Discover()
	if err != nil {
		return nil, fmt.Errorf("failed to discover collections: %w", err)
	}
	return names, nil
}

// expandQuery asks the LLM for a standalone description of the
// information need. Any failure falls back to the raw prompt.
func (s *QueryService) expandQuery(ctx context.Context, prompt, history string) string {
	if s.llm == nil {
		return prompt
	}

	var b strings.Builder
	if history != "" {
		b.WriteString("Produce a single, standalone description of the user's current information need.\n\n")
		fmt.Fprintf(&b, "Conversation context:\n%s\n\nUser: %s\n\n", history, prompt)
		b.WriteString("Standalone description:")
	} else {
		b.WriteString("Produce a single, standalone description of the user's information need based on this question.\n\n")
		fmt.Fprintf(&b, "Question: %s\n\n", prompt)
		b.WriteString("Standalone description:")
	}

	out, err := s.llm.Generate(ctx, b.String(), driven.GenerateOptions{})
	if err != nil {
		logger.Warn("Query expansion failed: %v, using original prompt", err)
		return prompt
	}
	out = strings.TrimSpace(out)
	if out == "" {
		logger.Warn("Query expansion returned empty, using original prompt")
		return prompt
	}
	return out
}

func toResult(collection string, sc driven.StoredChunk, similarity *float64, implicated bool) driving.QueryResult {
	return driving.QueryResult{
		Collection:   collection,
		SourcePath:   sc.Source.Path,
		SourceName:   filepath.Base(sc.Source.Path),
		SourceType:   sc.Source.Type,
		ChunkIndex:   sc.Chunk.Index,
		Text:         sc.Chunk.Text,
		ArtifactType: string(sc.Chunk.Artifact),
		ArtifactPath: sc.Chunk.ArtifactPath,
		Page:         sc.Chunk.Page,
		Similarity:   similarity,
		Implicated:   implicated,
	}
}

// cosineSimilarity returns the cosine of the angle between a and b,
// or 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
