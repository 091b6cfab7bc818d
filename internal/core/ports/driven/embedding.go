package driven

import "context"

// EmbeddingService generates vector embeddings from text.
//
// Implementations may include:
//   - Ollama (nomic-embed-text, all-minilm)
//   - Any server with a batch embedding endpoint
type EmbeddingService interface {
	// EmbedBatch generates one fixed-dimension vector per input text.
	// A returned count that does not match the input count must be
	// surfaced as an error; partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Ping validates the service is reachable with a lightweight
	// request, without running inference.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
