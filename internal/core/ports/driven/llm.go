package driven

import "context"

// LLMService provides text generation for semantic chunk splitting,
// artifact interpretation and garbage-filter validation.
// This is an optional service - when nil, every consumer degrades to a
// deterministic fallback.
//
// Implementations may include:
//   - Ollama (local models)
//   - Any inference server speaking a compatible API
type LLMService interface {
	// Generate produces a single text completion from a prompt.
	// Empty output is returned as ("", nil); callers treat it as a
	// soft failure, not an error.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable with a lightweight
	// request, without running inference.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64

	// JSONFormat asks the service for structured JSON output where
	// the backend supports it.
	JSONFormat bool
}
