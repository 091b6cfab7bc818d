// Package file loads ragdoll configuration from a TOML file with
// RAGDOLL_* environment-variable overrides. Precedence is defaults,
// then file, then environment.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default model and service settings, matching a stock local Ollama.
const (
	DefaultOllamaHost = "http://localhost:11434"
	DefaultEmbedModel = "nomic-embed-text:latest"
	DefaultChunkModel = "llama3.2:3b"
	DefaultQueryModel = "llama3.2:3b"
	DefaultAPIAddr    = ":9042"
)

// Config is the full runtime configuration of the ragdoll daemon and
// CLI. Zero values are replaced by defaults in Load.
type Config struct {
	// WatchRoot is the folder watched for new documents. Required for
	// the watch daemon, unused by query and admin commands.
	WatchRoot string `toml:"watch_root"`

	// DataDir holds one subdirectory per collection.
	DataDir string `toml:"data_dir"`

	Ollama  OllamaConfig  `toml:"ollama"`
	API     APIConfig     `toml:"api"`
	Ingest  IngestConfig  `toml:"ingest"`
	Chunk   ChunkConfig   `toml:"chunking"`
	Garbage GarbageConfig `toml:"garbage"`
}

// OllamaConfig selects the inference backend and its models.
type OllamaConfig struct {
	Host string `toml:"host"`

	EmbedModel     string `toml:"embed_model"`
	ChunkModel     string `toml:"chunk_model"`
	InterpretModel string `toml:"interpret_model"`
	QueryModel     string `toml:"query_model"`

	// RequestsPerSecond throttles generation calls.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// APIConfig configures the local HTTP query server.
type APIConfig struct {
	Addr string `toml:"addr"`
}

// IngestConfig tunes the watched-folder pipeline.
type IngestConfig struct {
	// SettleSeconds is how long a file must be unchanged before
	// processing starts.
	SettleSeconds int `toml:"settle_seconds"`

	// ZeroSizeRetrySeconds is the wait before rechecking a file that
	// appeared with zero bytes.
	ZeroSizeRetrySeconds int `toml:"zero_size_retry_seconds"`

	// SyncIntervalSeconds is the reconciliation period. Zero disables
	// the timer; the startup pass always runs.
	SyncIntervalSeconds int `toml:"sync_interval_seconds"`
}

// SettleDelay returns the settle window as a duration.
func (c IngestConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleSeconds) * time.Second
}

// ZeroSizeRetry returns the empty-file recheck wait as a duration.
func (c IngestConfig) ZeroSizeRetry() time.Duration {
	return time.Duration(c.ZeroSizeRetrySeconds) * time.Second
}

// SyncInterval returns the reconciliation period as a duration.
func (c IngestConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// ChunkConfig tunes the chunker.
type ChunkConfig struct {
	TargetTokens int `toml:"target_tokens"`
	MaxTokens    int `toml:"max_tokens"`

	// Semantic enables best-effort LLM window chunking. The
	// deterministic splitter remains the fallback at every step.
	Semantic bool `toml:"semantic"`
}

// GarbageConfig tunes the chunk quality filter.
type GarbageConfig struct {
	MinChars         int     `toml:"min_chars"`
	MinTokens        int     `toml:"min_tokens"`
	MinDiversity     float64 `toml:"min_diversity"`
	MaxStopwordRatio float64 `toml:"max_stopword_ratio"`
	MinScore         float64 `toml:"min_score"`

	// LLMValidation enables the final yes/no coherence check.
	LLMValidation bool `toml:"llm_validation"`
}

// DefaultPath returns the standard config file location,
// ~/.ragdoll/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".ragdoll", "config.toml"), nil
}

// Load reads the config file at path, fills defaults and applies
// environment overrides. A missing file is not an error; a malformed
// one is. If path is empty the default location is used.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus environment only.
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr("RAGDOLL_INGEST_PATH", &c.WatchRoot)
	envStr("RAGDOLL_DATA_DIR", &c.DataDir)

	envStr("OLLAMA_HOST", &c.Ollama.Host)
	envStr("RAGDOLL_OLLAMA_HOST", &c.Ollama.Host)
	envStr("RAGDOLL_EMBED_MODEL", &c.Ollama.EmbedModel)
	envStr("RAGDOLL_CHUNK_MODEL", &c.Ollama.ChunkModel)
	envStr("RAGDOLL_INTERPRET_MODEL", &c.Ollama.InterpretModel)
	envStr("RAGDOLL_QUERY_MODEL", &c.Ollama.QueryModel)

	envStr("RAGDOLL_API_ADDR", &c.API.Addr)

	envInt("RAGDOLL_SETTLE_SECONDS", &c.Ingest.SettleSeconds)
	envInt("RAGDOLL_SYNC_INTERVAL", &c.Ingest.SyncIntervalSeconds)

	envInt("RAGDOLL_TARGET_CHUNK_TOKENS", &c.Chunk.TargetTokens)
	envInt("RAGDOLL_MAX_CHUNK_TOKENS", &c.Chunk.MaxTokens)
	envBool("RAGDOLL_SEMANTIC_CHUNKING", &c.Chunk.Semantic)

	envInt("RAGDOLL_GARBAGE_MIN_CHARS", &c.Garbage.MinChars)
	envInt("RAGDOLL_GARBAGE_MIN_TOKENS", &c.Garbage.MinTokens)
	envFloat("RAGDOLL_GARBAGE_MIN_DIVERSITY", &c.Garbage.MinDiversity)
	envFloat("RAGDOLL_GARBAGE_MAX_STOPWORD_RATIO", &c.Garbage.MaxStopwordRatio)
	envFloat("RAGDOLL_GARBAGE_MIN_SCORE", &c.Garbage.MinScore)
	envBool("RAGDOLL_GARBAGE_LLM_VALIDATION", &c.Garbage.LLMValidation)
}

func (c *Config) applyDefaults(configDir string) {
	if c.DataDir == "" {
		c.DataDir = filepath.Join(configDir, "data")
	}

	if c.Ollama.Host == "" {
		c.Ollama.Host = DefaultOllamaHost
	}
	if c.Ollama.EmbedModel == "" {
		c.Ollama.EmbedModel = DefaultEmbedModel
	}
	if c.Ollama.ChunkModel == "" {
		c.Ollama.ChunkModel = DefaultChunkModel
	}
	if c.Ollama.InterpretModel == "" {
		c.Ollama.InterpretModel = c.Ollama.ChunkModel
	}
	if c.Ollama.QueryModel == "" {
		c.Ollama.QueryModel = DefaultQueryModel
	}
	if c.Ollama.RequestsPerSecond <= 0 {
		c.Ollama.RequestsPerSecond = 2.0
	}

	if c.API.Addr == "" {
		c.API.Addr = DefaultAPIAddr
	}

	if c.Ingest.SettleSeconds <= 0 {
		c.Ingest.SettleSeconds = 2
	}
	if c.Ingest.ZeroSizeRetrySeconds <= 0 {
		c.Ingest.ZeroSizeRetrySeconds = 10
	}
	if c.Ingest.SyncIntervalSeconds < 0 {
		c.Ingest.SyncIntervalSeconds = 0
	} else if c.Ingest.SyncIntervalSeconds == 0 {
		c.Ingest.SyncIntervalSeconds = 300
	}

	if c.Chunk.TargetTokens <= 0 {
		c.Chunk.TargetTokens = 400
	}
	if c.Chunk.MaxTokens <= 0 {
		c.Chunk.MaxTokens = 600
	}

	if c.Garbage.MinChars <= 0 {
		c.Garbage.MinChars = 20
	}
	if c.Garbage.MinTokens <= 0 {
		c.Garbage.MinTokens = 10
	}
	if c.Garbage.MinDiversity <= 0 {
		c.Garbage.MinDiversity = 0.3
	}
	if c.Garbage.MaxStopwordRatio <= 0 {
		c.Garbage.MaxStopwordRatio = 0.7
	}
	if c.Garbage.MinScore <= 0 {
		c.Garbage.MinScore = 0.3
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envFloat(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	switch v {
	case "true", "1", "yes", "TRUE", "True", "YES":
		*dst = true
	case "false", "0", "no", "FALSE", "False", "NO":
		*dst = false
	}
}
