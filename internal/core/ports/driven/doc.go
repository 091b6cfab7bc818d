// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ExtractorRegistry: per-format content extraction
//   - EmbeddingService: vector embeddings
//   - ChunkStore / ChunkStoreOpener: durable per-collection chunk storage
//   - ProcessedLedger: processed-file identity records
//   - ActionLog / GarbageLog: per-collection append-only diagnostics
//
// # Optional Interfaces
//
//   - LLMService: semantic chunk splitting, summaries and garbage-filter
//     validation. When nil every consumer falls back to a deterministic
//     algorithm; no feature hard-requires it.
package driven
