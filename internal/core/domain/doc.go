// Package domain contains the core entities of the ragdoll ingestion
// pipeline: collections, sources, chunks, processed-file records and
// garbage-filter entries. It depends only on the standard library so
// services and adapters can share it freely.
package domain
