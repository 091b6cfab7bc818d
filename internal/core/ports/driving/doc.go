// Package driving defines the interfaces through which the outside
// world drives the core: the ingest loop, the query surface and the
// administrative operations. CLI and HTTP adapters depend on these,
// core services implement them.
package driving
