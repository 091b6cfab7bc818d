// Package services contains the core application logic: the
// collection registry, the ingest worker and its pipeline, the
// reconciler, the query service and the administrative operations.
// Services depend only on domain types and ports; all infrastructure
// arrives through driven interfaces.
package services
