// Package sqlite implements the per-collection chunk store on SQLite
// via the modernc.org/sqlite driver. Each collection directory gets
// its own ragdoll.db; schema changes are ordered, embedded migrations
// recorded in a schema_migrations table.
package sqlite
