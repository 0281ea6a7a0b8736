// Package sqlite provides a SQLite-based implementation of the storage ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. One database file backs several port interfaces:
//
//   - DocumentStore and ChunkSearcher: documents, chunks and their embeddings
//   - MembershipStore: the local copy of trip membership
//   - ContextCacheStore: aggregate records as JSON
//   - UsageStore: daily query counters
//
// # Schema
//
// The schema is managed through versioned migrations embedded from the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.tripctx/data/tripctx.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. SQLite runs in WAL mode with a
// busy timeout, and counter updates are single atomic statements.
package sqlite
