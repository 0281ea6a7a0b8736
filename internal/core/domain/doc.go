// Package domain defines the core business entities for tripctx.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A trip knowledge-base document and its ingestion status
//   - Chunk: A bounded slice of a document paired with an embedding
//   - Membership: The authorisation relation between a user and a trip
//   - AggregateRecord: The best-effort snapshot of structured trip state
//   - UsageDecision: The outcome of a quota check for one query
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
