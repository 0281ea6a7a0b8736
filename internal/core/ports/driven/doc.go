// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentStore: Document and chunk persistence
//   - ChunkSearcher: The privileged, membership-guarded chunk join
//   - MembershipOracle: Trip membership lookups (the authorisation primitive)
//   - EmbeddingService: Generates vector embeddings
//   - ContextCacheStore: Aggregate record cache entries
//   - UsageStore: Atomic per-day usage counters
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - CalendarSource, LedgerSource, PollSource, PlaceSource, ChatSource,
//     RosterSource, BroadcastSource, PreferenceSource: structured trip data.
//     A nil source is reported as an omitted section.
//   - LinkFetcher: Fetches chat links. Without it, link ingestion is disabled.
//   - Normaliser: Converts uploads to text. Unknown types fall back to plain text.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or normaliser package
package driven
