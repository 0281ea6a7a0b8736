package domain

import (
	"errors"
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available embedding providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderLocal is the built-in feature-hashing embedder. It needs no network.
	AIProviderLocal AIProvider = "local"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderLocal:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderLocal:
		return "Feature hashing (built-in)"
	default:
		return unknownDescription
	}
}

// StorageBackend selects where documents, chunks and memberships live.
type StorageBackend string

// Storage backends.
const (
	StorageMemory   StorageBackend = "memory"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageMemory, StorageSQLite, StoragePostgres:
		return true
	default:
		return false
	}
}

// StorageSettings holds durable store configuration.
type StorageSettings struct {
	Backend StorageBackend

	// Path is the SQLite data directory.
	Path string

	// PostgresURL is the connection string for the postgres backend.
	PostgresURL string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector size for the local provider.
	Dimensions int

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the token bucket size.
	Burst int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// IngestionSettings tunes chunking and embedding.
type IngestionSettings struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Processors names the post-processing chain. Empty means the default.
	Processors []string

	// FetchLinks enables ingesting chat links by downloading them.
	FetchLinks bool
}

// RetrievalSettings tunes hybrid ranking.
type RetrievalSettings struct {
	DefaultK       int
	SemanticWeight float64
	LexicalWeight  float64

	// CandidateLimit caps the chunks scored per query. Zero scores them all.
	CandidateLimit int
}

// AggregatorSettings tunes structured context fan-out.
type AggregatorSettings struct {
	SourceTimeout time.Duration

	// MinAvailableSections is the number of configured sources that must
	// succeed for a record to be usable.
	MinAvailableSections int

	// Limits caps the rows kept per section.
	Limits map[SectionKind]int
}

// CacheSettings tunes the aggregate record cache.
type CacheSettings struct {
	// Backend is memory or sqlite.
	Backend        StorageBackend
	TTL            time.Duration
	ComputeTimeout time.Duration
}

// UsageSettings tunes the per-user daily quota.
type UsageSettings struct {
	// Backend is memory, sqlite or postgres.
	Backend StorageBackend

	// Timezone is the IANA zone that defines day boundaries.
	Timezone string

	// Limits are the daily ceilings per tier. Unlimited tiers are absent.
	Limits map[Tier]int

	// Tiers assigns users to tiers. Unlisted users are free.
	Tiers map[string]Tier
}

// PromptSettings tunes prompt assembly.
type PromptSettings struct {
	// MaxChars is the hard bound on prompt length in characters.
	MaxChars int

	// ContractPath overrides the built-in output contract.
	ContractPath string
}

// SourceSettings configures structured trip data sources.
type SourceSettings struct {
	// FixturesDir holds per-trip YAML snapshots.
	FixturesDir string

	// GoogleCalendarID enables the Google Calendar source when set.
	GoogleCalendarID string

	// GoogleAccessToken authorises the Google Calendar source.
	GoogleAccessToken string
}

// Settings is the complete engine configuration.
type Settings struct {
	Storage    StorageSettings
	Embedding  EmbeddingSettings
	Ingestion  IngestionSettings
	Retrieval  RetrievalSettings
	Aggregator AggregatorSettings
	Cache      CacheSettings
	Usage      UsageSettings
	Prompt     PromptSettings
	Sources    SourceSettings
}

// DefaultSectionLimits returns the default per-section row caps.
func DefaultSectionLimits() map[SectionKind]int {
	return map[SectionKind]int{
		SectionCalendar:    10,
		SectionLedger:      10,
		SectionPolls:       5,
		SectionPlaces:      10,
		SectionChat:        20,
		SectionRoster:      30,
		SectionBroadcasts:  5,
		SectionPreferences: 10,
	}
}

// DefaultTierLimits returns the default daily ceilings.
func DefaultTierLimits() map[Tier]int {
	return map[Tier]int{
		TierFree: 10,
		TierPlus: 50,
		TierPro:  200,
	}
}

// DefaultSettings returns settings that work without any configuration file.
func DefaultSettings() Settings {
	return Settings{
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		Embedding: EmbeddingSettings{
			Provider:          AIProviderLocal,
			Dimensions:        256,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Ingestion: IngestionSettings{
			ChunkSize:      800,
			ChunkOverlap:   120,
			BatchSize:      16,
			MaxRetries:     3,
			RetryBaseDelay: 200 * time.Millisecond,
			FetchLinks:     true,
		},
		Retrieval: RetrievalSettings{
			DefaultK:       5,
			SemanticWeight: 0.7,
			LexicalWeight:  0.3,
		},
		Aggregator: AggregatorSettings{
			SourceTimeout:        2 * time.Second,
			MinAvailableSections: 1,
			Limits:               DefaultSectionLimits(),
		},
		Cache: CacheSettings{
			Backend:        StorageMemory,
			TTL:            60 * time.Second,
			ComputeTimeout: 10 * time.Second,
		},
		Usage: UsageSettings{
			Backend:  StorageSQLite,
			Timezone: "UTC",
			Limits:   DefaultTierLimits(),
		},
		Prompt: PromptSettings{
			MaxChars: 12000,
		},
	}
}

// Validate checks the settings for values the engine cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if !s.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", s.Storage.Backend))
	}
	if (s.Storage.Backend == StoragePostgres || s.Usage.Backend == StoragePostgres) && s.Storage.PostgresURL == "" {
		errs = append(errs, errors.New("storage.postgres_url: required for postgres backend"))
	}
	if !s.Embedding.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("embedding.provider: unknown provider %q", s.Embedding.Provider))
	}
	if s.Ingestion.ChunkSize <= 0 {
		errs = append(errs, errors.New("ingestion.chunk_size: must be positive"))
	}
	if s.Ingestion.ChunkOverlap < 0 || s.Ingestion.ChunkOverlap >= s.Ingestion.ChunkSize {
		errs = append(errs, errors.New("ingestion.chunk_overlap: must be in [0, chunk_size)"))
	}
	if s.Ingestion.BatchSize <= 0 {
		errs = append(errs, errors.New("ingestion.batch_size: must be positive"))
	}
	if s.Retrieval.SemanticWeight < 0 || s.Retrieval.LexicalWeight < 0 ||
		s.Retrieval.SemanticWeight+s.Retrieval.LexicalWeight == 0 {
		errs = append(errs, errors.New("retrieval weights: must be non-negative and not both zero"))
	}
	if s.Retrieval.CandidateLimit < 0 {
		errs = append(errs, errors.New("retrieval.candidate_limit: must not be negative"))
	}
	if s.Cache.Backend != StorageMemory && s.Cache.Backend != StorageSQLite {
		errs = append(errs, fmt.Errorf("cache.backend: unsupported backend %q", s.Cache.Backend))
	}
	if !s.Usage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("usage.backend: unsupported backend %q", s.Usage.Backend))
	}
	for user, tier := range s.Usage.Tiers {
		if !tier.IsValid() {
			errs = append(errs, fmt.Errorf("usage.tiers.%s: unknown tier %q", user, tier))
		}
	}
	if _, err := time.LoadLocation(s.Usage.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("usage.timezone: %w", err))
	}
	if s.Prompt.MaxChars <= 0 {
		errs = append(errs, errors.New("prompt.max_chars: must be positive"))
	}
	if len(errs) > 0 {
		return errors.Join(ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}
