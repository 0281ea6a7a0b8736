// Package config maps layered configuration onto domain.Settings.
//
// Values are resolved in order: TRIPCTX_* environment variables, then the
// config store (the TOML file), then domain.DefaultSettings. The environment
// name of a key is its upper-cased path with dots replaced by underscores:
// cache.ttl is TRIPCTX_CACHE_TTL.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRIPCTX_"

// Config keys.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyStorageBackend     = "storage.backend"
	KeyStoragePath        = "storage.path"
	KeyStoragePostgresURL = "storage.postgres_url"

	KeyEmbedProvider = "embedding.provider"
	KeyEmbedModel    = "embedding.model"
	KeyEmbedBaseURL  = "embedding.base_url"
	KeyEmbedAPIKey   = "embedding.api_key"
	KeyEmbedDims     = "embedding.dimensions"
	KeyEmbedRPS      = "embedding.requests_per_second"
	KeyEmbedBurst    = "embedding.burst"

	KeyChunkSize      = "ingestion.chunk_size"
	KeyChunkOverlap   = "ingestion.chunk_overlap"
	KeyBatchSize      = "ingestion.batch_size"
	KeyMaxRetries     = "ingestion.max_retries"
	KeyRetryBaseDelay = "ingestion.retry_base_delay"
	KeyProcessors     = "ingestion.processors"
	KeyFetchLinks     = "ingestion.fetch_links"

	KeyDefaultK       = "retrieval.default_k"
	KeySemanticWeight = "retrieval.semantic_weight"
	KeyLexicalWeight  = "retrieval.lexical_weight"
	KeyCandidateLimit = "retrieval.candidate_limit"

	KeySourceTimeout        = "aggregator.source_timeout"
	KeyMinAvailableSections = "aggregator.min_available_sections"
	keySectionLimitPrefix   = "aggregator.limits."

	KeyCacheBackend        = "cache.backend"
	KeyCacheTTL            = "cache.ttl"
	KeyCacheComputeTimeout = "cache.compute_timeout"

	KeyUsageBackend     = "usage.backend"
	KeyUsageTimezone    = "usage.timezone"
	keyTierLimitPrefix  = "usage.limits."
	KeyUsageTiers       = "usage.tiers"
	KeyPromptMaxChars   = "prompt.max_chars"
	KeyPromptContract   = "prompt.contract_path"
	KeyFixturesDir      = "sources.fixtures_dir"
	KeyGoogleCalendarID = "sources.google_calendar_id"
	KeyGoogleToken      = "sources.google_access_token"
)

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadSettings resolves settings from getenv, store and the defaults, then
// validates them. Either source may be nil. Malformed values are reported
// together and match domain.ErrInvalidInput.
func LoadSettings(store driven.ConfigSource, getenv func(string) string) (domain.Settings, error) {
	r := &resolver{store: store, getenv: getenv}
	s := domain.DefaultSettings()

	r.backend(KeyStorageBackend, &s.Storage.Backend)
	r.str(KeyStoragePath, &s.Storage.Path)
	r.str(KeyStoragePostgresURL, &s.Storage.PostgresURL)

	var provider string
	if r.str(KeyEmbedProvider, &provider) {
		s.Embedding.Provider = domain.AIProvider(provider)
	}
	r.str(KeyEmbedModel, &s.Embedding.Model)
	r.str(KeyEmbedBaseURL, &s.Embedding.BaseURL)
	r.str(KeyEmbedAPIKey, &s.Embedding.APIKey)
	r.integer(KeyEmbedDims, &s.Embedding.Dimensions)
	r.float(KeyEmbedRPS, &s.Embedding.RequestsPerSecond)
	r.integer(KeyEmbedBurst, &s.Embedding.Burst)

	r.integer(KeyChunkSize, &s.Ingestion.ChunkSize)
	r.integer(KeyChunkOverlap, &s.Ingestion.ChunkOverlap)
	r.integer(KeyBatchSize, &s.Ingestion.BatchSize)
	r.integer(KeyMaxRetries, &s.Ingestion.MaxRetries)
	r.duration(KeyRetryBaseDelay, &s.Ingestion.RetryBaseDelay)
	r.list(KeyProcessors, &s.Ingestion.Processors)
	r.boolean(KeyFetchLinks, &s.Ingestion.FetchLinks)

	r.integer(KeyDefaultK, &s.Retrieval.DefaultK)
	r.float(KeySemanticWeight, &s.Retrieval.SemanticWeight)
	r.float(KeyLexicalWeight, &s.Retrieval.LexicalWeight)
	r.integer(KeyCandidateLimit, &s.Retrieval.CandidateLimit)

	r.duration(KeySourceTimeout, &s.Aggregator.SourceTimeout)
	r.integer(KeyMinAvailableSections, &s.Aggregator.MinAvailableSections)
	for _, kind := range domain.SectionOrder {
		limit := s.Aggregator.Limits[kind]
		if r.integer(keySectionLimitPrefix+string(kind), &limit) {
			s.Aggregator.Limits[kind] = limit
		}
	}

	r.backend(KeyCacheBackend, &s.Cache.Backend)
	r.duration(KeyCacheTTL, &s.Cache.TTL)
	r.duration(KeyCacheComputeTimeout, &s.Cache.ComputeTimeout)

	r.backend(KeyUsageBackend, &s.Usage.Backend)
	r.str(KeyUsageTimezone, &s.Usage.Timezone)
	for _, tier := range []domain.Tier{domain.TierFree, domain.TierPlus, domain.TierPro} {
		limit := s.Usage.Limits[tier]
		if r.integer(keyTierLimitPrefix+string(tier), &limit) {
			s.Usage.Limits[tier] = limit
		}
	}
	r.tierAssignments(KeyUsageTiers, &s.Usage.Tiers)

	r.integer(KeyPromptMaxChars, &s.Prompt.MaxChars)
	r.str(KeyPromptContract, &s.Prompt.ContractPath)

	r.str(KeyFixturesDir, &s.Sources.FixturesDir)
	r.str(KeyGoogleCalendarID, &s.Sources.GoogleCalendarID)
	r.str(KeyGoogleToken, &s.Sources.GoogleAccessToken)

	if len(r.errs) > 0 {
		return s, errors.Join(domain.ErrInvalidInput, errors.Join(r.errs...))
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// resolver reads one key at a time from the environment, then the store.
// Each setter leaves dst untouched when the key is absent and reports
// whether it assigned.
type resolver struct {
	store  driven.ConfigSource
	getenv func(string) string
	errs   []error
}

func (r *resolver) env(key string) (string, bool) {
	if r.getenv == nil {
		return "", false
	}
	v := strings.TrimSpace(r.getenv(EnvName(key)))
	return v, v != ""
}

func (r *resolver) stored(key string) (any, bool) {
	if r.store == nil {
		return nil, false
	}
	return r.store.Get(key)
}

func (r *resolver) fail(key string, format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf("%s: "+format, append([]any{key}, args...)...))
}

func (r *resolver) str(key string, dst *string) bool {
	if v, ok := r.env(key); ok {
		*dst = v
		return true
	}
	v, ok := r.stored(key)
	if !ok {
		return false
	}
	s, isString := v.(string)
	if !isString {
		r.fail(key, "expected a string, got %T", v)
		return false
	}
	*dst = s
	return true
}

// list reads a TOML array, or a comma-separated environment value.
func (r *resolver) list(key string, dst *[]string) {
	if v, ok := r.env(key); ok {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
		return
	}
	v, ok := r.stored(key)
	if !ok {
		return
	}
	n := -1
	switch raw := v.(type) {
	case []any:
		n = len(raw)
	case []string:
		n = len(raw)
	}
	items := r.store.GetStringSlice(key)
	if n < 0 || len(items) != n {
		r.fail(key, "expected a list of strings, got %v", v)
		return
	}
	*dst = items
}

func (r *resolver) boolean(key string, dst *bool) {
	if v, ok := r.env(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(key, "invalid boolean %q", v)
			return
		}
		*dst = b
		return
	}
	v, ok := r.stored(key)
	if !ok {
		return
	}
	if _, isBool := v.(bool); !isBool {
		r.fail(key, "expected a boolean, got %T", v)
		return
	}
	*dst = r.store.GetBool(key)
}

// tierAssignments reads usage.tiers.<user> keys, or an environment value
// such as "alice=pro,bob=plus" which replaces them all.
func (r *resolver) tierAssignments(key string, dst *map[string]domain.Tier) {
	tiers := make(map[string]domain.Tier)
	if v, ok := r.env(key); ok {
		for _, pair := range strings.Split(v, ",") {
			user, tier, found := strings.Cut(strings.TrimSpace(pair), "=")
			user, tier = strings.TrimSpace(user), strings.TrimSpace(tier)
			if !found || user == "" || tier == "" {
				r.fail(key, "expected user=tier pairs, got %q", pair)
				continue
			}
			tiers[user] = domain.Tier(tier)
		}
		*dst = tiers
		return
	}
	if r.store == nil {
		return
	}
	prefix := key + "."
	for _, k := range r.store.Keys() {
		user, ok := strings.CutPrefix(k, prefix)
		if !ok {
			continue
		}
		var tier string
		if r.str(k, &tier) {
			tiers[user] = domain.Tier(tier)
		}
	}
	if len(tiers) > 0 {
		*dst = tiers
	}
}

func (r *resolver) backend(key string, dst *domain.StorageBackend) {
	var v string
	if r.str(key, &v) {
		*dst = domain.StorageBackend(v)
	}
}

func (r *resolver) integer(key string, dst *int) bool {
	if v, ok := r.env(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(key, "invalid integer %q", v)
			return false
		}
		*dst = n
		return true
	}
	v, ok := r.stored(key)
	if !ok {
		return false
	}
	switch n := v.(type) {
	case int64, int:
		*dst = r.store.GetInt(key)
		return true
	case float64:
		if n != math.Trunc(n) {
			r.fail(key, "expected an integer, got %v", n)
			return false
		}
		*dst = int(n)
		return true
	default:
		r.fail(key, "expected an integer, got %T", v)
		return false
	}
}

func (r *resolver) float(key string, dst *float64) {
	if v, ok := r.env(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			r.fail(key, "invalid number %q", v)
			return
		}
		*dst = f
		return
	}
	v, ok := r.stored(key)
	if !ok {
		return
	}
	switch v.(type) {
	case float64, int64, int:
		*dst = r.store.GetFloat(key)
	default:
		r.fail(key, "expected a number, got %T", v)
	}
}

// duration accepts Go duration strings ("90s", "2m"); bare integers are seconds.
func (r *resolver) duration(key string, dst *time.Duration) {
	var raw any
	if v, ok := r.env(key); ok {
		raw = v
	} else if v, ok := r.stored(key); ok {
		raw = v
	} else {
		return
	}

	switch v := raw.(type) {
	case string:
		if secs, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(secs) * time.Second
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(key, "invalid duration %q", v)
			return
		}
		*dst = d
	case int64:
		*dst = time.Duration(v) * time.Second
	case int:
		*dst = time.Duration(v) * time.Second
	default:
		r.fail(key, "expected a duration, got %T", raw)
	}
}
