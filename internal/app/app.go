// Package app wires adapters and services into a running engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tripsync/tripctx/internal/adapters/driven/ai"
	"github.com/tripsync/tripctx/internal/adapters/driven/config/file"
	"github.com/tripsync/tripctx/internal/adapters/driven/storage/memory"
	"github.com/tripsync/tripctx/internal/adapters/driven/storage/postgres"
	"github.com/tripsync/tripctx/internal/adapters/driven/storage/sqlite"
	"github.com/tripsync/tripctx/internal/adapters/driven/web"
	"github.com/tripsync/tripctx/internal/connectors/fixture"
	"github.com/tripsync/tripctx/internal/connectors/google"
	gcal "github.com/tripsync/tripctx/internal/connectors/google/calendar"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/core/services"
	"github.com/tripsync/tripctx/internal/logger"
	"github.com/tripsync/tripctx/internal/normalisers"
	"github.com/tripsync/tripctx/internal/postprocessors"
	"github.com/tripsync/tripctx/internal/prompt"
)

// shutdownTimeout bounds how long Close waits for background aggregations.
const shutdownTimeout = 5 * time.Second

// App holds the wired services of one engine instance.
type App struct {
	Settings domain.Settings

	Ingestion  driving.IngestionService
	Retriever  driving.RetrieverService
	Aggregator driving.AggregatorService
	Cache      driving.ContextCache
	Limiter    driving.UsageLimiter
	Context    driving.ContextService
	Members    driving.MembershipService
	Prompts    *file.PromptStore

	closers []func() error
}

// Build wires an engine from settings. home is the tripctx directory that
// holds the default SQLite data and prompt files.
func Build(ctx context.Context, s domain.Settings, home string) (*App, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	a := &App{Settings: s}
	b := &builder{app: a, settings: s, home: home}
	if err := b.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close drains the cache and releases stores, newest first.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.Cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

type builder struct {
	app      *App
	settings domain.Settings
	home     string

	sqliteStore   *sqlite.Store
	postgresStore *postgres.Store
}

func (b *builder) build(ctx context.Context) error {
	s := b.settings

	members, docs, searcher, err := b.documentStores(ctx)
	if err != nil {
		return err
	}
	cacheStore, err := b.cacheStore()
	if err != nil {
		return err
	}
	usageStore, err := b.usageStore(ctx)
	if err != nil {
		return err
	}

	// An unreachable provider fails here rather than on the first query.
	embedder, err := ai.CreateAndValidateEmbeddingService(ctx, &s.Embedding)
	if err != nil {
		return fmt.Errorf("embedding service: %w", err)
	}
	if embedder == nil {
		return fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrInvalidInput, s.Embedding.Provider)
	}
	b.app.closers = append(b.app.closers, embedder.Close)

	retry := services.RetryPolicy{MaxRetries: s.Ingestion.MaxRetries, BaseDelay: s.Ingestion.RetryBaseDelay}

	pipeline, err := postprocessors.BuildPipeline(s.Ingestion.Processors, s.Ingestion.ChunkSize, s.Ingestion.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("%w: ingestion.processors: %w", domain.ErrInvalidInput, err)
	}
	ingestion := services.NewIngestionService(docs, members, embedder, pipeline,
		services.IngestionConfig{BatchSize: s.Ingestion.BatchSize, Retry: retry},
	)
	ingestion.SetNormalisers(normalisers.NewDefaultRegistry())
	if s.Ingestion.FetchLinks {
		ingestion.SetLinkFetcher(web.NewFetcher(web.Config{}))
	}

	retriever := services.NewRetrieverService(members, searcher, embedder, services.RetrieverConfig{
		DefaultK:       s.Retrieval.DefaultK,
		SemanticWeight: s.Retrieval.SemanticWeight,
		LexicalWeight:  s.Retrieval.LexicalWeight,
		CandidateLimit: s.Retrieval.CandidateLimit,
		Retry:          retry,
	})

	sources, err := b.tripSources(ctx)
	if err != nil {
		return err
	}
	aggregator := services.NewAggregatorService(members, sources, services.AggregatorConfig{
		SourceTimeout:        s.Aggregator.SourceTimeout,
		MinAvailableSections: s.Aggregator.MinAvailableSections,
		Limits:               s.Aggregator.Limits,
	})
	cache := services.NewContextCacheService(members, aggregator, cacheStore, s.Cache.ComputeTimeout)

	loc, err := time.LoadLocation(s.Usage.Timezone)
	if err != nil {
		return fmt.Errorf("%w: usage timezone: %w", domain.ErrInvalidInput, err)
	}
	limiter := services.NewUsageLimiterService(usageStore, s.Usage.Limits, loc)
	limiter.SetUserTiers(s.Usage.Tiers)

	prompts, err := file.NewPromptStore(filepath.Join(b.home, "prompts"))
	if err != nil {
		return err
	}
	if s.Prompt.ContractPath != "" {
		prompts.Override(driven.PromptOutputContract, s.Prompt.ContractPath)
	}

	b.app.Ingestion = ingestion
	b.app.Retriever = retriever
	b.app.Aggregator = aggregator
	b.app.Cache = cache
	b.app.Limiter = limiter
	b.app.Prompts = prompts
	b.app.Context = services.NewContextService(members, limiter, cache, retriever, prompts,
		prompt.New(s.Prompt.MaxChars), s.Cache.TTL)
	b.app.Members = services.NewMembershipService(members, cache)
	return nil
}

func (b *builder) documentStores(ctx context.Context) (
	driven.MembershipStore, driven.DocumentStore, driven.ChunkSearcher, error,
) {
	switch b.settings.Storage.Backend {
	case domain.StorageMemory:
		members := memory.NewMembershipStore()
		docs := memory.NewDocumentStore(members)
		return members, docs, docs, nil
	case domain.StorageSQLite:
		store, err := b.sqlite()
		if err != nil {
			return nil, nil, nil, err
		}
		return store.MembershipStore(), store.DocumentStore(), store.ChunkSearcher(), nil
	case domain.StoragePostgres:
		store, err := b.postgres(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		return store.MembershipStore(), store.DocumentStore(), store.ChunkSearcher(), nil
	default:
		return nil, nil, nil, fmt.Errorf("%w: storage backend %q", domain.ErrInvalidInput, b.settings.Storage.Backend)
	}
}

func (b *builder) cacheStore() (driven.ContextCacheStore, error) {
	if b.settings.Cache.Backend == domain.StorageSQLite {
		store, err := b.sqlite()
		if err != nil {
			return nil, err
		}
		return store.ContextCacheStore(), nil
	}
	return memory.NewContextCacheStore(), nil
}

func (b *builder) usageStore(ctx context.Context) (driven.UsageStore, error) {
	switch b.settings.Usage.Backend {
	case domain.StorageSQLite:
		store, err := b.sqlite()
		if err != nil {
			return nil, err
		}
		return store.UsageStore(), nil
	case domain.StoragePostgres:
		store, err := b.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return store.UsageStore(), nil
	default:
		return memory.NewUsageStore(), nil
	}
}

// tripSources serves every section from fixtures when configured, with the
// calendar taken from Google when a calendar ID is set.
func (b *builder) tripSources(ctx context.Context) (driven.TripSources, error) {
	var sources driven.TripSources
	src := b.settings.Sources

	if src.FixturesDir != "" {
		sources = fixture.New(src.FixturesDir).TripSources()
		logger.Debug("Trip fixtures: %s", src.FixturesDir)
	}

	if src.GoogleCalendarID != "" {
		if src.GoogleAccessToken == "" {
			return sources, fmt.Errorf("%w: sources.google_access_token is required with a calendar id", domain.ErrInvalidInput)
		}
		svc, err := google.NewCalendarService(ctx, google.NewStaticTokenSource(src.GoogleAccessToken))
		if err != nil {
			return sources, fmt.Errorf("google calendar: %w", err)
		}
		sources.Calendar = gcal.New(svc, gcal.DefaultConfig(src.GoogleCalendarID))
		logger.Debug("Calendar source: Google calendar %s", src.GoogleCalendarID)
	}
	return sources, nil
}

func (b *builder) sqlite() (*sqlite.Store, error) {
	if b.sqliteStore != nil {
		return b.sqliteStore, nil
	}
	dir := b.settings.Storage.Path
	if dir == "" {
		dir = filepath.Join(b.home, "data")
	}
	store, err := sqlite.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}
	b.sqliteStore = store
	b.app.closers = append(b.app.closers, store.Close)
	logger.Debug("SQLite store: %s", store.Path())
	return store, nil
}

func (b *builder) postgres(ctx context.Context) (*postgres.Store, error) {
	if b.postgresStore != nil {
		return b.postgresStore, nil
	}
	store, err := postgres.NewStore(ctx, b.settings.Storage.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}
	b.postgresStore = store
	b.app.closers = append(b.app.closers, func() error {
		store.Close()
		return nil
	})
	return store, nil
}
