package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/logger"
	"github.com/tripsync/tripctx/internal/prompt"
)

// Ensure ContextService implements the interface.
var _ driving.ContextService = (*ContextService)(nil)

const defaultCacheTTL = 60 * time.Second

// ContextService answers the retrieval query call: it admits the query,
// gathers retrieved chunks and structured state concurrently, and assembles
// the bounded prompt.
type ContextService struct {
	members   driven.MembershipOracle
	limiter   driving.UsageLimiter
	cache     driving.ContextCache
	retriever driving.RetrieverService
	prompts   driven.PromptStore
	assembler *prompt.Assembler
	ttl       time.Duration
}

// NewContextService creates the query orchestrator.
func NewContextService(
	members driven.MembershipOracle,
	limiter driving.UsageLimiter,
	cache driving.ContextCache,
	retriever driving.RetrieverService,
	prompts driven.PromptStore,
	assembler *prompt.Assembler,
	ttl time.Duration,
) *ContextService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if assembler == nil {
		assembler = prompt.New(prompt.DefaultMaxChars)
	}
	return &ContextService{
		members:   members,
		limiter:   limiter,
		cache:     cache,
		retriever: retriever,
		prompts:   prompts,
		assembler: assembler,
		ttl:       ttl,
	}
}

// BuildPrompt produces the prompt for one question.
//
// Membership is checked before the quota so non-members never consume it.
// A failure of either retrieval or aggregation degrades the prompt; only
// both failing is an error.
func (s *ContextService) BuildPrompt(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	logger.Section("Query")
	defer logger.Timed("build prompt")()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := requireActiveMember(ctx, s.members, req.TripID, req.CallerID); err != nil {
		return nil, err
	}

	// Prompt files load before any quota is spent.
	contract, err := s.loadPrompt(driven.PromptOutputContract)
	if err != nil {
		return nil, err
	}
	preamble, err := s.loadPrompt(driven.PromptSystemPreamble)
	if err != nil {
		return nil, err
	}

	usage, err := s.limiter.CheckAndIncrement(ctx, req.CallerID, req.TripID, req.Tier)
	if err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	}
	if !usage.Allowed {
		return nil, fmt.Errorf("%w: %d of %d queries used today", domain.ErrQuotaExceeded, usage.Count, usage.Limit)
	}
	logger.Debug("Quota: %d used, %d remaining", usage.Count, usage.Remaining)

	var (
		record    *domain.AggregateRecord
		chunks    []domain.RetrievedChunk
		recordErr error
		chunkErr  error
		g         errgroup.Group
	)
	g.Go(func() error {
		record, recordErr = s.cache.GetOrCompute(ctx, req.TripID, req.CallerID, s.ttl)
		return nil
	})
	g.Go(func() error {
		chunks, chunkErr = s.retriever.Retrieve(ctx, req.TripID, req.CallerID, req.Query, req.K)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, e := range []error{recordErr, chunkErr} {
		if errors.Is(e, domain.ErrAccessDenied) {
			return nil, e
		}
	}
	if recordErr != nil && chunkErr != nil {
		logger.Warn("No context: aggregate=%v retrieve=%v", recordErr, chunkErr)
		return nil, fmt.Errorf("%w: %w", domain.ErrContextUnavailable, errors.Join(recordErr, chunkErr))
	}

	degraded := false
	if recordErr != nil {
		logger.Warn("Structured context unavailable, continuing without it: %v", recordErr)
		record, degraded = nil, true
	}
	if chunkErr != nil {
		logger.Warn("Retrieval failed, continuing without documents: %v", chunkErr)
		chunks, degraded = nil, true
	}
	if record != nil && record.Stale {
		degraded = true
	}
	if chunks == nil {
		chunks = []domain.RetrievedChunk{}
	}

	text, err := s.assembler.Assemble(prompt.Input{
		Preamble: preamble,
		Question: req.Query,
		Chunks:   chunks,
		Record:   record,
		Contract: contract,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}
	logger.Info("Prompt assembled: %d chunks, %d characters, degraded=%t", len(chunks), len([]rune(text)), degraded)

	return &domain.QueryResult{
		Prompt:   text,
		Chunks:   chunks,
		Record:   record,
		Usage:    usage,
		Degraded: degraded,
	}, nil
}

func (s *ContextService) loadPrompt(name string) (string, error) {
	if s.prompts == nil {
		return "", fmt.Errorf("load %s: prompt store not configured", name)
	}
	text, err := s.prompts.Load(name)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", name, err)
	}
	return text, nil
}
