package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/adapters/driven/storage/memory"
	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/lexical"
)

const (
	tripA = "trip-a"
	tripB = "trip-b"
	alice = "alice"
	bob   = "bob"
	carol = "carol"
)

// noRetry keeps failing tests fast.
var noRetry = RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond}

// newMembers returns a membership store with the given active rows
// ("trip/user") plus any extra rows.
func newMembers(t *testing.T, active []string, extra ...domain.Membership) *memory.MembershipStore {
	t.Helper()
	store := memory.NewMembershipStore()
	for _, row := range active {
		trip, user, ok := strings.Cut(row, "/")
		require.True(t, ok)
		require.NoError(t, store.SetMembership(context.Background(), domain.Membership{
			TripID: trip, UserID: user, Status: domain.MembershipActive,
		}))
	}
	for _, m := range extra {
		require.NoError(t, store.SetMembership(context.Background(), m))
	}
	return store
}

// fixedClock is a settable time source.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{now: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ==================== Embedding ====================

// vocabEmbedder embeds text as term counts over a fixed vocabulary, which
// makes cosine similarity track keyword overlap.
type vocabEmbedder struct {
	vocab      []string
	embedCalls atomic.Int32
	batchCalls atomic.Int32

	// failBatches fails that many EmbedBatch calls before succeeding.
	failBatches atomic.Int32
	err         error
}

func newVocabEmbedder(vocab ...string) *vocabEmbedder {
	return &vocabEmbedder{vocab: vocab}
}

func (e *vocabEmbedder) vector(text string) []float32 {
	v := make([]float32, len(e.vocab))
	for _, tok := range lexical.Tokens(text) {
		for i, w := range e.vocab {
			if tok == w {
				v[i]++
			}
		}
	}
	return v
}

func (e *vocabEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.embedCalls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *vocabEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batchCalls.Add(1)
	if e.failBatches.Load() > 0 {
		e.failBatches.Add(-1)
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *vocabEmbedder) Dimensions() int              { return len(e.vocab) }
func (e *vocabEmbedder) ModelName() string            { return "vocab" }
func (e *vocabEmbedder) Ping(_ context.Context) error { return nil }
func (e *vocabEmbedder) Close() error                 { return nil }

// ==================== Sources ====================

type calendarFunc func(ctx context.Context, tripID string) ([]domain.CalendarEvent, error)

func (f calendarFunc) Events(ctx context.Context, tripID string) ([]domain.CalendarEvent, error) {
	return f(ctx, tripID)
}

type ledgerFunc func(ctx context.Context, tripID string) ([]domain.LedgerEntry, error)

func (f ledgerFunc) Entries(ctx context.Context, tripID string) ([]domain.LedgerEntry, error) {
	return f(ctx, tripID)
}

type pollFunc func(ctx context.Context, tripID string) ([]domain.Poll, error)

func (f pollFunc) Polls(ctx context.Context, tripID string) ([]domain.Poll, error) {
	return f(ctx, tripID)
}

type placeFunc func(ctx context.Context, tripID string) ([]domain.Place, error)

func (f placeFunc) Places(ctx context.Context, tripID string) ([]domain.Place, error) {
	return f(ctx, tripID)
}

type chatFunc func(ctx context.Context, tripID string, limit int) ([]domain.ChatMessage, error)

func (f chatFunc) RecentMessages(ctx context.Context, tripID string, limit int) ([]domain.ChatMessage, error) {
	return f(ctx, tripID, limit)
}

type rosterFunc func(ctx context.Context, tripID string) ([]domain.RosterEntry, error)

func (f rosterFunc) Roster(ctx context.Context, tripID string) ([]domain.RosterEntry, error) {
	return f(ctx, tripID)
}

type broadcastFunc func(ctx context.Context, tripID string) ([]domain.Broadcast, error)

func (f broadcastFunc) Broadcasts(ctx context.Context, tripID string) ([]domain.Broadcast, error) {
	return f(ctx, tripID)
}

type preferenceFunc func(ctx context.Context, tripID string) ([]domain.Preference, error)

func (f preferenceFunc) Preferences(ctx context.Context, tripID string) ([]domain.Preference, error) {
	return f(ctx, tripID)
}

var baseTime = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// healthySources returns one small fixture per section.
func healthySources() driven.TripSources {
	return driven.TripSources{
		Calendar: calendarFunc(func(context.Context, string) ([]domain.CalendarEvent, error) {
			return []domain.CalendarEvent{
				{ID: "e2", Title: "Dinner", Start: baseTime.Add(10 * time.Hour)},
				{ID: "e1", Title: "Flight TP123", Start: baseTime.Add(2 * time.Hour), Location: "LIS"},
			}, nil
		}),
		Ledger: ledgerFunc(func(context.Context, string) ([]domain.LedgerEntry, error) {
			return []domain.LedgerEntry{
				{ID: "l1", Description: "Hotel deposit", Amount: 24000, Currency: "EUR", PaidBy: alice, CreatedAt: baseTime},
			}, nil
		}),
		Polls: pollFunc(func(context.Context, string) ([]domain.Poll, error) {
			return []domain.Poll{
				{ID: "p1", Question: "Beach or museum?", Options: []domain.PollOption{{Label: "beach", Votes: 3}}, CreatedAt: baseTime},
			}, nil
		}),
		Places: placeFunc(func(context.Context, string) ([]domain.Place, error) {
			return []domain.Place{{ID: "pl1", Name: "Time Out Market", AddedAt: baseTime}}, nil
		}),
		Chat: chatFunc(func(context.Context, string, int) ([]domain.ChatMessage, error) {
			return []domain.ChatMessage{
				{ID: "m1", Author: bob, Text: "So excited, this is going to be great", SentAt: baseTime},
			}, nil
		}),
		Roster: rosterFunc(func(context.Context, string) ([]domain.RosterEntry, error) {
			return []domain.RosterEntry{{UserID: alice, DisplayName: "Alice"}, {UserID: bob, DisplayName: "Bob"}}, nil
		}),
		Broadcasts: broadcastFunc(func(context.Context, string) ([]domain.Broadcast, error) {
			return []domain.Broadcast{{ID: "b1", Author: alice, Text: "Passports!", SentAt: baseTime}}, nil
		}),
		Preferences: preferenceFunc(func(context.Context, string) ([]domain.Preference, error) {
			return []domain.Preference{{UserID: bob, Key: "diet", Value: "vegetarian"}}, nil
		}),
	}
}

// ==================== Aggregator ====================

// countingAggregator records calls and optionally blocks until released.
type countingAggregator struct {
	calls   atomic.Int32
	gate    chan struct{}
	err     error
	records func(n int32) *domain.AggregateRecord
}

func (a *countingAggregator) Aggregate(ctx context.Context, tripID, callerID string) (*domain.AggregateRecord, error) {
	n := a.calls.Add(1)
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	if a.records != nil {
		return a.records(n), nil
	}
	return &domain.AggregateRecord{
		TripID: tripID,
		UserID: callerID,
		Ledger: []domain.LedgerEntry{{ID: "l1", Description: "call", Amount: int64(n)}},
	}, nil
}

// ==================== Prompts ====================

type staticPrompts map[string]string

func (p staticPrompts) Load(name string) (string, error) {
	text, ok := p[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (p staticPrompts) Reload() {}

func defaultPrompts() staticPrompts {
	return staticPrompts{
		driven.PromptOutputContract: "Answer in at most five sentences. Cite documents as [n].",
		driven.PromptSystemPreamble: "You are the trip assistant.",
	}
}
