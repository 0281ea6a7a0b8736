package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

func newAggregator(t *testing.T, sources driven.TripSources, cfg AggregatorConfig) *AggregatorService {
	t.Helper()
	members := newMembers(t, []string{tripA + "/" + alice},
		domain.Membership{TripID: tripA, UserID: carol, Status: domain.MembershipRemoved})
	svc := NewAggregatorService(members, sources, cfg)
	svc.SetClock(func() time.Time { return baseTime })
	return svc
}

func TestAggregatorService_AllSources(t *testing.T) {
	svc := newAggregator(t, healthySources(), AggregatorConfig{})

	rec, err := svc.Aggregate(context.Background(), tripA, alice)
	require.NoError(t, err)

	assert.Equal(t, tripA, rec.TripID)
	assert.Equal(t, alice, rec.UserID)
	assert.Equal(t, baseTime, rec.ComputedAt)
	assert.Empty(t, rec.Omitted)

	require.Len(t, rec.Calendar, 2)
	assert.Equal(t, "e1", rec.Calendar[0].ID, "calendar sorted by start")
	assert.Len(t, rec.Ledger, 1)
	assert.Len(t, rec.Polls, 1)
	assert.Len(t, rec.Places, 1)
	assert.Len(t, rec.Roster, 2)
	assert.Len(t, rec.Broadcasts, 1)
	assert.Len(t, rec.Preferences, 1)
	require.Len(t, rec.Chat.Messages, 1)
	assert.Equal(t, domain.SentimentPositive, rec.Chat.Sentiment.Label)
}

func TestAggregatorService_LedgerTimeout(t *testing.T) {
	sources := healthySources()
	sources.Ledger = ledgerFunc(func(context.Context, string) ([]domain.LedgerEntry, error) {
		// Ignores cancellation entirely.
		time.Sleep(500 * time.Millisecond)
		return []domain.LedgerEntry{{ID: "late"}}, nil
	})
	svc := newAggregator(t, sources, AggregatorConfig{SourceTimeout: 50 * time.Millisecond})

	start := time.Now()
	rec, err := svc.Aggregate(context.Background(), tripA, alice)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "slow source must not hold the record")

	assert.NotEmpty(t, rec.Calendar)
	assert.NotEmpty(t, rec.Polls)
	assert.NotEmpty(t, rec.Places)
	assert.Empty(t, rec.Ledger)

	require.True(t, rec.IsOmitted(domain.SectionLedger))
	assert.Equal(t, "timed out after 50ms", rec.OmissionReason(domain.SectionLedger))
	assert.Len(t, rec.Omitted, 1)
}

func TestAggregatorService_SourceError(t *testing.T) {
	sources := healthySources()
	sources.Chat = chatFunc(func(context.Context, string, int) ([]domain.ChatMessage, error) {
		return nil, errors.New("chat backend 500")
	})
	svc := newAggregator(t, sources, AggregatorConfig{})

	rec, err := svc.Aggregate(context.Background(), tripA, alice)
	require.NoError(t, err)
	assert.True(t, rec.IsOmitted(domain.SectionChat))
	assert.Equal(t, "unavailable", rec.OmissionReason(domain.SectionChat))
	assert.Empty(t, rec.Chat.Messages)
	assert.NotEmpty(t, rec.Ledger)
}

func TestAggregatorService_NotConfigured(t *testing.T) {
	sources := healthySources()
	sources.Broadcasts = nil
	sources.Preferences = nil
	svc := newAggregator(t, sources, AggregatorConfig{})

	rec, err := svc.Aggregate(context.Background(), tripA, alice)
	require.NoError(t, err)
	require.Len(t, rec.Omitted, 2)
	assert.Equal(t, domain.SectionBroadcasts, rec.Omitted[0].Section)
	assert.Equal(t, domain.SectionPreferences, rec.Omitted[1].Section)
	assert.Equal(t, reasonNotConfigured, rec.Omitted[0].Reason)
}

func TestAggregatorService_NoSources(t *testing.T) {
	svc := newAggregator(t, driven.TripSources{}, AggregatorConfig{MinAvailableSections: 3})

	rec, err := svc.Aggregate(context.Background(), tripA, alice)
	require.NoError(t, err)
	assert.Len(t, rec.Omitted, len(domain.SectionOrder))
}

func TestAggregatorService_Threshold(t *testing.T) {
	failing := errors.New("down")
	sources := driven.TripSources{
		Calendar: calendarFunc(func(context.Context, string) ([]domain.CalendarEvent, error) { return nil, failing }),
		Ledger:   ledgerFunc(func(context.Context, string) ([]domain.LedgerEntry, error) { return nil, failing }),
		Polls: pollFunc(func(context.Context, string) ([]domain.Poll, error) {
			return []domain.Poll{{ID: "p"}}, nil
		}),
	}

	tests := []struct {
		name    string
		min     int
		wantErr bool
	}{
		{"zero threshold accepts anything", 0, false},
		{"one available meets one", 1, false},
		{"one available misses two", 2, true},
		{"threshold capped at configured count", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newAggregator(t, sources, AggregatorConfig{MinAvailableSections: tt.min})
			rec, err := svc.Aggregate(context.Background(), tripA, alice)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
				assert.Nil(t, rec)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rec.Polls, 1)
		})
	}

	allDown := driven.TripSources{Ledger: sources.Ledger}
	svc := newAggregator(t, allDown, AggregatorConfig{MinAvailableSections: 1})
	_, err := svc.Aggregate(context.Background(), tripA, alice)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestAggregatorService_AccessDenied(t *testing.T) {
	var calls atomic.Int32
	sources := healthySources()
	sources.Calendar = calendarFunc(func(context.Context, string) ([]domain.CalendarEvent, error) {
		calls.Add(1)
		return nil, nil
	})
	svc := newAggregator(t, sources, AggregatorConfig{})

	for _, caller := range []string{carol, bob, ""} {
		rec, err := svc.Aggregate(context.Background(), tripA, caller)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
		assert.Nil(t, rec)
	}
	assert.Zero(t, calls.Load(), "sources are never queried for non-members")
}

func TestAggregatorService_Cancelled(t *testing.T) {
	svc := newAggregator(t, healthySources(), AggregatorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Aggregate(ctx, tripA, alice)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregatorService_Limits(t *testing.T) {
	sources := healthySources()
	sources.Chat = chatFunc(func(_ context.Context, _ string, limit int) ([]domain.ChatMessage, error) {
		assert.Equal(t, 3, limit)
		var msgs []domain.ChatMessage
		for i := 0; i < 10; i++ {
			msgs = append(msgs, domain.ChatMessage{ID: string(rune('a' + i)), SentAt: baseTime.Add(time.Duration(i) * time.Minute)})
		}
		return msgs, nil
	})
	svc := newAggregator(t, sources, AggregatorConfig{Limits: map[domain.SectionKind]int{
		domain.SectionChat:     3,
		domain.SectionCalendar: 1,
	}})

	rec, err := svc.Aggregate(context.Background(), tripA, alice)
	require.NoError(t, err)
	require.Len(t, rec.Chat.Messages, 3)
	assert.Equal(t, []string{"h", "i", "j"}, []string{rec.Chat.Messages[0].ID, rec.Chat.Messages[1].ID, rec.Chat.Messages[2].ID})
	assert.Len(t, rec.Calendar, 1)
}

func TestTrimPolls_OpenFirst(t *testing.T) {
	polls := []domain.Poll{
		{ID: "closed-new", Closed: true, CreatedAt: baseTime.Add(time.Hour)},
		{ID: "open-old", CreatedAt: baseTime},
		{ID: "open-new", CreatedAt: baseTime.Add(time.Hour)},
	}
	out := trimPolls(polls, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "open-new", out[0].ID)
	assert.Equal(t, "open-old", out[1].ID)
	assert.Equal(t, "closed-new", polls[0].ID, "input is not reordered")
}
