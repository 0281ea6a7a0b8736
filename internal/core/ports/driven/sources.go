package driven

import (
	"context"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// Structured trip data sources. Each is an independent external read.
// Implementations should honour ctx cancellation; the aggregator applies a
// per-source timeout and treats any error as an omitted section.

// CalendarSource returns upcoming itinerary events, soonest first.
type CalendarSource interface {
	Events(ctx context.Context, tripID string) ([]domain.CalendarEvent, error)
}

// LedgerSource returns shared expenses, newest first.
type LedgerSource interface {
	Entries(ctx context.Context, tripID string) ([]domain.LedgerEntry, error)
}

// PollSource returns polls, newest first.
type PollSource interface {
	Polls(ctx context.Context, tripID string) ([]domain.Poll, error)
}

// PlaceSource returns saved places, newest first.
type PlaceSource interface {
	Places(ctx context.Context, tripID string) ([]domain.Place, error)
}

// ChatSource returns recent chat messages, oldest first.
type ChatSource interface {
	RecentMessages(ctx context.Context, tripID string, limit int) ([]domain.ChatMessage, error)
}

// RosterSource returns trip members and their team roles.
type RosterSource interface {
	Roster(ctx context.Context, tripID string) ([]domain.RosterEntry, error)
}

// BroadcastSource returns organiser announcements, newest first.
type BroadcastSource interface {
	Broadcasts(ctx context.Context, tripID string) ([]domain.Broadcast, error)
}

// PreferenceSource returns member preferences.
type PreferenceSource interface {
	Preferences(ctx context.Context, tripID string) ([]domain.Preference, error)
}

// TripSources bundles the structured sources. Nil fields are unconfigured.
type TripSources struct {
	Calendar    CalendarSource
	Ledger      LedgerSource
	Polls       PollSource
	Places      PlaceSource
	Chat        ChatSource
	Roster      RosterSource
	Broadcasts  BroadcastSource
	Preferences PreferenceSource
}
