package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/core/ports/driving"
	"github.com/tripsync/tripctx/internal/logger"
)

// Ensure AggregatorService implements the interface.
var _ driving.AggregatorService = (*AggregatorService)(nil)

const (
	defaultSourceTimeout = 2 * time.Second

	reasonNotConfigured = "not configured"
)

// AggregatorConfig tunes the structured context fan-out.
type AggregatorConfig struct {
	// SourceTimeout bounds each source call.
	SourceTimeout time.Duration

	// MinAvailableSections is how many configured sources must succeed for
	// the record to be usable. It is capped at the number of configured sources.
	MinAvailableSections int

	// Limits caps the rows kept per section. Missing kinds use the defaults.
	Limits map[domain.SectionKind]int
}

// AggregatorService fetches structured trip data from every source concurrently.
type AggregatorService struct {
	members driven.MembershipOracle
	sources driven.TripSources
	cfg     AggregatorConfig
	now     func() time.Time
}

// NewAggregatorService creates a new aggregator. Nil sources are reported
// as omitted sections.
func NewAggregatorService(
	members driven.MembershipOracle,
	sources driven.TripSources,
	cfg AggregatorConfig,
) *AggregatorService {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if cfg.MinAvailableSections < 0 {
		cfg.MinAvailableSections = 0
	}
	limits := domain.DefaultSectionLimits()
	for k, v := range cfg.Limits {
		if v > 0 {
			limits[k] = v
		}
	}
	cfg.Limits = limits

	return &AggregatorService{
		members: members,
		sources: sources,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetClock overrides the time source.
func (s *AggregatorService) SetClock(now func() time.Time) {
	s.now = now
}

// sectionOutcome records how one source fared.
type sectionOutcome struct {
	configured bool
	err        error
}

// Aggregate fetches all structured sections for tripID. One source's failure
// omits only that section.
func (s *AggregatorService) Aggregate(ctx context.Context, tripID, callerID string) (*domain.AggregateRecord, error) {
	if err := requireActiveMember(ctx, s.members, tripID, callerID); err != nil {
		return nil, err
	}

	logger.Section("Aggregation")
	defer logger.Timed("aggregate")()

	rec := &domain.AggregateRecord{TripID: tripID, UserID: callerID}
	outcomes := make(map[domain.SectionKind]*sectionOutcome, len(domain.SectionOrder))
	for _, kind := range domain.SectionOrder {
		outcomes[kind] = &sectionOutcome{}
	}

	var g errgroup.Group
	run := func(kind domain.SectionKind, configured bool, fetch func(ctx context.Context) error) {
		out := outcomes[kind]
		out.configured = configured
		if !configured {
			return
		}
		g.Go(func() error {
			out.err = fetch(ctx)
			return nil
		})
	}

	src := s.sources
	run(domain.SectionCalendar, src.Calendar != nil, func(ctx context.Context) error {
		events, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.CalendarEvent, error) {
			return src.Calendar.Events(ctx, tripID)
		})
		rec.Calendar = trimCalendar(events, s.cfg.Limits[domain.SectionCalendar])
		return err
	})
	run(domain.SectionLedger, src.Ledger != nil, func(ctx context.Context) error {
		entries, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.LedgerEntry, error) {
			return src.Ledger.Entries(ctx, tripID)
		})
		rec.Ledger = trimLedger(entries, s.cfg.Limits[domain.SectionLedger])
		return err
	})
	run(domain.SectionPolls, src.Polls != nil, func(ctx context.Context) error {
		polls, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.Poll, error) {
			return src.Polls.Polls(ctx, tripID)
		})
		rec.Polls = trimPolls(polls, s.cfg.Limits[domain.SectionPolls])
		return err
	})
	run(domain.SectionPlaces, src.Places != nil, func(ctx context.Context) error {
		places, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.Place, error) {
			return src.Places.Places(ctx, tripID)
		})
		rec.Places = trimPlaces(places, s.cfg.Limits[domain.SectionPlaces])
		return err
	})
	run(domain.SectionChat, src.Chat != nil, func(ctx context.Context) error {
		limit := s.cfg.Limits[domain.SectionChat]
		msgs, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.ChatMessage, error) {
			return src.Chat.RecentMessages(ctx, tripID, limit)
		})
		msgs = trimChat(msgs, limit)
		rec.Chat = domain.ChatExcerpt{Messages: msgs, Sentiment: ScoreSentiment(msgs)}
		return err
	})
	run(domain.SectionRoster, src.Roster != nil, func(ctx context.Context) error {
		roster, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.RosterEntry, error) {
			return src.Roster.Roster(ctx, tripID)
		})
		rec.Roster = trimRoster(roster, s.cfg.Limits[domain.SectionRoster])
		return err
	})
	run(domain.SectionBroadcasts, src.Broadcasts != nil, func(ctx context.Context) error {
		broadcasts, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.Broadcast, error) {
			return src.Broadcasts.Broadcasts(ctx, tripID)
		})
		rec.Broadcasts = trimBroadcasts(broadcasts, s.cfg.Limits[domain.SectionBroadcasts])
		return err
	})
	run(domain.SectionPreferences, src.Preferences != nil, func(ctx context.Context) error {
		prefs, err := fetchWithTimeout(ctx, s.cfg.SourceTimeout, func(ctx context.Context) ([]domain.Preference, error) {
			return src.Preferences.Preferences(ctx, tripID)
		})
		rec.Preferences = trimPreferences(prefs, s.cfg.Limits[domain.SectionPreferences])
		return err
	})

	_ = g.Wait()

	configured, available := 0, 0
	for _, kind := range domain.SectionOrder {
		out := outcomes[kind]
		switch {
		case !out.configured:
			rec.Omitted = append(rec.Omitted, domain.OmittedSection{Section: kind, Reason: reasonNotConfigured})
		case out.err != nil:
			configured++
			reason := omissionReason(out.err, s.cfg.SourceTimeout)
			logger.Warn("Section %s omitted: %v", kind, out.err)
			rec.Omitted = append(rec.Omitted, domain.OmittedSection{Section: kind, Reason: reason})
			clearSection(rec, kind)
		default:
			configured++
			available++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	required := s.cfg.MinAvailableSections
	if required > configured {
		required = configured
	}
	if available < required {
		return nil, fmt.Errorf("%w: %d of %d sources available, need %d",
			domain.ErrSourceUnavailable, available, configured, required)
	}

	rec.ComputedAt = s.now()
	logger.Info("Aggregated %d/%d configured sections", available, configured)
	return rec, nil
}

// fetchWithTimeout runs call under timeout. A source that ignores
// cancellation is abandoned once the deadline passes; its late result is dropped.
func fetchWithTimeout[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			var zero T
			return zero, r.err
		}
		return r.v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func omissionReason(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timed out after %s", timeout)
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "unavailable"
}

func clearSection(rec *domain.AggregateRecord, kind domain.SectionKind) {
	switch kind {
	case domain.SectionCalendar:
		rec.Calendar = nil
	case domain.SectionLedger:
		rec.Ledger = nil
	case domain.SectionPolls:
		rec.Polls = nil
	case domain.SectionPlaces:
		rec.Places = nil
	case domain.SectionChat:
		rec.Chat = domain.ChatExcerpt{}
	case domain.SectionRoster:
		rec.Roster = nil
	case domain.SectionBroadcasts:
		rec.Broadcasts = nil
	case domain.SectionPreferences:
		rec.Preferences = nil
	}
}

// ==================== Trimming ====================
//
// Each trim sorts a copy so the record is deterministic regardless of the
// order a source returns rows in, then keeps the most relevant limit rows.

func head[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func trimCalendar(events []domain.CalendarEvent, limit int) []domain.CalendarEvent {
	out := append([]domain.CalendarEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit)
}

func trimLedger(entries []domain.LedgerEntry, limit int) []domain.LedgerEntry {
	out := append([]domain.LedgerEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit)
}

// trimPolls keeps open polls ahead of closed ones, newest first.
func trimPolls(polls []domain.Poll, limit int) []domain.Poll {
	out := append([]domain.Poll(nil), polls...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Closed != out[j].Closed {
			return !out[i].Closed
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit)
}

func trimPlaces(places []domain.Place, limit int) []domain.Place {
	out := append([]domain.Place(nil), places...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.After(out[j].AddedAt)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit)
}

// trimChat keeps the most recent limit messages, returned oldest first.
func trimChat(msgs []domain.ChatMessage, limit int) []domain.ChatMessage {
	out := append([]domain.ChatMessage(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func trimRoster(roster []domain.RosterEntry, limit int) []domain.RosterEntry {
	out := append([]domain.RosterEntry(nil), roster...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID < out[j].UserID
	})
	return head(out, limit)
}

func trimBroadcasts(broadcasts []domain.Broadcast, limit int) []domain.Broadcast {
	out := append([]domain.Broadcast(nil), broadcasts...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	return head(out, limit)
}

func trimPreferences(prefs []domain.Preference, limit int) []domain.Preference {
	out := append([]domain.Preference(nil), prefs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Key < out[j].Key
	})
	return head(out, limit)
}
