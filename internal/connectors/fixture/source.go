// Package fixture serves structured trip data from per-trip YAML snapshots.
//
// Each trip lives in <dir>/<tripID>.yaml. A snapshot is re-read when its
// modification time changes, so edits show up without a restart. A trip
// with no snapshot has no structured data and every section comes back empty.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// Snapshot is one trip's structured data as stored on disk.
type Snapshot struct {
	Calendar    []domain.CalendarEvent `yaml:"calendar"`
	Ledger      []domain.LedgerEntry   `yaml:"ledger"`
	Polls       []domain.Poll          `yaml:"polls"`
	Places      []domain.Place         `yaml:"places"`
	Chat        []domain.ChatMessage   `yaml:"chat"`
	Roster      []domain.RosterEntry   `yaml:"roster"`
	Broadcasts  []domain.Broadcast     `yaml:"broadcasts"`
	Preferences []domain.Preference    `yaml:"preferences"`
}

type cachedSnapshot struct {
	modTime time.Time
	snap    *Snapshot
}

// Source implements every structured source port over a fixtures directory.
type Source struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSnapshot
}

var (
	_ driven.CalendarSource   = (*Source)(nil)
	_ driven.LedgerSource     = (*Source)(nil)
	_ driven.PollSource       = (*Source)(nil)
	_ driven.PlaceSource      = (*Source)(nil)
	_ driven.ChatSource       = (*Source)(nil)
	_ driven.RosterSource     = (*Source)(nil)
	_ driven.BroadcastSource  = (*Source)(nil)
	_ driven.PreferenceSource = (*Source)(nil)
)

// New creates a source reading snapshots from dir.
func New(dir string) *Source {
	return &Source{
		dir:   dir,
		now:   time.Now,
		cache: make(map[string]cachedSnapshot),
	}
}

// TripSources returns a bundle with every section served by s.
func (s *Source) TripSources() driven.TripSources {
	return driven.TripSources{
		Calendar:    s,
		Ledger:      s,
		Polls:       s,
		Places:      s,
		Chat:        s,
		Roster:      s,
		Broadcasts:  s,
		Preferences: s,
	}
}

// Events returns events that have not yet ended.
func (s *Source) Events(ctx context.Context, tripID string) ([]domain.CalendarEvent, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []domain.CalendarEvent
	for _, ev := range snap.Calendar {
		end := ev.End
		if end.IsZero() {
			end = ev.Start
		}
		if !end.Before(now) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Entries returns the trip's ledger.
func (s *Source) Entries(ctx context.Context, tripID string) ([]domain.LedgerEntry, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return snap.Ledger, nil
}

// Polls returns the trip's polls.
func (s *Source) Polls(ctx context.Context, tripID string) ([]domain.Poll, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return snap.Polls, nil
}

// Places returns the trip's saved places.
func (s *Source) Places(ctx context.Context, tripID string) ([]domain.Place, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return snap.Places, nil
}

// RecentMessages returns at most limit of the latest messages in file order.
func (s *Source) RecentMessages(ctx context.Context, tripID string, limit int) ([]domain.ChatMessage, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	msgs := snap.Chat
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Roster returns the trip's members.
func (s *Source) Roster(ctx context.Context, tripID string) ([]domain.RosterEntry, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return snap.Roster, nil
}

// Broadcasts returns organiser announcements.
func (s *Source) Broadcasts(ctx context.Context, tripID string) ([]domain.Broadcast, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return snap.Broadcasts, nil
}

// Preferences returns member preferences.
func (s *Source) Preferences(ctx context.Context, tripID string) ([]domain.Preference, error) {
	snap, err := s.load(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return snap.Preferences, nil
}

func (s *Source) load(ctx context.Context, tripID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tripID == "" || strings.ContainsAny(tripID, `/\`) || tripID == "." || tripID == ".." {
		return nil, fmt.Errorf("%w: trip id %q", domain.ErrInvalidInput, tripID)
	}

	path := filepath.Join(s.dir, tripID+".yaml")
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fixture %s: %w", domain.ErrSourceUnavailable, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache[tripID]; ok && c.modTime.Equal(info.ModTime()) {
		return c.snap, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: fixture %s: %w", domain.ErrSourceUnavailable, path, err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: parsing fixture %s: %w", domain.ErrSourceUnavailable, path, err)
	}
	s.cache[tripID] = cachedSnapshot{modTime: info.ModTime(), snap: &snap}
	return &snap, nil
}
