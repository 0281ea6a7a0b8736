package fixture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/core/domain"
)

func newTestSource(t *testing.T, dir string) *Source {
	t.Helper()
	s := New(dir)
	s.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSource_ReadsEverySection(t *testing.T) {
	s := newTestSource(t, "testdata")
	ctx := context.Background()
	const trip = "trip-lisbon"

	events, err := s.Events(ctx, trip)
	require.NoError(t, err)
	require.Len(t, events, 2, "past events are filtered")
	assert.Equal(t, "ev-arrive", events[0].ID)
	assert.True(t, events[1].AllDay)

	ledger, err := s.Entries(ctx, trip)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, int64(45000), ledger[0].Amount)
	assert.Equal(t, []string{"alice", "bob", "carol"}, ledger[0].SplitWith)

	polls, err := s.Polls(ctx, trip)
	require.NoError(t, err)
	require.Len(t, polls, 1)
	assert.Len(t, polls[0].Options, 2)

	places, err := s.Places(ctx, trip)
	require.NoError(t, err)
	assert.Equal(t, "Time Out Market", places[0].Name)

	roster, err := s.Roster(ctx, trip)
	require.NoError(t, err)
	assert.Len(t, roster, 3)
	assert.Equal(t, "organiser", roster[0].Role)

	broadcasts, err := s.Broadcasts(ctx, trip)
	require.NoError(t, err)
	assert.Len(t, broadcasts, 1)

	prefs, err := s.Preferences(ctx, trip)
	require.NoError(t, err)
	assert.Equal(t, "vegetarian", prefs[0].Value)
}

func TestSource_RecentMessagesKeepsLatest(t *testing.T) {
	s := newTestSource(t, "testdata")

	msgs, err := s.RecentMessages(context.Background(), "trip-lisbon", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)

	all, err := s.RecentMessages(context.Background(), "trip-lisbon", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSource_MissingTripIsEmpty(t *testing.T) {
	s := newTestSource(t, "testdata")

	events, err := s.Events(context.Background(), "trip-nowhere")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSource_RejectsPathTraversal(t *testing.T) {
	s := newTestSource(t, "testdata")

	for _, id := range []string{"", "..", "../secrets", `a\b`} {
		_, err := s.Entries(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, id)
	}
}

func TestSource_MalformedFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trip-bad.yaml"), []byte("ledger: [unclosed"), 0o600))
	s := newTestSource(t, dir)

	_, err := s.Entries(context.Background(), "trip-bad")
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestSource_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trip-1.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roster:\n  - user_id: alice\n"), 0o600))
	s := newTestSource(t, dir)

	roster, err := s.Roster(context.Background(), "trip-1")
	require.NoError(t, err)
	assert.Len(t, roster, 1)

	require.NoError(t, os.WriteFile(path, []byte("roster:\n  - user_id: alice\n  - user_id: bob\n"), 0o600))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	roster, err = s.Roster(context.Background(), "trip-1")
	require.NoError(t, err)
	assert.Len(t, roster, 2)
}

func TestSource_CancelledContext(t *testing.T) {
	s := newTestSource(t, "testdata")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Polls(ctx, "trip-lisbon")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSource_TripSources(t *testing.T) {
	src := New("testdata").TripSources()
	assert.NotNil(t, src.Calendar)
	assert.NotNil(t, src.Chat)
	assert.NotNil(t, src.Preferences)
}
