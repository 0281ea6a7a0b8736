package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/app"
	"github.com/tripsync/tripctx/internal/core/domain"
)

// engineServer serves a real in-memory engine where alice may ask twice a day.
func engineServer(t *testing.T, tiers map[string]domain.Tier) *Server {
	t.Helper()
	ctx := context.Background()

	s := domain.DefaultSettings()
	s.Storage.Backend = domain.StorageMemory
	s.Cache.Backend = domain.StorageMemory
	s.Usage.Backend = domain.StorageMemory
	s.Usage.Limits = map[domain.Tier]int{domain.TierFree: 2, domain.TierPlus: 4}
	s.Usage.Tiers = tiers
	s.Embedding = domain.EmbeddingSettings{Provider: domain.AIProviderLocal, Dimensions: 64}

	a, err := app.Build(ctx, s, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	require.NoError(t, a.Members.Set(ctx, domain.Membership{
		TripID: "trip-1", UserID: "alice", Status: domain.MembershipActive,
	}))

	server, err := NewServer(&Ports{Context: a.Context, Members: a.Members}, Options{Caller: "alice"})
	require.NoError(t, err)
	return server
}

func TestServer_handleTripContext_TierComesFromServer(t *testing.T) {
	ctx := context.Background()
	server := engineServer(t, nil)

	var input TripContextInput
	require.NoError(t, json.Unmarshal(
		[]byte(`{"trip_id":"trip-1","query":"where do we meet?","tier":"unlimited"}`), &input))

	for i := range 2 {
		_, output, err := server.handleTripContext(ctx, nil, input)
		require.NoError(t, err)
		require.Nil(t, output.Error, "call %d", i+1)
		assert.Equal(t, 1-i, output.Remaining)
	}

	res, output, err := server.handleTripContext(ctx, nil, input)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	require.NotNil(t, output.Error)
	assert.Equal(t, domain.ErrorKindQuotaExceeded, output.Error.Kind)
}

func TestServer_handleTripContext_AssignedTier(t *testing.T) {
	ctx := context.Background()
	server := engineServer(t, map[string]domain.Tier{"alice": domain.TierPlus})

	for i := range 4 {
		_, output, err := server.handleTripContext(ctx, nil, TripContextInput{
			TripID: "trip-1", Query: "dinner plans?",
		})
		require.NoError(t, err)
		require.Nil(t, output.Error, "call %d", i+1)
		assert.Equal(t, 3-i, output.Remaining)
	}

	_, output, err := server.handleTripContext(ctx, nil, TripContextInput{TripID: "trip-1", Query: "and now?"})
	require.NoError(t, err)
	require.NotNil(t, output.Error)
	assert.Equal(t, domain.ErrorKindQuotaExceeded, output.Error.Kind)
}
