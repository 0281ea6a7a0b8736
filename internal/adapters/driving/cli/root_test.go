package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/app"
	"github.com/tripsync/tripctx/internal/core/domain"
)

// setupTestServices injects an in-memory engine where alice is an active
// member of trip-1. Flag variables are reset because cobra keeps them
// between executions.
func setupTestServices(t *testing.T) func() {
	t.Helper()

	s := domain.DefaultSettings()
	s.Storage.Backend = domain.StorageMemory
	s.Cache.Backend = domain.StorageMemory
	s.Usage.Backend = domain.StorageMemory
	s.Usage.Limits = map[domain.Tier]int{domain.TierFree: 2}
	s.Embedding = domain.EmbeddingSettings{Provider: domain.AIProviderLocal, Dimensions: 64}

	a, err := app.Build(context.Background(), s, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, a.Members.Set(context.Background(), domain.Membership{
		TripID: "trip-1", UserID: "alice", Status: domain.MembershipActive,
	}))

	engine, ownsEngine = a, false
	tripID, callerID = "", ""
	queryK, queryTier, queryJSON = 0, "", false
	listStatus, listAll, ingestTitle = "", false, ""
	memberStatus, memberRole = string(domain.MembershipActive), ""

	return func() {
		assert.NoError(t, a.Close())
		engine = nil
	}
}

// execute runs the root command with args and returns stdout and stderr.
func execute(args ...string) (string, string, error) {
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "caller", "trip"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"ingest", "document", "retrieve", "query", "usage", "member", "mcp", "settings", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestNeedsEngine(t *testing.T) {
	assert.False(t, needsEngine(versionCmd))
	assert.False(t, needsEngine(ingestCmd))
	assert.True(t, needsEngine(queryCmd))
	assert.True(t, needsEngine(documentPurgeCmd))
}

func TestRequireCaller(t *testing.T) {
	cleanup := setupTestServices(t)
	defer cleanup()

	_, _, err := requireCaller()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	tripID = "trip-1"
	_, _, err = requireCaller()
	assert.ErrorContains(t, err, "--caller")

	callerID = " alice "
	trip, caller, err := requireCaller()
	require.NoError(t, err)
	assert.Equal(t, "trip-1", trip)
	assert.Equal(t, "alice", caller)
}

func TestSetupEngine_BuildsFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TRIPCTX_STORAGE_BACKEND", "memory")
	t.Setenv("TRIPCTX_USAGE_BACKEND", "memory")
	t.Setenv("TRIPCTX_EMBEDDING_PROVIDER", "local")

	engine = nil
	configPath = dir + "/config.toml"
	defer func() { configPath = "" }()

	_, _, err := execute("member", "set", "bob", "--status", "active", "--trip", "trip-9")
	require.NoError(t, err)
	// The engine is released after the command.
	assert.Nil(t, engine)
}
