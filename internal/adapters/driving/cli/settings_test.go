package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/core/domain"
)

func useTempConfig(t *testing.T) string {
	t.Helper()
	configPath = filepath.Join(t.TempDir(), "config.toml")
	t.Cleanup(func() { configPath = "" })
	return configPath
}

func TestSettingsCmd_SkipsEngine(t *testing.T) {
	assert.False(t, needsEngine(settingsCmd))
	assert.False(t, needsEngine(settingsSetCmd))
	assert.False(t, needsEngine(settingsShowCmd))
}

func TestSettingsShow_Defaults(t *testing.T) {
	useTempConfig(t)
	engine = nil

	out, _, err := execute("settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[Embedding]")
	assert.Contains(t, out, "Feature hashing (built-in)")
	assert.Contains(t, out, "Processors: default")
	assert.Contains(t, out, "free=10, plus=50, pro=200")
	assert.Contains(t, out, "Configuration is valid.")
	assert.Nil(t, engine)
}

func TestSettingsShow_MasksAPIKey(t *testing.T) {
	useTempConfig(t)

	_, _, err := execute("settings", "set", "embedding.provider", "openai")
	require.NoError(t, err)
	_, _, err = execute("settings", "set", "embedding.api_key", "sk-abcdefghijklmnop")
	require.NoError(t, err)

	out, _, err := execute("settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "API Key: sk-a...mnop")
	assert.NotContains(t, out, "sk-abcdefghijklmnop")

	out, _, err = execute("settings", "get", "embedding.api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-a...mnop\n", out)
}

func TestSettingsSet_ParsesValues(t *testing.T) {
	path := useTempConfig(t)

	_, _, err := execute("settings", "set", "retrieval.default_k", "8")
	require.NoError(t, err)
	_, _, err = execute("settings", "set", "ingestion.processors", `["chunker", "tokencount"]`)
	require.NoError(t, err)
	_, _, err = execute("settings", "set", "usage.timezone", "Europe/Lisbon")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "default_k = 8")
	assert.Contains(t, string(raw), "Europe/Lisbon")

	out, _, err := execute("settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Default k: 8")
	assert.Contains(t, out, "Processors: chunker, tokencount")
	assert.Contains(t, out, "Timezone: Europe/Lisbon")
}

func TestSettingsSet_RejectsInvalid(t *testing.T) {
	useTempConfig(t)

	_, _, err := execute("settings", "set", "retrieval.default_k", "8")
	require.NoError(t, err)

	_, _, err = execute("settings", "set", "ingestion.chunk_size", "0")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = execute("settings", "get", "ingestion.chunk_size")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = execute("settings", "set", "retrieval.default_k", "'many'")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	out, _, err := execute("settings", "get", "retrieval.default_k")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)
}

func TestSettingsSet_TierAssignment(t *testing.T) {
	useTempConfig(t)

	_, _, err := execute("settings", "set", "usage.tiers.alice", "pro")
	require.NoError(t, err)
	_, _, err = execute("settings", "set", "retrieval.candidate_limit", "250")
	require.NoError(t, err)

	_, _, err = execute("settings", "set", "usage.tiers.bob", "gold")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	out, _, err := execute("settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Assigned tiers: alice=pro\n")
	assert.Contains(t, out, "Candidate limit: 250")
}

func TestSettingsUnset(t *testing.T) {
	useTempConfig(t)

	_, _, err := execute("settings", "set", "cache.ttl", "30s")
	require.NoError(t, err)
	out, _, err := execute("settings", "unset", "cache.ttl")
	require.NoError(t, err)
	assert.Contains(t, out, "cache.ttl removed")

	_, _, err = execute("settings", "get", "cache.ttl")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, int64(8), parseValue("8"))
	assert.Equal(t, 0.5, parseValue("0.5"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, []any{"a", "b"}, parseValue(`["a", "b"]`))
	assert.Equal(t, "Europe/Lisbon", parseValue("Europe/Lisbon"))
	assert.Equal(t, "30s", parseValue("30s"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask("short"))
	assert.Equal(t, "abcd...mnop", mask("abcdefghijklmnop"))
}
