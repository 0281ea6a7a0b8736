package cli

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setVersion(t *testing.T, v string) {
	t.Helper()
	original := version
	version = v
	t.Cleanup(func() {
		version = original
		versionShort = false
	})
}

func TestVersionCmd(t *testing.T) {
	setVersion(t, "1.4.0")

	out, _, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "tripctx version 1.4.0\n")
	assert.Contains(t, out, "MCP server: 0.1.0")
	assert.Contains(t, out, runtime.Version())
}

func TestVersionCmd_Short(t *testing.T) {
	setVersion(t, "dev")

	out, _, err := execute("version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}
