package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripsync/tripctx/internal/core/domain"
)

func TestProcess(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "a", Text: "Ferry leaves at 09:30."},
		{ID: "b", Text: "Dinner at Sora"},
		{ID: "c", Text: "ferry leaves at   09:30"},
		{ID: "d", Text: "> Ferry leaves at 09:30!"},
		{ID: "e", Text: "Ferry leaves at 09:45"},
	}

	out, err := New().Process(context.Background(), &domain.Document{ID: "doc"}, chunks)
	require.NoError(t, err)

	ids := make([]string, len(out))
	for i, c := range out {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{"a", "b", "e"}, ids)
	assert.Equal(t, "dedupe", New().Name())
}

func TestProcess_Empty(t *testing.T) {
	out, err := New().Process(context.Background(), &domain.Document{}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "gate b7 at 09 30", fingerprint("  Gate B7, at 09:30! "))
	assert.Equal(t, "", fingerprint("--- ..."))
}
