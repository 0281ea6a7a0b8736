package logger

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// capture redirects output to a buffer for the duration of the test.
func capture(t *testing.T, verbose bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verbose)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	assert.False(t, IsVerbose())

	SetVerbose(true)
	assert.True(t, IsVerbose())

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name    string
		log     func(string, ...any)
		verbose bool
		want    string
	}{
		{"debug verbose", Debug, true, "[DEBUG] chunked doc-1 into 3\n"},
		{"debug quiet", Debug, false, ""},
		{"info verbose", Info, true, "[INFO] chunked doc-1 into 3\n"},
		{"info quiet", Info, false, ""},
		{"warn verbose", Warn, true, "[WARN] chunked doc-1 into 3\n"},
		{"warn quiet", Warn, false, ""},
		{"error verbose", Error, true, "[ERROR] chunked doc-1 into 3\n"},
		{"error quiet", Error, false, "[ERROR] chunked doc-1 into 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t, tt.verbose)
			tt.log("chunked %s into %d", "doc-1", 3)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSection(t *testing.T) {
	buf := capture(t, true)
	Section("Aggregate trip-1")
	assert.Equal(t, "\n=== Aggregate trip-1 ===\n", buf.String())

	buf.Reset()
	SetVerbose(false)
	Section("hidden")
	assert.Empty(t, buf.String())
}

func TestTimed(t *testing.T) {
	buf := capture(t, true)

	done := Timed("aggregate")
	done()

	assert.Regexp(t, `^\[DEBUG\] aggregate took \S+\n$`, buf.String())
}

func TestConcurrentAccess(t *testing.T) {
	capture(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetVerbose(i%2 == 0)
			Debug("source %d answered", i)
			IsVerbose()
		}()
	}
	wg.Wait()
}
