// Package dedupe drops repeated chunks. Forwarded email chains and pasted
// itineraries often carry the same paragraph several times, and duplicates
// would crowd other chunks out of the top-k.
package dedupe

import (
	"context"
	"strings"
	"unicode"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// Processor keeps the first chunk of each distinct text. Texts are compared
// case-insensitively with punctuation and whitespace runs ignored.
type Processor struct{}

// New creates a dedupe processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "dedupe"
}

// Process returns chunks without repeats, in their original order.
func (p *Processor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	seen := make(map[string]struct{}, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		key := fingerprint(c.Text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func fingerprint(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		default:
			space = true
		}
	}
	return b.String()
}
