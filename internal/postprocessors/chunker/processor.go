// Package chunker provides a bounded-length text chunking processor.
package chunker

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/tripsync/tripctx/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 120

// Processor splits document text into overlapping chunks of at most
// chunkSize characters. Boundaries snap to whitespace so words are not
// split; a single word longer than chunkSize is the only thing ever cut.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits the document text into chunks.
// Input chunks are ignored; this processor creates new chunks from document text.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	runes := []rune(doc.RawText)
	n := len(runes)

	start := skipSpace(runes, 0)
	if start >= n {
		// Empty text produces no chunks
		return nil, nil
	}

	chunks := make([]domain.Chunk, 0, n/(p.chunkSize-p.overlap)+1)
	position := 0

	for start < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + p.chunkSize
		if end >= n {
			end = n
		} else if cut := lastSpace(runes, start, end); cut > start {
			end = cut
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			chunks = append(chunks, domain.Chunk{
				ID:         uuid.New().String(),
				DocumentID: doc.ID,
				Position:   position,
				Text:       text,
			})
			position++
		}

		if end >= n {
			break
		}
		start = skipSpace(runes, p.nextStart(runes, start, end))
	}

	return chunks, nil
}

// nextStart steps back overlap characters from end and then forward to the
// start of a word, so the overlap never begins mid-word.
func (p *Processor) nextStart(runes []rune, start, end int) int {
	next := end - p.overlap
	if next <= start {
		return end
	}
	for next < end && !unicode.IsSpace(runes[next-1]) {
		next++
	}
	return next
}

// lastSpace returns the index of the last whitespace rune in (start, end],
// or -1. Index end is included so a chunk ending exactly before a space keeps its last word.
func lastSpace(runes []rune, start, end int) int {
	if end < len(runes) && unicode.IsSpace(runes[end]) {
		return end
	}
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}
