// Package plaintext is the fallback normaliser for text-like uploads. CSV
// exports, such as an expense sheet, are rendered one "cell | cell" row per
// line so that rows survive chunking intact.
package plaintext

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/normalisers/filename"
)

var _ driven.Normaliser = (*Normaliser)(nil)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/yaml",
		"application/json",
		"application/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5
}

// Normalise cleans up line endings and whitespace. The title comes from the
// file name.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := bytes.TrimPrefix(raw.Content, bom)

	var text string
	switch mediaType(raw.MIMEType) {
	case "text/csv":
		text = delimited(content, ',')
	case "text/tab-separated-values":
		text = delimited(content, '\t')
	default:
		text = clean(string(content))
	}

	return &driven.NormaliseResult{Title: filename.Title(raw.URI), Text: text}, nil
}

func mediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// delimited renders rows as "a | b | c". Malformed input is kept as text.
func delimited(content []byte, sep rune) string {
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return clean(string(content))
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, strings.Join(rec, " | "))
	}
	return clean(strings.Join(lines, "\n"))
}

// clean normalises line endings, trims trailing blanks and keeps at most one
// empty line between paragraphs.
func clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
