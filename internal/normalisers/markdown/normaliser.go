// Package markdown renders Markdown trip notes as plain text. YAML front
// matter contributes the title and a few "key: value" lines; code blocks
// keep their content because travellers paste booking references into them.
package markdown

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/normalisers/filename"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise strips Markdown syntax. The title comes from front matter, then
// the first level-one heading, then the file name.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	src := strings.ReplaceAll(string(raw.Content), "\r\n", "\n")
	meta, src := splitFrontMatter(src)

	var title string
	if t, ok := meta["title"].(string); ok {
		title = strings.TrimSpace(t)
	}

	doc := render(src)
	if title == "" {
		title = doc.heading
	}
	if title == "" {
		title = filename.Title(raw.URI)
	}

	text := doc.text
	if header := metaLines(meta); header != "" {
		text = strings.TrimSpace(header + "\n\n" + text)
	}
	return &driven.NormaliseResult{Title: title, Text: text}, nil
}

// splitFrontMatter separates a leading "---" YAML block. Blocks that are
// not a YAML mapping are left in the body.
func splitFrontMatter(src string) (map[string]any, string) {
	if !strings.HasPrefix(src, "---\n") {
		return nil, src
	}
	end := strings.Index(src[4:], "\n---")
	if end < 0 {
		return nil, src
	}
	block := src[4 : 4+end]
	rest := strings.TrimPrefix(src[4+end+4:], "\n")

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil || meta == nil {
		return nil, src
	}
	return meta, rest
}

// metaLines renders scalar front matter fields other than title, sorted by key.
func metaLines(meta map[string]any) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if k != "title" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		switch v := meta[k].(type) {
		case map[string]any, nil:
			continue
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			lines = append(lines, k+": "+strings.Join(parts, ", "))
		default:
			lines = append(lines, fmt.Sprintf("%s: %v", k, v))
		}
	}
	return strings.Join(lines, "\n")
}

type rendered struct {
	heading string
	text    string
}

var (
	atxHeading  = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	setextLine  = regexp.MustCompile(`^(=+|-+)\s*$`)
	ruleLine    = regexp.MustCompile(`^([-*_])(\s*([-*_])){2,}\s*$`)
	listMarker  = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s+`)
	taskBox     = regexp.MustCompile(`^\[( |x|X)\]\s+`)
	tableRule   = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
	image       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	link        = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	strong      = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	emphasis    = regexp.MustCompile(`(^|[\s(])[*_](\S(?:.*?\S)?)[*_]([\s).,;:!?]|$)`)
	inlineCode  = regexp.MustCompile("`([^`]+)`")
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)
)

func render(src string) rendered {
	src = htmlComment.ReplaceAllString(src, "")
	lines := strings.Split(src, "\n")

	var (
		out     []string
		heading string
		fenced  bool
	)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			continue
		}
		if fenced {
			out = append(out, line)
			continue
		}

		if m := atxHeading.FindStringSubmatch(trimmed); m != nil {
			text := inline(m[2])
			if heading == "" && len(m[1]) == 1 {
				heading = text
			}
			out = append(out, text)
			continue
		}
		if setextLine.MatchString(trimmed) && len(out) > 0 && out[len(out)-1] != "" &&
			i > 0 && strings.TrimSpace(lines[i-1]) != "" {
			if heading == "" && trimmed[0] == '=' {
				heading = out[len(out)-1]
			}
			continue
		}
		if ruleLine.MatchString(trimmed) || tableRule.MatchString(trimmed) && strings.Contains(trimmed, "|") {
			continue
		}

		trimmed = strings.TrimLeft(trimmed, "> ")
		trimmed = listMarker.ReplaceAllString(trimmed, "")
		if m := taskBox.FindStringSubmatch(trimmed); m != nil {
			trimmed = taskBox.ReplaceAllString(trimmed, "")
			if m[1] != " " {
				trimmed += " (done)"
			}
		}
		if strings.HasPrefix(trimmed, "|") {
			trimmed = tableRow(trimmed)
		}
		out = append(out, inline(trimmed))
	}

	return rendered{heading: heading, text: collapseBlankLines(out)}
}

func tableRow(line string) string {
	cells := strings.Split(strings.Trim(line, "|"), "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return strings.Join(cells, " | ")
}

func inline(s string) string {
	s = image.ReplaceAllString(s, "")
	s = link.ReplaceAllString(s, "$1")
	s = inlineCode.ReplaceAllString(s, "$1")
	s = strong.ReplaceAllString(s, "$2")
	s = emphasis.ReplaceAllString(s, "$1$2$3")
	return strings.TrimSpace(s)
}

func collapseBlankLines(lines []string) string {
	var b strings.Builder
	blank := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			if !blank {
				b.WriteByte('\n')
			}
			blank = true
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l)
		blank = false
	}
	return strings.TrimSpace(b.String())
}
