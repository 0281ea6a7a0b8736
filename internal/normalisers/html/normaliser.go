package html

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tripsync/tripctx/internal/core/domain"
	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/normalisers/filename"
)

var _ driven.Normaliser = (*Normaliser)(nil)

// DefaultArticleThreshold is the rendered length above which a page is
// treated as an article and handed to readability.
const DefaultArticleThreshold = 4000

// Normaliser handles HTML pages.
type Normaliser struct {
	articleThreshold int
}

// New creates an HTML normaliser with the default article threshold.
func New() *Normaliser {
	return &Normaliser{articleThreshold: DefaultArticleThreshold}
}

// NewWithThreshold creates an HTML normaliser that runs readability on pages
// whose rendered text exceeds threshold characters. Zero disables readability.
func NewWithThreshold(threshold int) *Normaliser {
	return &Normaliser{articleThreshold: threshold}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise renders the page to text and picks a title.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	root, err := html.Parse(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing html: %v", domain.ErrInvalidInput, err)
	}

	title := pageTitle(root)
	text := Render(root)

	if n.articleThreshold > 0 && len(text) > n.articleThreshold {
		if article, ok := extractArticle(raw); ok {
			text = article.text
			if title == "" {
				title = article.title
			}
		}
	}
	if title == "" {
		title = filename.Title(raw.URI)
	}

	return &driven.NormaliseResult{Title: title, Text: text}, nil
}

type article struct {
	title string
	text  string
}

func extractArticle(raw *domain.RawDocument) (article, bool) {
	var pageURL *url.URL
	if u, err := url.Parse(raw.URI); err == nil && u.Scheme != "" {
		pageURL = u
	}
	a, err := readability.FromReader(bytes.NewReader(raw.Content), pageURL)
	if err != nil {
		return article{}, false
	}
	text := tidy(a.TextContent)
	if text == "" {
		return article{}, false
	}
	return article{title: strings.TrimSpace(a.Title), text: text}, true
}

// RenderString parses s and renders it with Render. Unparseable input
// renders as the empty string.
func RenderString(s string) string {
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return ""
	}
	return Render(root)
}

// Render walks a parsed document and returns its visible text. Block
// elements start new lines and table cells in a row are joined with " | ".
func Render(root *html.Node) string {
	var b strings.Builder
	render(&b, root)
	return tidy(b.String())
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if inTable(n.Parent) && strings.TrimSpace(n.Data) == "" {
			return
		}
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skipped(n.DataAtom) {
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) && c.PrevSibling != nil {
			if prevCell(c) {
				b.WriteString(" | ")
			}
		}
		render(b, c)
	}

	if n.Type == html.ElementNode && breaksLine(n.DataAtom) {
		b.WriteByte('\n')
	}
}

// prevCell reports whether an earlier sibling of c is a table cell.
func prevCell(c *html.Node) bool {
	for p := c.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode && (p.DataAtom == atom.Td || p.DataAtom == atom.Th) {
			return true
		}
	}
	return false
}

func inTable(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Table, atom.Thead, atom.Tbody, atom.Tfoot, atom.Tr:
		return true
	}
	return false
}

func skipped(a atom.Atom) bool {
	switch a {
	case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Svg, atom.Template, atom.Iframe:
		return true
	}
	return false
}

func breaksLine(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Hr, atom.Li, atom.Tr, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Section, atom.Article, atom.Header, atom.Footer,
		atom.Dt, atom.Dd, atom.Address, atom.Nav, atom.Main, atom.Aside,
		atom.Ul, atom.Ol, atom.Form, atom.Figure, atom.Figcaption:
		return true
	}
	return false
}

func pageTitle(root *html.Node) string {
	var walk func(*html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			return strings.Join(strings.Fields(b.String()), " ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := walk(c); t != "" {
				return t
			}
		}
		return ""
	}
	return walk(root)
}

// tidy collapses runs of blanks inside lines and drops empty lines.
func tidy(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || line == "|" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
