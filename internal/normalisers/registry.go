package normalisers

import (
	"strings"
	"sync"

	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/normalisers/eml"
	"github.com/tripsync/tripctx/internal/normalisers/html"
	"github.com/tripsync/tripctx/internal/normalisers/ics"
	"github.com/tripsync/tripctx/internal/normalisers/markdown"
	"github.com/tripsync/tripctx/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry selects a normaliser by MIME type. When several normalisers
// claim a type, the highest priority wins; ties keep the first registered.
type Registry struct {
	mu     sync.RWMutex
	byMIME map[string]driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byMIME: make(map[string]driven.Normaliser)}
}

// NewDefaultRegistry creates a registry with all built-in normalisers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(eml.New())
	r.Register(ics.New())
	return r
}

// Register adds n for each MIME type it supports.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range n.SupportedMIMETypes() {
		mt = strings.ToLower(mt)
		if cur, ok := r.byMIME[mt]; ok && cur.Priority() >= n.Priority() {
			continue
		}
		r.byMIME[mt] = n
	}
}

// Get returns the normaliser for mimeType, or nil if none is registered.
// Parameters such as "; charset=utf-8" are ignored.
func (r *Registry) Get(mimeType string) driven.Normaliser {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byMIME[mimeType]
}
