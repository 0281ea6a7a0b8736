package postprocessors

import (
	"fmt"
	"sort"

	"github.com/tripsync/tripctx/internal/core/ports/driven"
)

// BuilderFunc creates a processor from its section of the pipeline config.
// cfg is nil when the processor has no settings.
type BuilderFunc func(cfg map[string]any) (driven.PostProcessor, error)

// Registry maps the names accepted by ingestion.processors to builders.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuilderFunc)}
}

// Register binds name to builder, replacing any earlier binding.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates the processor registered as name.
func (r *Registry) Build(name string, cfg map[string]any) (driven.PostProcessor, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown processor %q (known: %v)", name, r.Names())
	}
	proc, err := builder(cfg)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", name, err)
	}
	return proc, nil
}

// BuildPipeline builds names in order. cfgs is keyed by processor name.
// A processor may appear only once.
func (r *Registry) BuildPipeline(names []string, cfgs map[string]map[string]any) (*Pipeline, error) {
	seen := make(map[string]bool, len(names))
	pipeline := NewPipeline()
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("processor %q listed twice", name)
		}
		seen[name] = true

		proc, err := r.Build(name, cfgs[name])
		if err != nil {
			return nil, err
		}
		pipeline.Add(proc)
	}
	return pipeline, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
