package postprocessors

import (
	"fmt"

	"github.com/tripsync/tripctx/internal/core/ports/driven"
	"github.com/tripsync/tripctx/internal/postprocessors/chunker"
	"github.com/tripsync/tripctx/internal/postprocessors/dedupe"
	"github.com/tripsync/tripctx/internal/postprocessors/tokencount"
)

// DefaultProcessors is the ingestion pipeline used when none is configured.
var DefaultProcessors = []string{"chunker", "dedupe", "tokencount"}

// RegisterDefaults registers the built-in processors.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
	r.Register("dedupe", func(map[string]any) (driven.PostProcessor, error) {
		return dedupe.New(), nil
	})
	r.Register("tokencount", func(map[string]any) (driven.PostProcessor, error) {
		return tokencount.New(), nil
	})
}

// NewDefaultPipeline returns the default processors with the given sizes.
// Non-positive sizes fall back to the chunker defaults.
func NewDefaultPipeline(chunkSize, overlap int) *Pipeline {
	p, err := BuildPipeline(DefaultProcessors, chunkSize, overlap)
	if err != nil {
		panic(err) // built-ins are always registered
	}
	return p
}

// BuildPipeline builds the named built-in processors. The chunker must come
// first because it is the only processor that creates chunks.
func BuildPipeline(names []string, chunkSize, overlap int) (*Pipeline, error) {
	if len(names) == 0 {
		names = DefaultProcessors
	}
	if names[0] != "chunker" {
		return nil, fmt.Errorf("pipeline must start with chunker, got %q", names[0])
	}

	r := NewRegistry()
	RegisterDefaults(r)
	return r.BuildPipeline(names, map[string]map[string]any{
		"chunker": {"chunk_size": chunkSize, "overlap": overlap},
	})
}

// buildChunker reads chunk_size and overlap, in characters.
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option
	if size, ok := intValue(cfg, "chunk_size"); ok {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := intValue(cfg, "overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}
	return chunker.New(opts...), nil
}

// intValue accepts the integer shapes TOML and JSON decoders produce.
func intValue(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
