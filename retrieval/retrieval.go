// Package retrieval implements hybrid (dense + keyword) retrieval with
// weighted score fusion and optional LLM re-ranking over a pluggable index.
package retrieval

import (
	"context"
	"os"
	"strconv"
)

// Node is one retrieved chunk with its source metadata and fused score.
// Nodes live for a single request and are never persisted.
type Node struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64
}

// Meta returns a metadata value or the fallback when absent/empty.
func (n Node) Meta(key, fallback string) string {
	if v, ok := n.Metadata[key]; ok && v != "" {
		return v
	}
	return fallback
}

// MetadataFilter restricts retrieval to nodes whose metadata key equals
// the given value exactly.
type MetadataFilter struct {
	Key   string
	Value string
}

// Index is one logical corpus exposing both retrieval arms. The keyword
// arm cannot apply metadata filters natively; the retriever post-filters
// its results so both arms respect the same constraint.
type Index interface {
	VectorSearch(ctx context.Context, query string, topK int, filters []MetadataFilter) ([]Node, error)
	KeywordSearch(ctx context.Context, query string, topK int) ([]Node, error)
}

// Reranker replaces fused scores with model-judged relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, nodes []Node, topN int) ([]Node, error)
}

// Config holds retrieval tuning. Weights are applied as-is; the sum is
// not forced to 1. UseRerank is the global switch: when off, no reranker
// is wired and per-call rerank requests degrade to weighted fusion.
type Config struct {
	VectorTopK   int
	BM25TopK     int
	VectorWeight float64
	BM25Weight   float64
	RerankTopN   int
	UseRerank    bool
}

// DefaultConfig returns the standard retrieval tuning.
func DefaultConfig() Config {
	return Config{
		VectorTopK:   5,
		BM25TopK:     5,
		VectorWeight: 0.6,
		BM25Weight:   0.4,
		RerankTopN:   8,
		UseRerank:    false,
	}
}

// ConfigFromEnv overlays environment overrides on the default tuning.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v, err := strconv.Atoi(os.Getenv("TOP_K")); err == nil && v > 0 {
		cfg.VectorTopK = v
		cfg.BM25TopK = v
	}
	if v, err := strconv.Atoi(os.Getenv("BM25_TOP_K")); err == nil && v >= 0 {
		cfg.BM25TopK = v
	}
	if v, err := strconv.Atoi(os.Getenv("RERANK_TOP_N")); err == nil && v > 0 {
		cfg.RerankTopN = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("HYBRID_VECTOR_WEIGHT"), 64); err == nil {
		cfg.VectorWeight = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("HYBRID_BM25_WEIGHT"), 64); err == nil {
		cfg.BM25Weight = v
	}
	cfg.UseRerank = os.Getenv("HYBRID_USE_RERANK") == "true"
	return cfg
}

// Options adjust a single Retrieve call.
type Options struct {
	Limit     int
	Filters   []MetadataFilter
	UseRerank bool
}
