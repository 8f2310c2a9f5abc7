package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
)

// HybridRetriever merges dense vector search and sparse keyword search
// against one index, normalizes and blends scores, and optionally reranks.
type HybridRetriever struct {
	cfg      Config
	reranker Reranker
}

// NewHybridRetriever creates a retriever. reranker may be nil, in which
// case weighted fusion always runs.
func NewHybridRetriever(cfg Config, reranker Reranker) *HybridRetriever {
	if cfg.VectorTopK <= 0 {
		cfg.VectorTopK = 5
	}
	if cfg.BM25TopK < 0 {
		cfg.BM25TopK = 0
	}
	return &HybridRetriever{cfg: cfg, reranker: reranker}
}

// Retrieve returns up to opts.Limit nodes ranked by fused relevance. An
// empty result from both arms yields an empty slice, not an error.
func (h *HybridRetriever) Retrieve(ctx context.Context, idx Index, query string, opts Options) ([]Node, error) {
	vectorK := h.cfg.VectorTopK
	bm25K := h.cfg.BM25TopK
	if opts.Limit > 0 {
		vectorK = opts.Limit
		bm25K = opts.Limit
	}

	vectorNodes, err := idx.VectorSearch(ctx, query, vectorK, opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector retrieval failed: %w", err)
	}

	// The keyword arm is best-effort: an empty corpus or a failing arm
	// degrades to vector-only rather than failing the request.
	var bm25Nodes []Node
	if bm25K > 0 {
		bm25Nodes, err = idx.KeywordSearch(ctx, query, bm25K)
		if err != nil {
			log.Printf("Warning: keyword retrieval failed, falling back to vector-only: %v", err)
			bm25Nodes = nil
		}
		if len(opts.Filters) > 0 {
			bm25Nodes = applyManualFilter(bm25Nodes, opts.Filters)
		}
	}

	merged := mergeNodes(vectorNodes, bm25Nodes)
	if len(merged) == 0 {
		return nil, nil
	}

	if opts.UseRerank && h.reranker != nil {
		reranked, err := h.reranker.Rerank(ctx, query, merged, h.cfg.RerankTopN)
		if err != nil {
			log.Printf("Warning: rerank failed, using weighted fusion: %v", err)
		} else {
			merged = reranked
			return truncate(merged, opts.Limit), nil
		}
	}

	fuseScores(merged, vectorNodes, bm25Nodes, h.cfg.VectorWeight, h.cfg.BM25Weight)
	// Stable sort keeps merge insertion order among ties.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return truncate(merged, opts.Limit), nil
}

// mergeNodes deduplicates by node identity; the vector arm's entry wins
// and insertion order is preserved.
func mergeNodes(vectorNodes, bm25Nodes []Node) []Node {
	seen := make(map[string]bool, len(vectorNodes)+len(bm25Nodes))
	merged := make([]Node, 0, len(vectorNodes)+len(bm25Nodes))
	for _, n := range vectorNodes {
		if !seen[n.ID] {
			seen[n.ID] = true
			merged = append(merged, n)
		}
	}
	for _, n := range bm25Nodes {
		if !seen[n.ID] {
			seen[n.ID] = true
			merged = append(merged, n)
		}
	}
	return merged
}

// applyManualFilter drops nodes whose metadata does not exactly match every
// filter, so the keyword arm respects the same constraints as the vector arm.
func applyManualFilter(nodes []Node, filters []MetadataFilter) []Node {
	filtered := nodes[:0:0]
	for _, n := range nodes {
		match := true
		for _, f := range filters {
			if n.Metadata[f.Key] != f.Value {
				match = false
				break
			}
		}
		if match {
			filtered = append(filtered, n)
		}
	}
	return filtered
}

// normalizeScores min-max normalizes over the candidate set. A single
// candidate or a zero-variance set normalizes to 1.0 for all.
func normalizeScores(nodes []Node) map[string]float64 {
	if len(nodes) == 0 {
		return nil
	}
	minS, maxS := nodes[0].Score, nodes[0].Score
	for _, n := range nodes[1:] {
		if n.Score < minS {
			minS = n.Score
		}
		if n.Score > maxS {
			maxS = n.Score
		}
	}
	norm := make(map[string]float64, len(nodes))
	if maxS == minS {
		for _, n := range nodes {
			norm[n.ID] = 1.0
		}
		return norm
	}
	for _, n := range nodes {
		norm[n.ID] = (n.Score - minS) / (maxS - minS)
	}
	return norm
}

// fuseScores sets each merged node's score to the weighted sum of its
// normalized per-arm scores; a node absent from an arm contributes 0 there.
func fuseScores(merged, vectorNodes, bm25Nodes []Node, vectorWeight, bm25Weight float64) {
	vecNorm := normalizeScores(vectorNodes)
	bm25Norm := normalizeScores(bm25Nodes)
	for i := range merged {
		merged[i].Score = vectorWeight*vecNorm[merged[i].ID] + bm25Weight*bm25Norm[merged[i].ID]
	}
}

func truncate(nodes []Node, limit int) []Node {
	if limit > 0 && len(nodes) > limit {
		return nodes[:limit]
	}
	return nodes
}
