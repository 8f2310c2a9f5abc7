package llm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"lawassist-backend/retrieval"
)

// Reranker scores candidate nodes against a query with one completion call,
// implementing retrieval.Reranker. Failures propagate so the retriever can
// fall back to weighted fusion.
type Reranker struct {
	completer Completer
}

// NewReranker creates an LLM-based reranker.
func NewReranker(completer Completer) *Reranker {
	return &Reranker{completer: completer}
}

// Rerank asks the model to rate each document's relevance from 0 to 10 and
// returns the top N by the parsed scores (scaled to 0..1).
func (r *Reranker) Rerank(ctx context.Context, query string, nodes []retrieval.Node, topN int) ([]retrieval.Node, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(nodes) {
		topN = len(nodes)
	}

	var builder strings.Builder
	builder.WriteString("Rate the relevance of each document to the question on a scale of 0 to 10.\n")
	builder.WriteString("Respond with one line per document, formatted exactly as \"<number>: <score>\".\n\n")
	builder.WriteString("Question: " + query + "\n\n")
	for i, n := range nodes {
		text := n.Text
		if len(text) > 600 {
			text = text[:600]
		}
		builder.WriteString(fmt.Sprintf("Document %d:\n%s\n\n", i+1, text))
	}

	response, err := r.completer.Complete(ctx, builder.String())
	if err != nil {
		return nil, fmt.Errorf("rerank completion failed: %w", err)
	}

	scores, err := parseScores(response, len(nodes))
	if err != nil {
		return nil, err
	}

	reranked := make([]retrieval.Node, len(nodes))
	copy(reranked, nodes)
	for i := range reranked {
		reranked[i].Score = scores[i] / 10.0
	}
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked[:topN], nil
}

// parseScores extracts "index: score" lines. Unlisted documents score 0.
func parseScores(response string, count int) ([]float64, error) {
	scores := make([]float64, count)
	found := false
	for _, line := range strings.Split(response, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(parts) != 2 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(parts[0], "Document ")))
		if err != nil || idx < 1 || idx > count {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > 10 {
			score = 10
		}
		scores[idx-1] = score
		found = true
	}
	if !found {
		return nil, fmt.Errorf("rerank response had no parseable scores")
	}
	return scores, nil
}
