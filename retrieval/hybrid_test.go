package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIndex struct {
	vectorNodes []Node
	vectorErr   error
	keywordNodes []Node
	keywordErr  error

	lastFilters []MetadataFilter
	vectorTopK  int
	keywordTopK int
}

func (s *stubIndex) VectorSearch(ctx context.Context, query string, topK int, filters []MetadataFilter) ([]Node, error) {
	s.vectorTopK = topK
	s.lastFilters = filters
	return s.vectorNodes, s.vectorErr
}

func (s *stubIndex) KeywordSearch(ctx context.Context, query string, topK int) ([]Node, error) {
	s.keywordTopK = topK
	return s.keywordNodes, s.keywordErr
}

type stubReranker struct {
	nodes []Node
	err   error
}

func (s *stubReranker) Rerank(ctx context.Context, query string, nodes []Node, topN int) ([]Node, error) {
	return s.nodes, s.err
}

func TestRetrieveVectorOnlyFusion(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.5},
			{ID: "c", Score: 0.1},
		},
	}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{})
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	// Min-max normalized then weighted 0.6; the keyword arm contributes 0.
	assert.InDelta(t, 0.6, nodes[0].Score, 1e-9)
	assert.InDelta(t, 0.3, nodes[1].Score, 1e-9)
	assert.InDelta(t, 0.0, nodes[2].Score, 1e-9)
	assert.Equal(t, "a", nodes[0].ID)
}

func TestRetrieveSingleCandidateNormalizesToOne(t *testing.T) {
	idx := &stubIndex{vectorNodes: []Node{{ID: "only", Score: 0.42}}}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.InDelta(t, 0.6, nodes[0].Score, 1e-9)
}

func TestRetrieveEqualScoresNormalizeEqually(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{
			{ID: "a", Score: 0.7},
			{ID: "b", Score: 0.7},
		},
	}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.InDelta(t, nodes[0].Score, nodes[1].Score, 1e-9)
	assert.InDelta(t, 0.6, nodes[0].Score, 1e-9)
}

func TestRetrieveBlendsBothArms(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{
			{ID: "a", Score: 1.0},
			{ID: "b", Score: 0.0},
		},
		keywordNodes: []Node{
			{ID: "b", Score: 3.0},
			{ID: "a", Score: 1.0},
		},
	}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{})
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	// a: 0.6*1.0 + 0.4*0.0 = 0.6; b: 0.6*0.0 + 0.4*1.0 = 0.4
	assert.Equal(t, "a", nodes[0].ID)
	assert.InDelta(t, 0.6, nodes[0].Score, 1e-9)
	assert.Equal(t, "b", nodes[1].ID)
	assert.InDelta(t, 0.4, nodes[1].Score, 1e-9)
}

func TestRetrieveKeywordFailureFallsBackToVector(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{{ID: "a", Score: 0.8}},
		keywordErr:  errors.New("ts query failed"),
	}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "a", nodes[0].ID)
}

func TestRetrieveVectorFailurePropagates(t *testing.T) {
	idx := &stubIndex{vectorErr: errors.New("embed failed")}
	r := NewHybridRetriever(DefaultConfig(), nil)

	_, err := r.Retrieve(context.Background(), idx, "query", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector retrieval failed")
}

func TestRetrieveFiltersKeywordArm(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{{ID: "a", Score: 0.9, Metadata: map[string]string{"case_id": "1"}}},
		keywordNodes: []Node{
			{ID: "b", Score: 2.0, Metadata: map[string]string{"case_id": "2"}},
			{ID: "c", Score: 1.0, Metadata: map[string]string{"case_id": "1"}},
		},
	}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{
		Filters: []MetadataFilter{{Key: "case_id", Value: "1"}},
	})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	for _, n := range nodes {
		assert.Equal(t, "1", n.Metadata["case_id"])
	}
}

func TestRetrieveEmptyArmsReturnsEmpty(t *testing.T) {
	idx := &stubIndex{}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestRetrieveLimitOverridesTopKAndTruncates(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.5},
			{ID: "c", Score: 0.1},
		},
	}
	r := NewHybridRetriever(DefaultConfig(), nil)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, idx.vectorTopK)
	assert.Equal(t, 2, idx.keywordTopK)
	require.Len(t, nodes, 2)
	assert.Equal(t, "a", nodes[0].ID)
}

func TestRetrieveRerankPath(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.5},
		},
	}
	rr := &stubReranker{nodes: []Node{{ID: "b", Score: 1.0}}}
	r := NewHybridRetriever(DefaultConfig(), rr)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{UseRerank: true})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "b", nodes[0].ID)
}

func TestRetrieveRerankFailureFallsBackToFusion(t *testing.T) {
	idx := &stubIndex{
		vectorNodes: []Node{
			{ID: "a", Score: 0.9},
			{ID: "b", Score: 0.5},
		},
	}
	rr := &stubReranker{err: errors.New("model unavailable")}
	r := NewHybridRetriever(DefaultConfig(), rr)

	nodes, err := r.Retrieve(context.Background(), idx, "query", Options{UseRerank: true})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "a", nodes[0].ID)
	assert.InDelta(t, 0.6, nodes[0].Score, 1e-9)
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("TOP_K", "7")
	t.Setenv("BM25_TOP_K", "3")
	t.Setenv("HYBRID_VECTOR_WEIGHT", "0.7")
	t.Setenv("HYBRID_BM25_WEIGHT", "0.3")
	t.Setenv("HYBRID_USE_RERANK", "true")

	cfg := ConfigFromEnv()
	assert.Equal(t, 7, cfg.VectorTopK)
	assert.Equal(t, 3, cfg.BM25TopK)
	assert.InDelta(t, 0.7, cfg.VectorWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.BM25Weight, 1e-9)
	assert.True(t, cfg.UseRerank)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("TOP_K", "")
	t.Setenv("HYBRID_USE_RERANK", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestMergeNodesVectorEntryWins(t *testing.T) {
	merged := mergeNodes(
		[]Node{{ID: "a", Text: "vector text", Score: 0.9}},
		[]Node{{ID: "a", Text: "keyword text", Score: 2.0}, {ID: "b", Score: 1.0}},
	)
	require.Len(t, merged, 2)
	assert.Equal(t, "vector text", merged[0].Text)
	assert.Equal(t, "b", merged[1].ID)
}
