package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lawassist-backend/llm"
	"lawassist-backend/retrieval"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Corpus names one pgvector-backed chunk table. The four corpora share one
// schema so a single repository serves them all.
type Corpus string

const (
	CorpusStatutes      Corpus = "statute_chunks"
	CorpusCaseSummaries Corpus = "case_summary_chunks"
	CorpusJudgments     Corpus = "judgment_chunks"
	CorpusUploadedCases Corpus = "uploaded_case_sections"
)

// ChunkRepository stores and searches embedded text chunks. The dense arm
// uses pgvector cosine distance; the sparse arm uses Postgres full-text
// ranking over the same rows, so both arms share one document store.
type ChunkRepository struct {
	db       *pgxpool.Pool
	embedder llm.Embedder
}

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(db *pgxpool.Pool, embedder llm.Embedder) *ChunkRepository {
	return &ChunkRepository{db: db, embedder: embedder}
}

// Index returns a retrieval.Index view over one corpus.
func (r *ChunkRepository) Index(corpus Corpus) retrieval.Index {
	return &corpusIndex{repo: r, corpus: corpus}
}

// formatVector formats an embedding vector as a pgvector literal.
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Insert adds one embedded chunk to a corpus.
func (r *ChunkRepository) Insert(ctx context.Context, corpus Corpus, text string, metadata map[string]string, embedding []float64) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (chunk_text, metadata, embedding)
		VALUES ($1, $2, $3::vector)`, corpus)
	_, err = r.db.Exec(ctx, query, text, metaJSON, formatVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to insert chunk into %s: %w", corpus, err)
	}
	return nil
}

// UpsertUploadedSection replaces the embedded text for one (case, section)
// pair in the uploaded-case corpus, so a patched topic section overwrites
// its previous embedding.
func (r *ChunkRepository) UpsertUploadedSection(ctx context.Context, caseID uuid.UUID, source, section, text string) error {
	embedding, err := r.embedder.Embed(ctx, text, llm.TaskRetrievalDocument)
	if err != nil {
		return fmt.Errorf("failed to embed section %q: %w", section, err)
	}

	deleteQuery := fmt.Sprintf(`
		DELETE FROM %s
		WHERE metadata->>'case_id' = $1 AND metadata->>'summary_section' = $2`, CorpusUploadedCases)
	_, err = r.db.Exec(ctx, deleteQuery, caseID.String(), section)
	if err != nil {
		return fmt.Errorf("failed to clear existing section: %w", err)
	}

	metadata := map[string]string{
		"source_type":     "uploaded_case",
		"case_id":         caseID.String(),
		"source":          source,
		"summary_section": section,
	}
	return r.Insert(ctx, CorpusUploadedCases, text, metadata, embedding)
}

// DeleteUploadedCase removes every embedded section for a case.
func (r *ChunkRepository) DeleteUploadedCase(ctx context.Context, caseID uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE metadata->>'case_id' = $1`, CorpusUploadedCases)
	_, err := r.db.Exec(ctx, query, caseID.String())
	if err != nil {
		return fmt.Errorf("failed to delete uploaded case sections: %w", err)
	}
	return nil
}

// HasUploadedCase reports whether any section of a case is embedded.
func (r *ChunkRepository) HasUploadedCase(ctx context.Context, caseID uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE metadata->>'case_id' = $1)`, CorpusUploadedCases)
	var exists bool
	if err := r.db.QueryRow(ctx, query, caseID.String()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check uploaded case: %w", err)
	}
	return exists, nil
}

// corpusIndex adapts one chunk table to retrieval.Index.
type corpusIndex struct {
	repo   *ChunkRepository
	corpus Corpus
}

// VectorSearch embeds the query and runs cosine-distance search, applying
// exact-match metadata filters natively in SQL.
func (c *corpusIndex) VectorSearch(ctx context.Context, query string, topK int, filters []retrieval.MetadataFilter) ([]retrieval.Node, error) {
	embedding, err := c.repo.embedder.Embed(ctx, query, llm.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	args := []interface{}{formatVector(embedding)}
	var where []string
	for _, f := range filters {
		args = append(args, f.Key, f.Value)
		where = append(where, fmt.Sprintf("metadata->>$%d = $%d", len(args)-1, len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, topK)

	sql := fmt.Sprintf(`
		SELECT id, chunk_text, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT $%d`, c.corpus, whereClause, len(args))

	return c.repo.queryNodes(ctx, sql, args...)
}

// KeywordSearch ranks chunks by full-text relevance. A query with no
// indexable terms or an empty corpus returns no rows, which the retriever
// treats as a silent skip.
func (c *corpusIndex) KeywordSearch(ctx context.Context, query string, topK int) ([]retrieval.Node, error) {
	sql := fmt.Sprintf(`
		SELECT id, chunk_text, metadata,
			ts_rank_cd(to_tsvector('english', chunk_text), websearch_to_tsquery('english', $1)) AS score
		FROM %s
		WHERE to_tsvector('english', chunk_text) @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $2`, c.corpus)

	return c.repo.queryNodes(ctx, sql, query, topK)
}

func (r *ChunkRepository) queryNodes(ctx context.Context, sql string, args ...interface{}) ([]retrieval.Node, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var nodes []retrieval.Node
	for rows.Next() {
		var (
			id       uuid.UUID
			text     string
			metaJSON []byte
			score    float64
		)
		if err := rows.Scan(&id, &text, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		metadata := map[string]string{}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &metadata); err != nil {
				return nil, fmt.Errorf("failed to decode chunk metadata: %w", err)
			}
		}
		nodes = append(nodes, retrieval.Node{
			ID:       id.String(),
			Text:     text,
			Metadata: metadata,
			Score:    score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return nodes, nil
}
