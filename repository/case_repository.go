package repository

import (
	"context"
	"errors"
	"fmt"

	"lawassist-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// CaseRepository handles database operations for users, cases, and the
// Q&A audit trail.
type CaseRepository struct {
	db *pgxpool.Pool
}

// NewCaseRepository creates a new case repository.
func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

// GetOrCreateUser resolves an external session identifier to a user row,
// creating it on first sight.
func (r *CaseRepository) GetOrCreateUser(ctx context.Context, externalID string) (*models.User, error) {
	user := &models.User{}
	query := `
		INSERT INTO users (external_id)
		VALUES ($1)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, external_id, created_at`

	err := r.db.QueryRow(ctx, query, externalID).Scan(&user.ID, &user.ExternalID, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}
	return user, nil
}

// GetUserByExternalID retrieves a user without creating one.
func (r *CaseRepository) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, external_id, created_at FROM users WHERE external_id = $1`

	err := r.db.QueryRow(ctx, query, externalID).Scan(&user.ID, &user.ExternalID, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

const caseColumns = `id, user_id, filename, text, case_summary, storage_path, created_at, updated_at`

func scanCase(row pgx.Row) (*models.Case, error) {
	c := &models.Case{}
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Filename,
		&c.Text,
		&c.SummaryJSON,
		&c.StoragePath,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan case: %w", err)
	}
	return c, nil
}

// Create inserts a new case.
func (r *CaseRepository) Create(ctx context.Context, c *models.Case) error {
	query := `
		INSERT INTO cases (user_id, filename, text, case_summary, storage_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, c.UserID, c.Filename, c.Text, c.SummaryJSON, c.StoragePath).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	return nil
}

// GetByID retrieves a case scoped to its owning user.
func (r *CaseRepository) GetByID(ctx context.Context, caseID, userID uuid.UUID) (*models.Case, error) {
	query := fmt.Sprintf(`SELECT %s FROM cases WHERE id = $1 AND user_id = $2`, caseColumns)
	return scanCase(r.db.QueryRow(ctx, query, caseID, userID))
}

// GetByFilename retrieves a user's case by filename.
func (r *CaseRepository) GetByFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Case, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM cases
		WHERE user_id = $1 AND filename = $2
		ORDER BY created_at DESC LIMIT 1`, caseColumns)
	return scanCase(r.db.QueryRow(ctx, query, userID, filename))
}

// FindByContent returns a previously uploaded identical document, so a
// re-upload reuses the stored summary instead of regenerating it.
func (r *CaseRepository) FindByContent(ctx context.Context, userID uuid.UUID, filename, text string) (*models.Case, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM cases
		WHERE user_id = $1 AND filename = $2 AND text = $3
		LIMIT 1`, caseColumns)
	return scanCase(r.db.QueryRow(ctx, query, userID, filename, text))
}

// UpdateSummary persists the serialized Structured Case Summary as the new
// source of truth for the case.
func (r *CaseRepository) UpdateSummary(ctx context.Context, caseID uuid.UUID, summaryJSON string) error {
	query := `UPDATE cases SET case_summary = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, caseID, summaryJSON)
	if err != nil {
		return fmt.Errorf("failed to update case summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStoragePath records where the raw document was stored.
func (r *CaseRepository) SetStoragePath(ctx context.Context, caseID uuid.UUID, storagePath string) error {
	query := `UPDATE cases SET storage_path = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, caseID, storagePath)
	if err != nil {
		return fmt.Errorf("failed to set storage path: %w", err)
	}
	return nil
}

// ListByUser returns a user's cases, newest first.
func (r *CaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Case, error) {
	query := fmt.Sprintf(`SELECT %s FROM cases WHERE user_id = $1 ORDER BY created_at DESC`, caseColumns)
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cases: %w", err)
	}
	return cases, nil
}

// CreateQuestionAnswer appends one audited Q&A turn.
func (r *CaseRepository) CreateQuestionAnswer(ctx context.Context, qa *models.QuestionAnswer) error {
	query := `
		INSERT INTO question_answers (case_id, user_id, question, answer, topic)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, qa.CaseID, qa.UserID, qa.Question, qa.Answer, qa.Topic).
		Scan(&qa.ID, &qa.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create question answer: %w", err)
	}
	return nil
}

// ListQuestionAnswers returns a case's audited turns, oldest first.
func (r *CaseRepository) ListQuestionAnswers(ctx context.Context, caseID uuid.UUID) ([]*models.QuestionAnswer, error) {
	query := `
		SELECT id, case_id, user_id, question, answer, topic, created_at
		FROM question_answers
		WHERE case_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list question answers: %w", err)
	}
	defer rows.Close()

	var items []*models.QuestionAnswer
	for rows.Next() {
		qa := &models.QuestionAnswer{}
		err := rows.Scan(&qa.ID, &qa.CaseID, &qa.UserID, &qa.Question, &qa.Answer, &qa.Topic, &qa.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question answer: %w", err)
		}
		items = append(items, qa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question answers: %w", err)
	}
	return items, nil
}
