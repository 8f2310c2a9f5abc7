package service

import (
	"context"

	"lawassist-backend/models"

	"github.com/google/uuid"
)

// CaseStore is the persistence surface the services need for users, cases,
// and the Q&A audit trail. *repository.CaseRepository satisfies it.
type CaseStore interface {
	GetOrCreateUser(ctx context.Context, externalID string) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Create(ctx context.Context, c *models.Case) error
	GetByID(ctx context.Context, caseID, userID uuid.UUID) (*models.Case, error)
	GetByFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Case, error)
	FindByContent(ctx context.Context, userID uuid.UUID, filename, text string) (*models.Case, error)
	UpdateSummary(ctx context.Context, caseID uuid.UUID, summaryJSON string) error
	SetStoragePath(ctx context.Context, caseID uuid.UUID, storagePath string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Case, error)
	CreateQuestionAnswer(ctx context.Context, qa *models.QuestionAnswer) error
	ListQuestionAnswers(ctx context.Context, caseID uuid.UUID) ([]*models.QuestionAnswer, error)
}

// SectionIndexer maintains the per-case section embeddings.
// *repository.ChunkRepository satisfies it.
type SectionIndexer interface {
	UpsertUploadedSection(ctx context.Context, caseID uuid.UUID, source, section, text string) error
	HasUploadedCase(ctx context.Context, caseID uuid.UUID) (bool, error)
	DeleteUploadedCase(ctx context.Context, caseID uuid.UUID) error
}
