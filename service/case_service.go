package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"lawassist-backend/models"
	"lawassist-backend/repository"
	"lawassist-backend/storage"

	"github.com/google/uuid"
)

var (
	// ErrUserNotFound indicates the external session id has no account.
	ErrUserNotFound = errors.New("user not found")
	// ErrCaseNotFound indicates the case does not exist or belongs to
	// another user.
	ErrCaseNotFound = errors.New("case not found")
)

// CaseService owns the upload pipeline: persist the document, build the
// structured summary, embed its sections, and prime the cache.
type CaseService struct {
	cases      CaseStore
	chunks     SectionIndexer
	summarizer *Summarizer
	cache      *Cache
	store      storage.Storage
}

// CaseServiceOption configures optional CaseService behavior.
type CaseServiceOption func(*CaseService)

// WithDocumentStore enables archival of raw uploads to blob storage.
func WithDocumentStore(store storage.Storage) CaseServiceOption {
	return func(s *CaseService) {
		s.store = store
	}
}

func NewCaseService(cases CaseStore, chunks SectionIndexer, summarizer *Summarizer, cache *Cache, opts ...CaseServiceOption) *CaseService {
	s := &CaseService{
		cases:      cases,
		chunks:     chunks,
		summarizer: summarizer,
		cache:      cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UploadCaseRequest carries one uploaded case document.
type UploadCaseRequest struct {
	ExternalUserID string
	Filename       string
	Text           string
}

// UploadCaseResult reports the stored case and whether it already existed.
type UploadCaseResult struct {
	CaseID   uuid.UUID
	Message  string
	Existing bool
}

// UploadCase ingests one case document. Re-uploading identical content
// restores the cache and embeddings from the stored summary instead of
// spending another summary completion.
func (s *CaseService) UploadCase(ctx context.Context, req UploadCaseRequest) (*UploadCaseResult, error) {
	user, err := s.cases.GetOrCreateUser(ctx, req.ExternalUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	existing, err := s.cases.FindByContent(ctx, user.ID, req.Filename, req.Text)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up existing case: %w", err)
	}
	if existing != nil {
		if err := s.restoreCase(ctx, user.ID, existing); err != nil {
			return nil, err
		}
		return &UploadCaseResult{
			CaseID:   existing.ID,
			Message:  fmt.Sprintf("Uploaded %s for session %s", req.Filename, req.ExternalUserID),
			Existing: true,
		}, nil
	}

	summary := s.summarizer.Generate(ctx, req.Text)
	summaryJSON, err := summary.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize case summary: %w", err)
	}

	caseRow := &models.Case{
		UserID:      user.ID,
		Filename:    req.Filename,
		Text:        req.Text,
		SummaryJSON: summaryJSON,
	}
	if err := s.cases.Create(ctx, caseRow); err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}

	// Archival is best-effort: the summary and embeddings are the working
	// copies, the blob is for audit and re-processing.
	if s.store != nil {
		storagePath, err := s.store.Upload(ctx, caseRow.ID, req.Filename, bytes.NewReader([]byte(req.Text)))
		if err != nil {
			log.Printf("Warning: failed to archive uploaded case %s: %v", caseRow.ID, err)
		} else if err := s.cases.SetStoragePath(ctx, caseRow.ID, storagePath); err != nil {
			log.Printf("Warning: failed to record storage path for case %s: %v", caseRow.ID, err)
		}
	}

	if err := s.embedSections(ctx, caseRow.ID, req.Filename, summary); err != nil {
		return nil, err
	}
	s.cache.ReplaceSections(user.ID, caseRow.ID, SectionMap(summary, false))

	return &UploadCaseResult{
		CaseID:  caseRow.ID,
		Message: fmt.Sprintf("Uploaded %s for session %s", req.Filename, req.ExternalUserID),
	}, nil
}

// restoreCase re-primes cache and embeddings for a case that already holds
// a stored summary.
func (s *CaseService) restoreCase(ctx context.Context, userID uuid.UUID, caseRow *models.Case) error {
	summary, err := ParseCaseSummary(caseRow.SummaryJSON)
	if err != nil {
		log.Printf("Warning: stored summary for case %s is unreadable, using raw excerpt: %v", caseRow.ID, err)
		summary = placeholderSummary(caseRow.Text, "Stored summary was unreadable; using raw excerpt.")
	}

	has, err := s.chunks.HasUploadedCase(ctx, caseRow.ID)
	if err != nil {
		return fmt.Errorf("failed to check uploaded case embeddings: %w", err)
	}
	if !has {
		if err := s.embedSections(ctx, caseRow.ID, caseRow.Filename, summary); err != nil {
			return err
		}
	}
	s.cache.ReplaceSections(userID, caseRow.ID, SectionMap(summary, false))
	return nil
}

// embedSections indexes each summary section as one retrievable chunk.
func (s *CaseService) embedSections(ctx context.Context, caseID uuid.UUID, filename string, summary *models.CaseSummary) error {
	for _, section := range SectionsFromSummary(summary, true) {
		if err := s.chunks.UpsertUploadedSection(ctx, caseID, filename, section.Name, section.Text); err != nil {
			return fmt.Errorf("failed to embed summary section %s: %w", section.Name, err)
		}
	}
	return nil
}

// ResetCase drops the in-memory state for one case. Persisted rows and
// embeddings are untouched; a re-upload restores the cache.
func (s *CaseService) ResetCase(ctx context.Context, externalUserID string, caseID uuid.UUID) error {
	user, err := s.cases.GetUserByExternalID(ctx, externalUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to resolve user: %w", err)
	}
	s.cache.ClearCase(user.ID, caseID)
	return nil
}

// CaseHistory is one case with its recorded Q&A turns, newest case first.
type CaseHistory struct {
	CaseID    uuid.UUID                `json:"case_id"`
	Filename  string                   `json:"filename"`
	CreatedAt time.Time                `json:"created_at"`
	QA        []*models.QuestionAnswer `json:"qa"`
}

// History lists every case for the session with its full Q&A audit trail.
// An unknown session yields an empty list, not an error.
func (s *CaseService) History(ctx context.Context, externalUserID string) ([]*CaseHistory, error) {
	user, err := s.cases.GetUserByExternalID(ctx, externalUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []*CaseHistory{}, nil
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	cases, err := s.cases.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	history := make([]*CaseHistory, 0, len(cases))
	for _, c := range cases {
		qa, err := s.cases.ListQuestionAnswers(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list answers for case %s: %w", c.ID, err)
		}
		history = append(history, &CaseHistory{
			CaseID:    c.ID,
			Filename:  c.Filename,
			CreatedAt: c.CreatedAt,
			QA:        qa,
		})
	}
	return history, nil
}
