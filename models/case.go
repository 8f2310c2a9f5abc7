package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account resolved from an external session identifier.
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Case represents one uploaded case narrative and its stored summary.
// SummaryJSON holds the serialized Structured Case Summary; it is parsed
// lazily so a corrupted row can be recovered with a placeholder instead of
// failing the request.
type Case struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Filename    string    `json:"filename"`
	Text        string    `json:"text"`
	SummaryJSON string    `json:"case_summary"`
	StoragePath *string   `json:"storage_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QuestionAnswer is one audited Q&A turn for a case. The full answer is
// stored here; the in-memory history keeps only the condensed summary.
type QuestionAnswer struct {
	ID        uuid.UUID `json:"id"`
	CaseID    uuid.UUID `json:"case_id"`
	UserID    uuid.UUID `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Topic     *string   `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatTurn is one entry of the per-case conversation history.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// PendingClarification records an in-flight request for missing facts.
// At most one exists per (user, case).
type PendingClarification struct {
	Question      string   `json:"question"`
	Topic         string   `json:"topic"`
	MissingFields []string `json:"missing_fields"`
	Questions     []string `json:"questions"`
}

// CitationKind distinguishes statutory references from case law.
type CitationKind string

const (
	CitationLegislation CitationKind = "Legislation"
	CitationCaseLaw     CitationKind = "Case Law"
)

// Citation is a structured reference attached to a generated answer.
type Citation struct {
	Source string       `json:"source"`
	Kind   CitationKind `json:"type"`
	ID     string       `json:"id"`
	URL    string       `json:"url,omitempty"`
}
