package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"lawassist-backend/llm"
	"lawassist-backend/models"
	"lawassist-backend/repository"

	"github.com/google/uuid"
)

// ErrNoPendingClarification indicates a clarification submission arrived
// for a case without an open clarification round.
var ErrNoPendingClarification = errors.New("no pending clarification")

// QAService orchestrates the question flow: topic classification, the
// clarification gate, retrieval-backed answering, and audit persistence.
type QAService struct {
	cases      CaseStore
	chunks     SectionIndexer
	cache      *Cache
	classifier *Classifier
	answerer   *Answerer
	summarizer answerSummarizer
}

// answerSummarizer condenses clarification answers. Split out so tests can
// substitute a deterministic implementation.
type answerSummarizer interface {
	Summarize(ctx context.Context, answers map[string]string) map[string]string
}

type completerSummarizer struct {
	completer llm.Completer
}

func (c completerSummarizer) Summarize(ctx context.Context, answers map[string]string) map[string]string {
	return SummarizeAnswers(ctx, c.completer, answers)
}

// QAServiceOption configures optional QAService behavior.
type QAServiceOption func(*QAService)

// WithAnswerSummarizer overrides how clarification answers are condensed.
func WithAnswerSummarizer(s answerSummarizer) QAServiceOption {
	return func(q *QAService) {
		q.summarizer = s
	}
}

func NewQAService(cases CaseStore, chunks SectionIndexer, cache *Cache, classifier *Classifier, answerer *Answerer, opts ...QAServiceOption) *QAService {
	s := &QAService{
		cases:      cases,
		chunks:     chunks,
		cache:      cache,
		classifier: classifier,
		answerer:   answerer,
	}
	s.summarizer = completerSummarizer{completer: answerer.completer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AskRequest is one question against an uploaded case.
type AskRequest struct {
	ExternalUserID string
	CaseID         uuid.UUID
	Question       string
	Topic          string
}

// AskResult is either a clarification round or a final answer.
type AskResult struct {
	ClarificationNeeded bool              `json:"clarification_needed,omitempty"`
	Questions           []string          `json:"questions,omitempty"`
	MissingFields       []string          `json:"missing_fields,omitempty"`
	Message             string            `json:"message,omitempty"`
	Answer              string            `json:"answer,omitempty"`
	Citations           []models.Citation `json:"citations,omitempty"`
}

// Ask answers a question about the named case, or opens a clarification
// round when the case summary is missing key facts for the topic.
func (s *QAService) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	user, caseRow, err := s.resolveCase(ctx, req.ExternalUserID, req.CaseID)
	if err != nil {
		return nil, err
	}

	topic := s.classifier.Classify(ctx, req.Question, req.Topic)
	log.Printf("Detected topic %q for case %s", topic, caseRow.ID)

	sectionText := s.topicSection(user.ID, caseRow, string(topic))
	impactText := s.topicSection(user.ID, caseRow, "impact_analysis")

	missingFields, questions := ClarificationsForTopic(topic, sectionText)
	if len(questions) > 0 {
		s.cache.SetPending(user.ID, caseRow.ID, &models.PendingClarification{
			Question:      req.Question,
			Topic:         string(topic),
			MissingFields: missingFields,
			Questions:     questions,
		})
		return &AskResult{
			ClarificationNeeded: true,
			Questions:           questions,
			MissingFields:       missingFields,
			Message:             "I need a bit more information to give you a complete answer. Please answer the following questions:",
		}, nil
	}

	return s.answer(ctx, user, caseRow, req.Question, sectionText, impactText, topic)
}

// ClarifyRequest carries the client's answers to one clarification round.
type ClarifyRequest struct {
	ExternalUserID string
	CaseID         uuid.UUID
	Filename       string
	Answers        map[string]string
	MissingFields  []string
}

// SubmitClarification consumes the pending round, patches the stored case
// summary with the condensed answers, refreshes the section embedding, and
// answers the originally deferred question with the enriched context.
func (s *QAService) SubmitClarification(ctx context.Context, req ClarifyRequest) (*AskResult, error) {
	user, err := s.cases.GetUserByExternalID(ctx, req.ExternalUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	var caseRow *models.Case
	if req.Filename != "" {
		caseRow, err = s.cases.GetByFilename(ctx, user.ID, req.Filename)
	} else {
		caseRow, err = s.cases.GetByID(ctx, req.CaseID, user.ID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to load case: %w", err)
	}

	pending, ok := s.cache.TakePending(user.ID, caseRow.ID)
	if !ok {
		return nil, ErrNoPendingClarification
	}

	missingFields := req.MissingFields
	if len(missingFields) == 0 {
		missingFields = pending.MissingFields
	}
	topic := models.ParseTopic(pending.Topic)

	fieldAnswers := make(map[string]string, len(missingFields))
	for _, field := range missingFields {
		fieldAnswers[field] = req.Answers[field]
	}
	summarized := s.summarizer.Summarize(ctx, fieldAnswers)

	var summaryLines []string
	for _, field := range missingFields {
		if value := summarized[field]; value != "" {
			summaryLines = append(summaryLines, "- "+fieldLabel(field)+": "+value)
		}
	}

	if topic != models.TopicOther && len(summaryLines) > 0 {
		patchText := strings.Join(summaryLines, "\n")
		s.cache.AppendSection(user.ID, caseRow.ID, string(topic), patchText)

		summary, err := ParseCaseSummary(caseRow.SummaryJSON)
		if err != nil {
			log.Printf("Warning: stored summary for case %s is unreadable, patching a fresh document: %v", caseRow.ID, err)
			summary = models.EmptyCaseSummary()
		}
		for _, field := range missingFields {
			value := summarized[field]
			if value == "" {
				continue
			}
			if !summary.AppendField(topic, field, value) {
				log.Printf("Warning: unknown summary field %s for topic %s, skipping", field, topic)
			}
		}
		summaryJSON, err := summary.Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize patched summary: %w", err)
		}
		if err := s.cases.UpdateSummary(ctx, caseRow.ID, summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to persist patched summary: %w", err)
		}
		caseRow.SummaryJSON = summaryJSON

		if err := s.chunks.UpsertUploadedSection(ctx, caseRow.ID, caseRow.Filename, string(topic), s.cache.Section(user.ID, caseRow.ID, string(topic))); err != nil {
			return nil, fmt.Errorf("failed to refresh section embedding: %w", err)
		}
	}

	sectionText := s.topicSection(user.ID, caseRow, string(topic))
	impactText := s.topicSection(user.ID, caseRow, "impact_analysis")
	return s.answer(ctx, user, caseRow, pending.Question, sectionText, impactText, topic)
}

// answer runs the retrieval pipeline and records the exchange.
func (s *QAService) answer(ctx context.Context, user *models.User, caseRow *models.Case, question, sectionText, impactText string, topic models.Topic) (*AskResult, error) {
	historyText := RenderHistory(s.cache.History(user.ID, caseRow.ID))

	result, err := s.answerer.Answer(ctx, question, sectionText, historyText, impactText, topic)
	if err != nil {
		return nil, err
	}

	s.cache.AppendHistory(user.ID, caseRow.ID, question, result.CacheSummary)

	topicStr := string(topic)
	qa := &models.QuestionAnswer{
		CaseID:   caseRow.ID,
		UserID:   user.ID,
		Question: question,
		Answer:   result.Text,
		Topic:    &topicStr,
	}
	if err := s.cases.CreateQuestionAnswer(ctx, qa); err != nil {
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	return &AskResult{Answer: result.Text, Citations: result.Citations}, nil
}

func (s *QAService) resolveCase(ctx context.Context, externalUserID string, caseID uuid.UUID) (*models.User, *models.Case, error) {
	user, err := s.cases.GetUserByExternalID(ctx, externalUserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	caseRow, err := s.cases.GetByID(ctx, caseID, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrCaseNotFound
		}
		return nil, nil, fmt.Errorf("failed to load case: %w", err)
	}
	return user, caseRow, nil
}

// topicSection returns the cached text for one section, rebuilding the
// cache from the stored summary on a miss.
func (s *QAService) topicSection(userID uuid.UUID, caseRow *models.Case, section string) string {
	if text := s.cache.Section(userID, caseRow.ID, section); text != "" {
		return text
	}
	summary, err := ParseCaseSummary(caseRow.SummaryJSON)
	if err != nil {
		log.Printf("Warning: stored summary for case %s is unreadable: %v", caseRow.ID, err)
		return ""
	}
	sections := SectionMap(summary, false)
	s.cache.ReplaceSections(userID, caseRow.ID, sections)
	return sections[section]
}

// fieldLabel renders a factor identifier for client display
// ("asset_pool" -> "Asset Pool").
func fieldLabel(field string) string {
	parts := strings.Split(field, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
