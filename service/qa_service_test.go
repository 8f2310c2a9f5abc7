package service

import (
	"context"
	"strings"
	"testing"

	"lawassist-backend/models"
	"lawassist-backend/repository"
	"lawassist-backend/retrieval"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCaseStore is an in-memory CaseStore.
type fakeCaseStore struct {
	users map[string]*models.User
	cases map[uuid.UUID]*models.Case
	qas   []*models.QuestionAnswer
}

func newFakeCaseStore() *fakeCaseStore {
	return &fakeCaseStore{
		users: make(map[string]*models.User),
		cases: make(map[uuid.UUID]*models.Case),
	}
}

func (f *fakeCaseStore) addUser(externalID string) *models.User {
	user := &models.User{ID: uuid.New(), ExternalID: externalID}
	f.users[externalID] = user
	return user
}

func (f *fakeCaseStore) addCase(userID uuid.UUID, filename, text, summaryJSON string) *models.Case {
	c := &models.Case{
		ID:          uuid.New(),
		UserID:      userID,
		Filename:    filename,
		Text:        text,
		SummaryJSON: summaryJSON,
	}
	f.cases[c.ID] = c
	return c
}

func (f *fakeCaseStore) GetOrCreateUser(ctx context.Context, externalID string) (*models.User, error) {
	if user, ok := f.users[externalID]; ok {
		return user, nil
	}
	return f.addUser(externalID), nil
}

func (f *fakeCaseStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if user, ok := f.users[externalID]; ok {
		return user, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCaseStore) Create(ctx context.Context, c *models.Case) error {
	c.ID = uuid.New()
	f.cases[c.ID] = c
	return nil
}

func (f *fakeCaseStore) GetByID(ctx context.Context, caseID, userID uuid.UUID) (*models.Case, error) {
	c, ok := f.cases[caseID]
	if !ok || c.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCaseStore) GetByFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Case, error) {
	for _, c := range f.cases {
		if c.UserID == userID && c.Filename == filename {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCaseStore) FindByContent(ctx context.Context, userID uuid.UUID, filename, text string) (*models.Case, error) {
	for _, c := range f.cases {
		if c.UserID == userID && c.Filename == filename && c.Text == text {
			return c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCaseStore) UpdateSummary(ctx context.Context, caseID uuid.UUID, summaryJSON string) error {
	c, ok := f.cases[caseID]
	if !ok {
		return repository.ErrNotFound
	}
	c.SummaryJSON = summaryJSON
	return nil
}

func (f *fakeCaseStore) SetStoragePath(ctx context.Context, caseID uuid.UUID, storagePath string) error {
	c, ok := f.cases[caseID]
	if !ok {
		return repository.ErrNotFound
	}
	c.StoragePath = &storagePath
	return nil
}

func (f *fakeCaseStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Case, error) {
	var out []*models.Case
	for _, c := range f.cases {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCaseStore) CreateQuestionAnswer(ctx context.Context, qa *models.QuestionAnswer) error {
	qa.ID = uuid.New()
	f.qas = append(f.qas, qa)
	return nil
}

func (f *fakeCaseStore) ListQuestionAnswers(ctx context.Context, caseID uuid.UUID) ([]*models.QuestionAnswer, error) {
	var out []*models.QuestionAnswer
	for _, qa := range f.qas {
		if qa.CaseID == caseID {
			out = append(out, qa)
		}
	}
	return out, nil
}

// fakeSectionIndexer records section upserts per case.
type fakeSectionIndexer struct {
	sections map[uuid.UUID]map[string]string
}

func newFakeSectionIndexer() *fakeSectionIndexer {
	return &fakeSectionIndexer{sections: make(map[uuid.UUID]map[string]string)}
}

func (f *fakeSectionIndexer) UpsertUploadedSection(ctx context.Context, caseID uuid.UUID, source, section, text string) error {
	m := f.sections[caseID]
	if m == nil {
		m = make(map[string]string)
		f.sections[caseID] = m
	}
	m[section] = text
	return nil
}

func (f *fakeSectionIndexer) HasUploadedCase(ctx context.Context, caseID uuid.UUID) (bool, error) {
	return len(f.sections[caseID]) > 0, nil
}

func (f *fakeSectionIndexer) DeleteUploadedCase(ctx context.Context, caseID uuid.UUID) error {
	delete(f.sections, caseID)
	return nil
}

// passthroughSummarizer keeps clarification answers as-is.
type passthroughSummarizer struct{}

func (passthroughSummarizer) Summarize(ctx context.Context, answers map[string]string) map[string]string {
	return answers
}

type qaFixture struct {
	store   *fakeCaseStore
	indexer *fakeSectionIndexer
	cache   *Cache
	svc     *QAService
	user    *models.User
	caseRow *models.Case
}

func newQAFixture(t *testing.T) *qaFixture {
	t.Helper()

	summary, err := ParseCaseSummary(sampleSummaryJSON)
	require.NoError(t, err)
	summaryJSON, err := summary.Marshal()
	require.NoError(t, err)

	store := newFakeCaseStore()
	user := store.addUser("sess-1")
	caseRow := store.addCase(user.ID, "smith.txt", "case narrative", summaryJSON)

	completer := completerFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Based on the following user question") {
			return "property_division", nil
		}
		return "Here is my advice.\n" + cacheSummarySeparator + "\nAdvice memo.", nil
	})

	indexer := newFakeSectionIndexer()
	cache := NewCache()
	answerer := NewAnswerer(&fakeIndex{}, &fakeIndex{}, &fakeIndex{},
		retrieval.NewHybridRetriever(retrieval.DefaultConfig(), nil), completer)
	svc := NewQAService(store, indexer, cache, NewClassifier(completer), answerer,
		WithAnswerSummarizer(passthroughSummarizer{}))

	return &qaFixture{store: store, indexer: indexer, cache: cache, svc: svc, user: user, caseRow: caseRow}
}

func TestAskOpensClarificationRound(t *testing.T) {
	fx := newQAFixture(t)

	// The stored summary covers the asset pool and contributions but says
	// nothing about future needs or existing agreements.
	result, err := fx.svc.Ask(context.Background(), AskRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Question:       "How will our assets be split?",
		Topic:          "property_division",
	})
	require.NoError(t, err)

	assert.True(t, result.ClarificationNeeded)
	assert.Equal(t, []string{"future_needs", "existing_agreements"}, result.MissingFields)
	require.Len(t, result.Questions, 2)
	assert.Equal(t, questionMap["future_needs"], result.Questions[0])
	assert.Empty(t, result.Answer)

	pending, ok := fx.cache.TakePending(fx.user.ID, fx.caseRow.ID)
	require.True(t, ok)
	assert.Equal(t, "How will our assets be split?", pending.Question)
	assert.Equal(t, "property_division", pending.Topic)
}

func TestSubmitClarificationPatchesAndAnswers(t *testing.T) {
	fx := newQAFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Ask(ctx, AskRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Question:       "How will our assets be split?",
		Topic:          "property_division",
	})
	require.NoError(t, err)

	result, err := fx.svc.SubmitClarification(ctx, ClarifyRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Answers: map[string]string{
			"future_needs":        "Wife has limited earning capacity due to ongoing health issues",
			"existing_agreements": "No binding financial agreement exists",
		},
	})
	require.NoError(t, err)

	// The deferred question is answered, not the clarification itself.
	assert.False(t, result.ClarificationNeeded)
	assert.Equal(t, "Here is my advice.", result.Answer)

	// The stored summary now carries the new facts.
	patched, err := ParseCaseSummary(fx.caseRow.SummaryJSON)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"Wife has limited earning capacity due to ongoing health issues"},
		patched.FieldValues(models.TopicPropertyDivision, "future_needs"))

	// The cache section accumulated the patch and the embedding was refreshed.
	section := fx.cache.Section(fx.user.ID, fx.caseRow.ID, "property_division")
	assert.Contains(t, section, "- Future Needs: Wife has limited earning capacity")
	assert.Contains(t, section, "- Existing Agreements: No binding financial agreement exists")
	assert.Equal(t, section, fx.indexer.sections[fx.caseRow.ID]["property_division"])

	// The exchange is recorded against the original question.
	require.Len(t, fx.store.qas, 1)
	assert.Equal(t, "How will our assets be split?", fx.store.qas[0].Question)
	assert.Equal(t, "Here is my advice.", fx.store.qas[0].Answer)

	// The round is consumed.
	_, err = fx.svc.SubmitClarification(ctx, ClarifyRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Answers:        map[string]string{"future_needs": "again"},
	})
	assert.ErrorIs(t, err, ErrNoPendingClarification)
}

func TestAskAnswersDirectlyOnceFactsAreComplete(t *testing.T) {
	fx := newQAFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Ask(ctx, AskRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Question:       "How will our assets be split?",
		Topic:          "property_division",
	})
	require.NoError(t, err)

	_, err = fx.svc.SubmitClarification(ctx, ClarifyRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Answers: map[string]string{
			"future_needs":        "Wife has limited earning capacity due to ongoing health issues",
			"existing_agreements": "No binding financial agreement exists",
		},
	})
	require.NoError(t, err)

	result, err := fx.svc.Ask(ctx, AskRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Question:       "What percentage should I expect?",
		Topic:          "property_division",
	})
	require.NoError(t, err)
	assert.False(t, result.ClarificationNeeded)
	assert.Equal(t, "Here is my advice.", result.Answer)

	// Both exchanges are in the audit trail and the history window.
	assert.Len(t, fx.store.qas, 2)
	turns := fx.cache.History(fx.user.ID, fx.caseRow.ID)
	require.Len(t, turns, 4)
	assert.Equal(t, "Advice memo.", turns[1].Content)
}

func TestAskClassifiesWhenTopicOmitted(t *testing.T) {
	fx := newQAFixture(t)

	// The scripted classifier resolves to property_division, whose factors
	// are incomplete in the stored summary.
	result, err := fx.svc.Ask(context.Background(), AskRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Question:       "How will our assets be split?",
	})
	require.NoError(t, err)
	assert.True(t, result.ClarificationNeeded)
}

func TestAskUnknownUserAndCase(t *testing.T) {
	fx := newQAFixture(t)

	_, err := fx.svc.Ask(context.Background(), AskRequest{
		ExternalUserID: "nobody",
		CaseID:         fx.caseRow.ID,
		Question:       "q",
	})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = fx.svc.Ask(context.Background(), AskRequest{
		ExternalUserID: "sess-1",
		CaseID:         uuid.New(),
		Question:       "q",
	})
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestSubmitClarificationResolvesCaseByFilename(t *testing.T) {
	fx := newQAFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Ask(ctx, AskRequest{
		ExternalUserID: "sess-1",
		CaseID:         fx.caseRow.ID,
		Question:       "How will our assets be split?",
		Topic:          "property_division",
	})
	require.NoError(t, err)

	result, err := fx.svc.SubmitClarification(ctx, ClarifyRequest{
		ExternalUserID: "sess-1",
		Filename:       "smith.txt",
		Answers: map[string]string{
			"future_needs":        "No significant disparity in earning capacity",
			"existing_agreements": "A consent order from 2022 covers the car",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Here is my advice.", result.Answer)
}
