package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lawassist-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completerFunc adapts a function to llm.Completer for tests.
type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestMissingFactorsAllMissingOnEmptyText(t *testing.T) {
	missing := MissingFactors("", models.TopicPropertyDivision)
	assert.Equal(t, []string{"asset_pool", "contributions", "future_needs", "existing_agreements"}, missing)
}

func TestMissingFactorsDetectsCoveredFactors(t *testing.T) {
	text := "The asset pool includes the family home and a loan. " +
		"The wife made non-financial contributions as homemaker."
	missing := MissingFactors(text, models.TopicPropertyDivision)
	assert.Equal(t, []string{"future_needs", "existing_agreements"}, missing)
}

func TestMissingFactorsCaseInsensitive(t *testing.T) {
	missing := MissingFactors("ASSETS worth $500,000", models.TopicPropertyDivision)
	assert.NotContains(t, missing, "asset_pool")
}

func TestMissingFactorsUnknownTopicHasNoFactors(t *testing.T) {
	assert.Empty(t, MissingFactors("anything", models.TopicOther))
}

func TestClarificationsForTopicMapsQuestions(t *testing.T) {
	fields, questions := ClarificationsForTopic(models.TopicPrenupPostnup, "")
	require.Len(t, fields, 5)
	require.Len(t, questions, 5)
	assert.Equal(t, "agreement_date", fields[0])
	assert.Equal(t, questionMap["agreement_date"], questions[0])
}

func TestClarificationsForTopicCapped(t *testing.T) {
	// children_parenting declares six factors; an empty summary misses all
	// of them but the round is capped.
	fields, questions := ClarificationsForTopic(models.TopicChildrenParenting, "")
	assert.Len(t, fields, maxClarificationQuestions)
	assert.Len(t, questions, maxClarificationQuestions)
	assert.NotContains(t, fields, "child_views")
}

func TestClarificationsForTopicNothingMissing(t *testing.T) {
	text := "Children aged 7 and 9 currently live with the mother, who has been " +
		"the primary carer. The father's work hours limit weekday availability. " +
		"No safety concerns; the children expressed a wish to stay at their school."
	fields, questions := ClarificationsForTopic(models.TopicChildrenParenting, text)
	assert.Empty(t, fields)
	assert.Empty(t, questions)
}

func TestSummarizeAnswersShortPassthrough(t *testing.T) {
	completer := completerFunc(func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("short answers must not hit the model")
		return "", nil
	})
	out := SummarizeAnswers(context.Background(), completer, map[string]string{
		"asset_pool": "  House worth $900k, mortgage $300k.  ",
		"empty":      "   ",
	})
	assert.Equal(t, "House worth $900k, mortgage $300k.", out["asset_pool"])
	assert.Equal(t, "", out["empty"])
}

func TestSummarizeAnswersCondensesLongAnswer(t *testing.T) {
	long := strings.Repeat("word ", 80)
	completer := completerFunc(func(ctx context.Context, prompt string) (string, error) {
		assert.Contains(t, prompt, "50 words or fewer")
		return "Condensed answer.", nil
	})
	out := SummarizeAnswers(context.Background(), completer, map[string]string{"contributions": long})
	assert.Equal(t, "Condensed answer.", out["contributions"])
}

func TestSummarizeAnswersTruncatesOnModelFailure(t *testing.T) {
	long := strings.Repeat("word ", 80)
	completer := completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	out := SummarizeAnswers(context.Background(), completer, map[string]string{"contributions": long})
	require.Contains(t, out, "contributions")
	assert.Len(t, strings.Fields(out["contributions"]), maxAnswerWords)
	assert.True(t, strings.HasSuffix(out["contributions"], "…"))
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "one two", truncateWords("one two", 5))
	assert.Equal(t, "one two…", truncateWords("one two three", 2))
}
