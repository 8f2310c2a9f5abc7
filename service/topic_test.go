package service

import (
	"context"
	"errors"
	"testing"

	"lawassist-backend/models"

	"github.com/stretchr/testify/assert"
)

func TestClassifyExplicitTopicShortCircuits(t *testing.T) {
	classifier := NewClassifier(completerFunc(func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("explicit topic must not hit the model")
		return "", nil
	}))

	topic := classifier.Classify(context.Background(), "How is property split?", "Property_Division")
	assert.Equal(t, models.TopicPropertyDivision, topic)
}

func TestClassifyFallsThroughOnExplicitOther(t *testing.T) {
	classifier := NewClassifier(completerFunc(func(ctx context.Context, prompt string) (string, error) {
		assert.Contains(t, prompt, "property_division, children_parenting")
		return "spousal_maintenance", nil
	}))

	topic := classifier.Classify(context.Background(), "Can I get maintenance?", "other")
	assert.Equal(t, models.TopicSpousalMaintenance, topic)
}

func TestClassifyNormalizesModelAnswer(t *testing.T) {
	classifier := NewClassifier(completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "  Children_Parenting \n", nil
	}))

	topic := classifier.Classify(context.Background(), "Who gets custody?", "")
	assert.Equal(t, models.TopicChildrenParenting, topic)
}

func TestClassifyModelFailureIsOther(t *testing.T) {
	classifier := NewClassifier(completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("timeout")
	}))

	topic := classifier.Classify(context.Background(), "Who gets custody?", "")
	assert.Equal(t, models.TopicOther, topic)
}

func TestClassifyUnknownAnswerIsOther(t *testing.T) {
	classifier := NewClassifier(completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "criminal_law", nil
	}))

	topic := classifier.Classify(context.Background(), "Am I liable?", "")
	assert.Equal(t, models.TopicOther, topic)
}
