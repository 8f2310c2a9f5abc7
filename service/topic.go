package service

import (
	"context"
	"fmt"
	"strings"

	"lawassist-backend/llm"
	"lawassist-backend/models"
)

// Classifier assigns a legal topic to an incoming question with a single
// completion call. An unparseable or unknown answer degrades to TopicOther
// rather than failing the request.
type Classifier struct {
	completer llm.Completer
}

func NewClassifier(completer llm.Completer) *Classifier {
	return &Classifier{completer: completer}
}

// Classify returns the topic for a question. A non-empty explicit topic
// short-circuits the model call unless it normalizes to "other".
func (c *Classifier) Classify(ctx context.Context, question, explicitTopic string) models.Topic {
	if explicitTopic != "" {
		if topic := models.ParseTopic(explicitTopic); topic != models.TopicOther {
			return topic
		}
	}

	names := make([]string, 0, len(models.Topics()))
	for _, topic := range models.Topics() {
		names = append(names, string(topic))
	}

	prompt := fmt.Sprintf(`Based on the following user question, which legal topic does it belong to?
Question: %q

Topics: %s

Return only the topic name or 'other' if it doesn't fit.`, question, strings.Join(names, ", "))

	answer, err := c.completer.Complete(ctx, prompt)
	if err != nil {
		return models.TopicOther
	}
	return models.ParseTopic(answer)
}
