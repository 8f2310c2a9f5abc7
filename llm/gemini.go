// Package llm adapts the Gemini API to the narrow contracts the core
// depends on: a plain-text completion call and a text embedder.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
)

// Completer is the single completion contract the core depends on.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	ErrEmptyCompletion = errors.New("completion returned no content")
	ErrEmbeddingFailed = errors.New("failed to generate embedding")
)

const (
	defaultModel   = "gemini-2.0-flash"
	maxRetries     = 3
	initialBackoff = time.Second
	maxPromptChars = 30000
)

// Gemini implements Completer over the genai client.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

// GeminiOption is a functional option for Gemini.
type GeminiOption func(*Gemini)

// WithModel overrides the generation model name.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) {
		g.model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) GeminiOption {
	return func(g *Gemini) {
		g.temperature = t
	}
}

// NewGemini creates a completion adapter over an initialized genai client.
func NewGemini(client *genai.Client, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		client:      client,
		model:       defaultModel,
		temperature: 0.2,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete issues one generation call and returns the concatenated text
// parts. Retries with doubling backoff on transient failures.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", errors.New("gemini client not set")
	}

	// Truncate oversized prompts instead of failing on context limits.
	if len(prompt) > maxPromptChars {
		prompt = prompt[:maxPromptChars] + "\n\n[Content truncated due to length...]"
	}

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = err
			continue
		}

		text := collectText(resp)
		if text != "" {
			return text, nil
		}
		lastErr = ErrEmptyCompletion
	}

	return "", fmt.Errorf("completion failed after %d attempts: %w", maxRetries, lastErr)
}

func collectText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(builder.String())
}
