package service

import (
	"context"
	"strings"
	"testing"

	"lawassist-backend/models"
	"lawassist-backend/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex serves canned nodes and records the queries it saw.
type fakeIndex struct {
	nodes   []retrieval.Node
	queries []string
	filters [][]retrieval.MetadataFilter
}

func (f *fakeIndex) VectorSearch(ctx context.Context, query string, topK int, filters []retrieval.MetadataFilter) ([]retrieval.Node, error) {
	f.queries = append(f.queries, query)
	f.filters = append(f.filters, filters)
	return f.nodes, nil
}

func (f *fakeIndex) KeywordSearch(ctx context.Context, query string, topK int) ([]retrieval.Node, error) {
	return nil, nil
}

func TestBuildStructuredQuery(t *testing.T) {
	query := buildStructuredQuery(
		"How will our assets be split given my homemaker role?",
		"- Asset Pool: family home $900k",
		"Client: earlier question",
		models.TopicPropertyDivision,
	)

	lines := strings.Split(query, "\n")
	assert.Equal(t, "[Property Division]", lines[0])
	assert.Contains(t, query, "Legal terms: ")
	assert.Contains(t, query, "homemaker")
	assert.Contains(t, query, "Question: How will our assets be split given my homemaker role?")
	assert.Contains(t, query, "Case context: - Asset Pool: family home $900k")
	assert.Contains(t, query, "History: Client: earlier question")
}

func TestBuildStructuredQueryTagCap(t *testing.T) {
	// A question touching nearly every property keyword still yields at
	// most eight tags.
	question := "asset liabilities superannuation valuations financial contributions " +
		"homemaker parenting future needs earning health age inheritance split"
	query := buildStructuredQuery(question, "", "", models.TopicPropertyDivision)

	var tagsLine string
	for _, line := range strings.Split(query, "\n") {
		if strings.HasPrefix(line, "Legal terms: ") {
			tagsLine = strings.TrimPrefix(line, "Legal terms: ")
		}
	}
	require.NotEmpty(t, tagsLine)
	assert.Len(t, strings.Split(tagsLine, ", "), 8)
}

func TestBuildStructuredQueryOtherTopic(t *testing.T) {
	query := buildStructuredQuery("What happens next?", "", "", models.TopicOther)
	assert.True(t, strings.HasPrefix(query, "[General Family Law]"))
	assert.NotContains(t, query, "Legal terms:")
	assert.NotContains(t, query, "Case context:")
	assert.NotContains(t, query, "History:")
}

func TestBuildStructuredQueryTruncatesContext(t *testing.T) {
	long := strings.Repeat("x", caseExcerptMax+100)
	query := buildStructuredQuery("q", long, "", models.TopicOther)
	assert.Contains(t, query, "Case context: "+strings.Repeat("x", caseExcerptMax)+"...")
	assert.NotContains(t, query, strings.Repeat("x", caseExcerptMax+1))
}

func TestRenderHistory(t *testing.T) {
	rendered := RenderHistory([]models.ChatTurn{
		{Role: "user", Content: "Who keeps the house?"},
		{Role: "assistant", Content: "Depends on contributions."},
	})
	assert.Equal(t, "Client: Who keeps the house?\nLawyer: Depends on contributions.", rendered)
	assert.Empty(t, RenderHistory(nil))
}

func TestSplitCacheSummary(t *testing.T) {
	answer, summary := splitCacheSummary("Visible advice.\n" + cacheSummarySeparator + "\nTechnical memory.")
	assert.Equal(t, "Visible advice.", answer)
	assert.Equal(t, "Technical memory.", summary)

	answer, summary = splitCacheSummary("Just advice, no separator.")
	assert.Equal(t, "Just advice, no separator.", answer)
	assert.Equal(t, defaultCacheSummary, summary)

	answer, summary = splitCacheSummary("Advice.\n" + cacheSummarySeparator + "\n   ")
	assert.Equal(t, "Advice.", answer)
	assert.Equal(t, defaultCacheSummary, summary)
}

func TestTopicInstruction(t *testing.T) {
	assert.Contains(t, topicInstruction(models.TopicPropertyDivision), "Four-Step Process")
	assert.Contains(t, topicInstruction(models.TopicChildrenParenting), "Section 60CC")
	assert.Contains(t, topicInstruction(models.TopicSpousalMaintenance), "Section 72")
	assert.Contains(t, topicInstruction(models.TopicOther), "Family Law Act 1975")
}

func TestAnswerPipeline(t *testing.T) {
	statutes := &fakeIndex{nodes: []retrieval.Node{{
		ID:   "statute-1",
		Text: "s 79 empowers the court to alter property interests.",
		Metadata: map[string]string{
			"section_id":    "s 79",
			"section_title": "Alteration of property interests",
		},
		Score: 0.9,
	}}}
	summaries := &fakeIndex{nodes: []retrieval.Node{{
		ID:   "summary-1",
		Text: "- Asset Pool: home and super",
		Metadata: map[string]string{
			"case_id":           "2023_FedCFamC1F_123",
			"case_name":         "Smith & Smith",
			"summary_section":   "property_division",
			"impact_analysis":   "Homemaker contributions were decisive.",
			"reasons_rationale": "Contributions assessed as equal.",
		},
		Score: 0.8,
	}}}
	judgments := &fakeIndex{nodes: []retrieval.Node{{
		ID:       "judgment-1",
		Text:     "The husband conceded the wife's domestic contributions.",
		Metadata: map[string]string{"case_id": "2023_FedCFamC1F_123"},
		Score:    0.7,
	}}}

	var capturedPrompt string
	completer := completerFunc(func(ctx context.Context, prompt string) (string, error) {
		capturedPrompt = prompt
		return "You would likely receive 55-60%.\n" + cacheSummarySeparator + "\nAdvised 55-60% split under s 79.", nil
	})

	answerer := NewAnswerer(statutes, summaries, judgments,
		retrieval.NewHybridRetriever(retrieval.DefaultConfig(), nil), completer)

	result, err := answerer.Answer(context.Background(),
		"How will our assets be split?",
		"- Asset Pool: family home $900k",
		"Client: we separated last year",
		"- Pivotal Finding: long marriage",
		models.TopicPropertyDivision)
	require.NoError(t, err)

	assert.Equal(t, "You would likely receive 55-60%.", result.Text)
	assert.Equal(t, "Advised 55-60% split under s 79.", result.CacheSummary)

	require.Len(t, result.Citations, 2)
	assert.Equal(t, models.CitationLegislation, result.Citations[0].Kind)
	assert.Equal(t, "Alteration of property interests", result.Citations[0].Source)
	assert.Equal(t, "s 79", result.Citations[0].ID)
	assert.Equal(t, models.CitationCaseLaw, result.Citations[1].Kind)
	assert.Equal(t, "Smith & Smith", result.Citations[1].Source)
	assert.Equal(t,
		"https://www.austlii.edu.au/cgi-bin/viewdoc/au/cases/cth/FedCFamC1F/2023_FedCFamC1F_123.html",
		result.Citations[1].URL)

	// The statute arm gets the topic-prefixed question; the summary arm gets
	// the structured query and the topic section filter.
	require.Len(t, statutes.queries, 1)
	assert.Equal(t, "property_division How will our assets be split?", statutes.queries[0])
	require.Len(t, summaries.filters, 1)
	assert.Equal(t,
		[]retrieval.MetadataFilter{{Key: "summary_section", Value: "property_division"}},
		summaries.filters[0])
	require.Len(t, judgments.filters, 1)
	assert.Equal(t,
		[]retrieval.MetadataFilter{{Key: "case_id", Value: "2023_FedCFamC1F_123"}},
		judgments.filters[0])

	assert.Contains(t, capturedPrompt, "s 79 empowers the court")
	assert.Contains(t, capturedPrompt, "CASE: Smith & Smith")
	assert.Contains(t, capturedPrompt, "STRATEGIC IMPACT: Homemaker contributions were decisive.")
	assert.Contains(t, capturedPrompt, "OUTCOME/ORDERS: No specific orders reported.")
	assert.Contains(t, capturedPrompt, "FULL TEXT SNIPPET: The husband conceded")
	assert.Contains(t, capturedPrompt, "Four-Step Process")
	assert.Contains(t, capturedPrompt, "- Pivotal Finding: long marriage")
}

func TestAnswerNoPrecedentsStillAnswers(t *testing.T) {
	completer := completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "General guidance only.", nil
	})
	answerer := NewAnswerer(&fakeIndex{}, &fakeIndex{}, &fakeIndex{},
		retrieval.NewHybridRetriever(retrieval.DefaultConfig(), nil), completer)

	result, err := answerer.Answer(context.Background(), "What should I do?", "", "", "", models.TopicOther)
	require.NoError(t, err)
	assert.Equal(t, "General guidance only.", result.Text)
	assert.Equal(t, defaultCacheSummary, result.CacheSummary)
	assert.Empty(t, result.Citations)
}
