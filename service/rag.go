package service

import (
	"context"
	"fmt"
	"strings"

	"lawassist-backend/llm"
	"lawassist-backend/models"
	"lawassist-backend/retrieval"
)

// cacheSummarySeparator splits the model's client-facing answer from the
// condensed technical summary kept for conversation memory.
const cacheSummarySeparator = "---CACHE_SUMMARY---"

// defaultCacheSummary is stored when the model omits the memory block.
const defaultCacheSummary = "Summary not available."

const (
	statuteLimit   = 3
	summaryLimit   = 2
	judgmentLimit  = 2
	caseExcerptMax = 300
	historyMax     = 200
)

// Answer is the result of one question against the three corpora.
type Answer struct {
	Text         string
	CacheSummary string
	Citations    []models.Citation
}

// Answerer runs the three-stage retrieval pipeline: statutes for the legal
// foundation, case summaries for strategic precedent, then per-case
// judgment chunks for deep detail, before one synthesis completion.
type Answerer struct {
	statutes  retrieval.Index
	summaries retrieval.Index
	judgments retrieval.Index
	retriever *retrieval.HybridRetriever
	completer llm.Completer
}

func NewAnswerer(statutes, summaries, judgments retrieval.Index, retriever *retrieval.HybridRetriever, completer llm.Completer) *Answerer {
	return &Answerer{
		statutes:  statutes,
		summaries: summaries,
		judgments: judgments,
		retriever: retriever,
		completer: completer,
	}
}

// buildStructuredQuery composes the retrieval query from topic, matching
// legal vocabulary, the question, and truncated case and history context.
func buildStructuredQuery(question, caseSectionText, historyText string, topic models.Topic) string {
	label := "General Family Law"
	if topic != models.TopicOther {
		label = topic.Label()
	}

	var relevantTags []string
	if keywords, ok := topicKeywords[topic]; ok {
		inputLower := strings.ToLower(question)
		for _, kw := range keywords {
			for _, word := range strings.Fields(strings.ToLower(kw)) {
				if strings.Contains(inputLower, word) {
					relevantTags = append(relevantTags, kw)
					break
				}
			}
			if len(relevantTags) == 8 {
				break
			}
		}
	}

	components := []string{"[" + label + "]"}
	if len(relevantTags) > 0 {
		components = append(components, "Legal terms: "+strings.Join(relevantTags, ", "))
	}
	components = append(components, "Question: "+question)
	if caseSectionText != "" {
		components = append(components, "Case context: "+truncateChars(caseSectionText, caseExcerptMax))
	}
	if historyText != "" {
		components = append(components, "History: "+truncateChars(historyText, historyMax))
	}
	return strings.Join(components, "\n")
}

func truncateChars(text string, max int) string {
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}

// RenderHistory flattens chat turns into the Client:/Lawyer: transcript
// form used in prompts.
func RenderHistory(turns []models.ChatTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		label := "Client"
		if turn.Role == "assistant" {
			label = "Lawyer"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, turn.Content)
	}
	return strings.TrimSpace(b.String())
}

// Answer runs retrieval and synthesis for one question. Retrieval arms are
// best-effort apart from the statute search; the final completion error is
// returned to the caller as-is.
func (a *Answerer) Answer(ctx context.Context, question, caseSectionText, historyText, impactAnalysis string, topic models.Topic) (*Answer, error) {
	// Stage 1: statutes, black-letter law.
	statuteNodes, err := a.retriever.Retrieve(ctx, a.statutes, string(topic)+" "+question, retrieval.Options{
		Limit:     statuteLimit,
		UseRerank: true,
	})
	if err != nil {
		return nil, fmt.Errorf("statute retrieval failed: %w", err)
	}
	var statuteLines []string
	for _, n := range statuteNodes {
		statuteLines = append(statuteLines, "- "+n.Text)
	}

	// Stage 2: case summaries, filtered to the topic's section.
	var summaryFilters []retrieval.MetadataFilter
	if topic != models.TopicOther {
		summaryFilters = []retrieval.MetadataFilter{{Key: "summary_section", Value: string(topic)}}
	}
	summaryQuery := buildStructuredQuery(question, caseSectionText, historyText, topic)
	summaryNodes, err := a.retriever.Retrieve(ctx, a.summaries, summaryQuery, retrieval.Options{
		Limit:     summaryLimit,
		Filters:   summaryFilters,
		UseRerank: true,
	})
	if err != nil {
		return nil, fmt.Errorf("case summary retrieval failed: %w", err)
	}

	var citations []models.Citation
	for _, n := range statuteNodes {
		citations = append(citations, models.Citation{
			Source: n.Meta("section_title", "Family Law Act 1975"),
			Kind:   models.CitationLegislation,
			ID:     n.Metadata["section_id"],
		})
	}

	// Stage 3: per-case judgment detail, constrained to each summary's
	// case so facts never bleed between precedents.
	var precedentBlocks []string
	for _, sn := range summaryNodes {
		cid := sn.Metadata["case_id"]
		detailNodes, err := a.retriever.Retrieve(ctx, a.judgments, question, retrieval.Options{
			Limit:   judgmentLimit,
			Filters: []retrieval.MetadataFilter{{Key: "case_id", Value: cid}},
		})
		if err != nil {
			return nil, fmt.Errorf("judgment retrieval failed for case %s: %w", cid, err)
		}
		var detailTexts []string
		for _, dn := range detailNodes {
			detailTexts = append(detailTexts, dn.Text)
		}

		precedentBlocks = append(precedentBlocks, strings.Join([]string{
			"CASE: " + sn.Metadata["case_name"],
			"STRATEGIC IMPACT: " + sn.Meta("impact_analysis", "Analyzing case significance..."),
			"REASONS & RATIONALE: " + sn.Meta("reasons_rationale", "No detailed reasoning available."),
			"OUTCOME/ORDERS: " + sn.Meta("outcome_orders", "No specific orders reported."),
			"FULL TEXT SNIPPET: " + strings.Join(detailTexts, "\n"),
		}, "\n"))
		citations = append(citations, models.Citation{
			Source: sn.Metadata["case_name"],
			Kind:   models.CitationCaseLaw,
			ID:     cid,
			URL:    fmt.Sprintf("https://www.austlii.edu.au/cgi-bin/viewdoc/au/cases/cth/FedCFamC1F/%s.html", cid),
		})
	}

	prompt := buildSynthesisPrompt(synthesisInput{
		Question:        question,
		Topic:           topic,
		StatuteContext:  strings.Join(statuteLines, "\n"),
		CaseSectionText: caseSectionText,
		ImpactAnalysis:  impactAnalysis,
		HistoryText:     historyText,
		PrecedentBlocks: precedentBlocks,
	})

	response, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("answer synthesis failed: %w", err)
	}

	text, cacheSummary := splitCacheSummary(response)
	return &Answer{Text: text, CacheSummary: cacheSummary, Citations: citations}, nil
}

// splitCacheSummary separates the client answer from the memory block.
func splitCacheSummary(response string) (answer, cacheSummary string) {
	answer, cacheSummary, found := strings.Cut(response, cacheSummarySeparator)
	answer = strings.TrimSpace(answer)
	cacheSummary = strings.TrimSpace(cacheSummary)
	if !found || cacheSummary == "" {
		cacheSummary = defaultCacheSummary
	}
	return answer, cacheSummary
}

type synthesisInput struct {
	Question        string
	Topic           models.Topic
	StatuteContext  string
	CaseSectionText string
	ImpactAnalysis  string
	HistoryText     string
	PrecedentBlocks []string
}

func topicInstruction(topic models.Topic) string {
	switch topic {
	case models.TopicPropertyDivision:
		return "Apply the 'Four-Step Process' (Pool, Contributions, s 75(2) Future Needs, and Just & Equitable)."
	case models.TopicChildrenParenting:
		return "Apply the 'Best Interests of the Child' framework (Section 60CC), focusing on safety, developmental needs, and the benefit of a relationship with both parents."
	case models.TopicSpousalMaintenance:
		return "Apply the 'Threshold Test' (Section 72): One party's inability to support themselves vs. the other party's capacity to pay."
	default:
		return "Assess the situation based on the relevant sections of the Family Law Act 1975."
	}
}

func buildSynthesisPrompt(in synthesisInput) string {
	impactBlock := in.ImpactAnalysis
	if impactBlock == "" {
		impactBlock = "No specific impact analysis provided for this case."
	}
	return fmt.Sprintf(`ROLE: Senior Australian Family Law Specialist.

STATUTORY BASIS:
%s

CLIENT'S CURRENT CASE FACTS (From Upload):
%s

CLIENT'S CURRENT CASE IMPACT ANALYSIS:
%s

CHAT HISTORY CONTEXT:
%s

RELEVANT AUSTLII PRECEDENTS & IMPACT ANALYSIS:
%s

USER QUESTION: %s

INSTRUCTIONS:
Provide a comprehensive legal analysis in the following structured format:

## Direct Answer
Provide a concise summary of the legal position addressing the user's question directly.

## Similar Decided Cases
For each AustLII precedent provided above:
- Write a bullet point explaining the judicial reasoning
- Show how the judge linked facts to a legal outcome
- Explicitly mention the 'STRATEGIC IMPACT' from the metadata

## Likely Assessment
- %s
- Predict the likely range of outcomes based on the client's specific facts
- Be specific about percentages, orders, or arrangements where appropriate

## Uncertainties & Missing Information
Identify what facts are missing that would significantly shift this prediction.

%s
[Provide a technical summary of this advice for conversation memory]`,
		in.StatuteContext,
		in.CaseSectionText,
		impactBlock,
		in.HistoryText,
		strings.Join(in.PrecedentBlocks, "\n\n---\n\n"),
		in.Question,
		topicInstruction(in.Topic),
		cacheSummarySeparator,
	)
}
