package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"lawassist-backend/llm"
	"lawassist-backend/models"
)

const (
	summaryTargetWords   = 1000
	summaryMaxWords      = 1200
	summaryExcerptChars  = 2000
	defaultListLimit     = 5
)

// summaryListLimits caps each summary list so one verbose field cannot
// crowd out the rest of the document.
var summaryListLimits = map[string]int{
	"facts":                 16,
	"issues":                10,
	"outcome_orders":        10,
	"reasons_rationale":     12,
	"uncertainties":         4,
	"asset_pool":            8,
	"contributions":         10,
	"future_needs":          8,
	"just_equitable":        8,
	"living_arrangements":   6,
	"existing_agreements":   6,
	"need":                  8,
	"capacity_to_pay":       8,
	"statutory_factors":     8,
	"income_expenses":       8,
	"earning_capacity":      8,
	"health_care":           6,
	"relationship_length":   3,
	"standard_of_living":    6,
	"child_ages":            6,
	"current_arrangements":  8,
	"caregiver_history":     8,
	"availability":          6,
	"safety_concerns":       8,
	"child_views":           8,
	"allegations":           8,
	"expert_evidence":       6,
	"best_interests":        8,
	"orders":                10,
	"incidents":             8,
	"protection_orders":     6,
	"police_court":          6,
	"child_exposure":        6,
	"safety_plan":           6,
	"agreement_date":        2,
	"legal_advice":          6,
	"financial_disclosure":  6,
	"pressure_duress":       6,
	"changed_circumstances": 6,
	"parties":               8,
	"pivotal_findings":      8,
	"statutory_pivots":      8,
}

// summaryListLimitsFallback is the tighter cap used when rendering the
// primary-capped summary still exceeds the word budget.
var summaryListLimitsFallback = func() map[string]int {
	limits := make(map[string]int, len(summaryListLimits))
	for k, v := range summaryListLimits {
		limits[k] = v
	}
	limits["facts"] = 10
	limits["issues"] = 6
	limits["outcome_orders"] = 6
	limits["reasons_rationale"] = 8
	limits["uncertainties"] = 3
	return limits
}()

// Section is one flattened block of the case summary, ready for embedding
// or for in-context prompting.
type Section struct {
	Name string
	Text string
}

// Summarizer turns uploaded case text into the structured summary document.
type Summarizer struct {
	completer llm.Completer
}

func NewSummarizer(completer llm.Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Generate produces a structured summary for the uploaded case text. Model
// or parse failures degrade to a placeholder document carrying a raw
// excerpt, so uploads never fail outright on a bad completion.
func (s *Summarizer) Generate(ctx context.Context, caseText string) *models.CaseSummary {
	caseText = strings.TrimSpace(caseText)

	raw, err := s.completer.Complete(ctx, buildCaseSummaryPrompt(caseText))
	if err != nil {
		log.Printf("Warning: case summary generation failed, using raw excerpt: %v", err)
		return placeholderSummary(caseText, "Summary generation failed; using raw excerpt.")
	}

	summary, err := ParseCaseSummary(raw)
	if err != nil {
		log.Printf("Warning: case summary JSON parse failed, using raw excerpt: %v", err)
		return placeholderSummary(caseText, "Summary JSON parse failed; using raw excerpt.")
	}

	applyListLimits(summary, summaryListLimits)
	if renderedWordCount(summary) > summaryMaxWords {
		applyListLimits(summary, summaryListLimitsFallback)
		shrinkToMaxWords(summary, summaryMaxWords)
	}

	// Uploads are often hypotheticals. Keep outcome_orders null unless the
	// text itself reads like a decided judgment, so a predicted split is
	// never persisted as if it were ordered.
	if !looksDecided(caseText) {
		summary.OutcomeOrders = nil
	}
	return summary
}

// ParseCaseSummary decodes a model completion into the canonical summary
// document. Markdown code fences around the JSON are tolerated.
func ParseCaseSummary(raw string) (*models.CaseSummary, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var summary models.CaseSummary
	if err := json.Unmarshal([]byte(cleaned), &summary); err != nil {
		return nil, fmt.Errorf("decode case summary: %w", err)
	}
	return &summary, nil
}

func placeholderSummary(caseText, uncertainty string) *models.CaseSummary {
	summary := models.EmptyCaseSummary()
	if caseText != "" {
		excerpt := caseText
		if len(excerpt) > summaryExcerptChars {
			excerpt = excerpt[:summaryExcerptChars]
		}
		summary.Facts = models.StringList{excerpt}
	}
	summary.Uncertainties = models.StringList{uncertainty}
	return summary
}

// neutralCitationRe matches neutral citations like "[2023] FedCFamC1F 123".
var neutralCitationRe = regexp.MustCompile(`\[\d{4}\]\s*[a-z]{2,}\s*\d+`)

var decidedMarkers = []string{
	"final orders",
	"orders made",
	"the court orders",
	"the court ordered",
	"it is ordered",
	"judgment",
	"reasons for judgment",
	"appeal allowed",
	"appeal dismissed",
	"orders of the court",
	"held that",
}

func looksDecided(text string) bool {
	lower := strings.ToLower(text)
	if neutralCitationRe.MatchString(lower) {
		return true
	}
	for _, marker := range decidedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

type listNode struct {
	key  string
	list *models.StringList
}

// listNodes enumerates every capped list in the summary with its JSON key.
// OutcomeOrders is excluded when nil so "undecided" survives the limit pass.
func listNodes(s *models.CaseSummary) []listNode {
	nodes := []listNode{
		{"parties", &s.Parties},
		{"issues", &s.Issues},
		{"facts", &s.Facts},
		{"asset_pool", &s.Property.AssetPool},
		{"contributions", &s.Property.Contributions},
		{"future_needs", &s.Property.FutureNeeds},
		{"just_equitable", &s.Property.JustEquitable},
		{"living_arrangements", &s.Property.LivingArrangements},
		{"existing_agreements", &s.Property.ExistingAgreements},
		{"need", &s.SpousalMaintenance.Need},
		{"capacity_to_pay", &s.SpousalMaintenance.CapacityToPay},
		{"statutory_factors", &s.SpousalMaintenance.StatutoryFactors},
		{"income_expenses", &s.SpousalMaintenance.IncomeExpenses},
		{"earning_capacity", &s.SpousalMaintenance.EarningCapacity},
		{"health_care", &s.SpousalMaintenance.HealthCare},
		{"relationship_length", &s.SpousalMaintenance.RelationshipLength},
		{"standard_of_living", &s.SpousalMaintenance.StandardOfLiving},
		{"child_ages", &s.Parenting.ChildAges},
		{"current_arrangements", &s.Parenting.CurrentArrangements},
		{"caregiver_history", &s.Parenting.CaregiverHistory},
		{"availability", &s.Parenting.Availability},
		{"safety_concerns", &s.Parenting.SafetyConcerns},
		{"child_views", &s.Parenting.ChildViews},
		{"allegations", &s.Parenting.Allegations},
		{"expert_evidence", &s.Parenting.ExpertEvidence},
		{"best_interests", &s.Parenting.BestInterests},
		{"orders", &s.Parenting.Orders},
		{"incidents", &s.FamilyViolence.Incidents},
		{"protection_orders", &s.FamilyViolence.ProtectionOrders},
		{"police_court", &s.FamilyViolence.PoliceCourt},
		{"child_exposure", &s.FamilyViolence.ChildExposure},
		{"safety_plan", &s.FamilyViolence.SafetyPlan},
		{"agreement_date", &s.PrenupPostnup.AgreementDate},
		{"legal_advice", &s.PrenupPostnup.LegalAdvice},
		{"financial_disclosure", &s.PrenupPostnup.FinancialDisclosure},
		{"pressure_duress", &s.PrenupPostnup.PressureDuress},
		{"changed_circumstances", &s.PrenupPostnup.ChangedCircumstances},
		{"pivotal_findings", &s.ImpactAnalysis.PivotalFindings},
		{"statutory_pivots", &s.ImpactAnalysis.StatutoryPivots},
		{"reasons_rationale", &s.ReasonsRationale},
		{"uncertainties", &s.Uncertainties},
	}
	if s.OutcomeOrders != nil {
		nodes = append(nodes, listNode{"outcome_orders", s.OutcomeOrders})
	}
	return nodes
}

func applyListLimits(s *models.CaseSummary, limits map[string]int) {
	for _, node := range listNodes(s) {
		limit, ok := limits[node.key]
		if !ok {
			limit = defaultListLimit
		}
		if len(*node.list) > limit {
			*node.list = (*node.list)[:limit]
		}
	}
}

// shrinkToMaxWords repeatedly drops the last entry of the longest list
// until the rendered summary fits, or no list has more than one entry.
func shrinkToMaxWords(s *models.CaseSummary, maxWords int) {
	for renderedWordCount(s) > maxWords {
		var longest *listNode
		for _, node := range listNodes(s) {
			node := node
			if len(*node.list) > 1 && (longest == nil || len(*node.list) > len(*longest.list)) {
				longest = &node
			}
		}
		if longest == nil {
			return
		}
		*longest.list = (*longest.list)[:len(*longest.list)-1]
	}
}

var wordRe = regexp.MustCompile(`\b\w+(?:'\w+)?\b`)

func countWords(text string) int {
	return len(wordRe.FindAllString(text, -1))
}

func renderedWordCount(s *models.CaseSummary) int {
	var parts []string
	for _, section := range SectionsFromSummary(s, true) {
		parts = append(parts, section.Text)
	}
	return countWords(strings.Join(parts, "\n"))
}

// SectionsFromSummary flattens the structured summary into labelled text
// blocks, one per indexable section. Empty sections are omitted. Outcome
// and reasons can be excluded so hypothetical uploads don't leak a
// hallucinated result into retrieval context.
func SectionsFromSummary(s *models.CaseSummary, includeOutcomeReasons bool) []Section {
	var sections []Section

	add := func(name string, lines []string) {
		if len(lines) > 0 {
			sections = append(sections, Section{Name: name, Text: strings.Join(lines, "\n")})
		}
	}
	items := func(lines *[]string, label string, values models.StringList) {
		for _, v := range values {
			if v != "" {
				*lines = append(*lines, "- "+label+": "+v)
			}
		}
	}

	var factLines []string
	items(&factLines, "Fact", s.Facts)
	add("facts", factLines)

	var issueLines []string
	items(&issueLines, "Issue", s.Issues)
	add("issues", issueLines)

	var propLines []string
	items(&propLines, "Asset Pool", s.Property.AssetPool)
	items(&propLines, "Contributions", s.Property.Contributions)
	items(&propLines, "Future Needs", s.Property.FutureNeeds)
	items(&propLines, "Just & Equitable", s.Property.JustEquitable)
	add(string(models.TopicPropertyDivision), propLines)

	var smLines []string
	items(&smLines, "Need", s.SpousalMaintenance.Need)
	items(&smLines, "Capacity to Pay", s.SpousalMaintenance.CapacityToPay)
	items(&smLines, "Statutory Factors", s.SpousalMaintenance.StatutoryFactors)
	add(string(models.TopicSpousalMaintenance), smLines)

	var parentingLines []string
	items(&parentingLines, "Child Ages", s.Parenting.ChildAges)
	items(&parentingLines, "Current Arrangements", s.Parenting.CurrentArrangements)
	items(&parentingLines, "Safety Concerns", s.Parenting.SafetyConcerns)
	items(&parentingLines, "Best Interests", s.Parenting.BestInterests)
	add(string(models.TopicChildrenParenting), parentingLines)

	var violenceLines []string
	items(&violenceLines, "Incidents", s.FamilyViolence.Incidents)
	items(&violenceLines, "Protection Orders", s.FamilyViolence.ProtectionOrders)
	add(string(models.TopicFamilyViolence), violenceLines)

	var prenupLines []string
	items(&prenupLines, "Agreement Date", s.PrenupPostnup.AgreementDate)
	items(&prenupLines, "Legal Advice", s.PrenupPostnup.LegalAdvice)
	items(&prenupLines, "Financial Disclosure", s.PrenupPostnup.FinancialDisclosure)
	items(&prenupLines, "Pressure/Duress", s.PrenupPostnup.PressureDuress)
	items(&prenupLines, "Changed Circumstances", s.PrenupPostnup.ChangedCircumstances)
	add(string(models.TopicPrenupPostnup), prenupLines)

	if includeOutcomeReasons {
		var outcomeLines []string
		if s.OutcomeOrders != nil {
			items(&outcomeLines, "Outcome", *s.OutcomeOrders)
		}
		add("outcome_orders", outcomeLines)

		var reasonLines []string
		items(&reasonLines, "Reasons", s.ReasonsRationale)
		add("reasons_rationale", reasonLines)
	}

	var impactLines []string
	items(&impactLines, "Pivotal Finding", s.ImpactAnalysis.PivotalFindings)
	items(&impactLines, "Statutory Pivot", s.ImpactAnalysis.StatutoryPivots)
	add("impact_analysis", impactLines)

	var uncertaintyLines []string
	items(&uncertaintyLines, "Uncertainties", s.Uncertainties)
	add("uncertainties", uncertaintyLines)

	if s.RawSummary != "" {
		add("raw_summary", []string{"- RawSummary: " + s.RawSummary})
	}
	return sections
}

// SectionMap renders the summary as section-name -> text, the shape the
// cache keeps for in-context prompting.
func SectionMap(s *models.CaseSummary, includeOutcomeReasons bool) map[string]string {
	out := make(map[string]string)
	for _, section := range SectionsFromSummary(s, includeOutcomeReasons) {
		out[section.Name] = section.Text
	}
	return out
}

func buildCaseSummaryPrompt(caseText string) string {
	return fmt.Sprintf(`You are a legal analyst specializing in Australian family law (AustLII decisions).
Read the provided case text and produce a STRICT JSON summary for retrieval.

OUTPUT RULES:
- Output ONLY valid JSON. No markdown, no commentary.
- Use double quotes for all keys and string values.
- If a field is not stated, use an empty list or empty string as specified.
- Do not invent details. Do not quote long passages.
- IMPORTANT (Undecided / Hypothetical uploads): If the text does NOT contain actual court orders or a decided outcome,
  set "outcome_orders" to null. Do NOT provide a "likely outcome" or predicted split as if it were ordered.
- Target length is around %d words when rendered to text; allow up to %d words for complex cases.

TOPICS TO COVER (derive from the case text):
- property_division: Property division (factors: asset_pool, contributions(include domestic/caregiver details), future_needs, living_arrangements, existing_agreements)
- children_parenting: Children custody & parenting (factors: child_ages, current_arrangements, caregiver_history, availability, safety_concerns, child_views)
- spousal_maintenance: Spousal maintenance (factors: income_expenses, earning_capacity, health_care, relationship_length, standard_of_living)
- family_violence_safety: Family violence & safety (factors: incidents, protection_orders, police_court, child_exposure, safety_plan)
- prenup_postnup: Pre/post-nuptial agreement (factors: agreement_date, legal_advice, financial_disclosure, pressure_duress, changed_circumstances)
- impact_analysis: Critical turning points (factors: pivotal_findings, statutory_pivots).

ADDITIONAL REQUIRED DETAILS (when applicable):
- Property cases: what was included/excluded in the asset pool; each party's contributions; each party's future needs; what was just and equitable and the final percentage split.
- Spousal maintenance: the claimant's need, the other party's capacity to pay, and the factors relied on.
- Parenting: allegations of abuse/neglect/family violence and how they were determined; what family consultant/experts recommended; what arrangements were found to be in the child's best interests.
- Impact Analysis: Identify specific behaviors or evidence (pivotal findings) and specific sections of the Family Law Act or Court Rules (statutory pivots) that fundamentally shifted the judge's decision.
- Outcome: what the court ordered to determine the controversy or legal dispute.
- Reasons: the reasons for the decision and orders.

DECIDED vs UNDECIDED RULE:
- If the text contains explicit indicators of a decided judgment (e.g., "Final Orders", "The Court orders", "It is ordered",
  "Judgment", "Reasons for judgment", or a neutral citation like "[YYYY] ... N"), you may populate "outcome_orders".
- Otherwise, set "outcome_orders" to null.

JSON SCHEMA (keys required):
{
  "case_name": "string",
  "court": "string",
  "date": "string",
  "parties": ["string"],
  "issues": ["string"],
  "facts": ["string"],
  "property": {"asset_pool": ["string"], "contributions": ["string"], "future_needs": ["string"], "just_equitable": ["string"], "living_arrangements": ["string"], "existing_agreements": ["string"]},
  "spousal_maintenance": {"need": ["string"], "capacity_to_pay": ["string"], "statutory_factors": ["string"], "income_expenses": ["string"], "earning_capacity": ["string"], "health_care": ["string"], "relationship_length": ["string"], "standard_of_living": ["string"]},
  "parenting": {"child_ages": ["string"], "current_arrangements": ["string"], "caregiver_history": ["string"], "availability": ["string"], "safety_concerns": ["string"], "child_views": ["string"], "allegations": ["string"], "expert_evidence": ["string"], "best_interests": ["string"], "orders": ["string"]},
  "family_violence_safety": {"incidents": ["string"], "protection_orders": ["string"], "police_court": ["string"], "child_exposure": ["string"], "safety_plan": ["string"]},
  "prenup_postnup": {"agreement_date": ["string"], "legal_advice": ["string"], "financial_disclosure": ["string"], "pressure_duress": ["string"], "changed_circumstances": ["string"]},
  "outcome_orders": null,
  "impact_analysis": {"pivotal_findings": ["string"], "statutory_pivots": ["string"]},
  "reasons_rationale": ["string"],
  "uncertainties": ["string"]
}

GUIDANCE:
- facts: concise, neutral, abstracted facts (one fact per item).
- issues: legal issues in dispute (one per item).
- property: group assets, use totals or ranges if stated.
- outcome_orders: final orders and outcomes; Must be null if no final determination is present.
- impact_analysis: For undecided cases, focus on thresholds (what must be proven). For decided cases, focus on ratios (why it was decided).
- reasons_rationale: key reasons and credibility findings if mentioned.

INPUT:
%s`, summaryTargetWords, summaryMaxWords, caseText)
}
