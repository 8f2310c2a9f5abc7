package service

import (
	"context"
	"log"
	"strings"

	"lawassist-backend/llm"
	"lawassist-backend/models"
)

// maxClarificationQuestions bounds a single clarification round so the
// client is never asked more than this many questions at once.
const maxClarificationQuestions = 5

// maxAnswerWords is the threshold above which clarification answers are
// condensed before being patched into the case summary.
const maxAnswerWords = 50

type factor struct {
	Name     string
	Keywords []string
}

// topicFactors lists, per topic and in priority order, the factual factors
// a case summary must cover before the topic can be answered well. A factor
// counts as present when any of its keywords appears in the summary text.
var topicFactors = map[models.Topic][]factor{
	models.TopicPropertyDivision: {
		{"asset_pool", []string{"asset", "assets", "liability", "debt", "mortgage", "value"}},
		{"contributions", []string{
			"financial", "contribution", "income", "salary", "payment",
			"non-financial", "renovation", "improvement", "un-remunerated",
			"to the welfare of the family", "homemaker", "domestic labour",
			"cooking", "cleaning", "laundry", "gardening", "caregiver",
			"childcare", "school pickup", "school dropoff", "feeding", "bathing",
		}},
		{"future_needs", []string{
			"income", "income-earning disparity", "effect of orders on income-earning capacity",
			"health", "age", "care and control of children",
			"caring responsibility for other persons", "caregiver",
			"necessary living expenses", "reasonable standard of living",
		}},
		{"existing_agreements", []string{"agreement", "bfa", "binding", "order"}},
	},
	models.TopicChildrenParenting: {
		{"child_ages", []string{"age", "school", "toddler", "teen"}},
		{"current_arrangements", []string{"currently", "live", "reside", "weekend", "schedule"}},
		{"caregiver_history", []string{"primary", "carer", "caregiver", "routine"}},
		{"availability", []string{"work", "hours", "shift", "availability", "travel"}},
		{"safety_concerns", []string{"violence", "abuse", "safety", "order"}},
		{"child_views", []string{"child", "preference", "wish", "view"}},
	},
	models.TopicSpousalMaintenance: {
		{"income_expenses", []string{"income", "expense", "budget", "cost", "pay"}},
		{"earning_capacity", []string{"work", "job", "employ", "capacity", "qualification"}},
		{"health_care", []string{"health", "illness", "disability", "care"}},
		{"relationship_length", []string{"years", "duration", "relationship", "marriage"}},
		{"standard_of_living", []string{"lifestyle", "standard", "living"}},
	},
	models.TopicFamilyViolence: {
		{"incidents", []string{"incident", "violence", "abuse", "threat", "assault"}},
		{"protection_orders", []string{"order", "avro", "intervention", "restraining"}},
		{"police_court", []string{"police", "court", "report", "charge"}},
		{"child_exposure", []string{"child", "witness", "exposed"}},
		{"safety_plan", []string{"safety", "plan", "support", "shelter"}},
	},
	models.TopicPrenupPostnup: {
		{"agreement_date", []string{"date", "signed", "before", "after"}},
		{"legal_advice", []string{"lawyer", "legal", "advice", "independent"}},
		{"financial_disclosure", []string{"disclosure", "assets", "liabilities", "full"}},
		{"pressure_duress", []string{"pressure", "duress", "coerce", "forced"}},
		{"changed_circumstances", []string{"children", "assets", "change", "major"}},
	},
}

// questionMap holds the client-facing question for each factor.
var questionMap = map[string]string{
	// Property division
	"asset_pool":              "Could you provide details about the asset pool, including values for property, superannuation, and any debts?",
	"contributions":           "Please describe both the financial contributions (like salary) and non-financial contributions (like homemaking/parenting) made by each party.",
	"future_needs":            "Are there any factors affecting future needs, such as a significant difference in income-earning capacity or health issues?",
	"existing_agreements":     "Are there any existing BFAs, child support agreements, or court orders already in place?",
	"just_equitable":          "Is there anything else that makes your proposed split 'just and equitable' in your view?",
	"living_arrangements_prop": "What are the current living arrangements for both parties post-separation?",

	// Children & parenting
	"child_ages":           "What are the ages of the children? This helps determine their developmental needs.",
	"current_arrangements": "What is the current schedule? Please describe where the children live and how much time they spend with each parent.",
	"caregiver_history":    "Who has historically been the primary caregiver for the children's daily routines?",
	"availability":         "What are the parents' work schedules or availability to care for the children during the week?",
	"safety_concerns":      "Are there any family violence or safety risks we should be aware of regarding the children's environment?",
	"child_views":          "Have the children expressed any particular wishes or views regarding their living arrangements?",
	"allegations":          "Are there any specific allegations of neglect or harm that need to be addressed?",
	"expert_evidence":      "Has there been any previous involvement from family consultants or expert reports?",

	// Spousal maintenance
	"income_expenses":     "What are your current weekly/monthly income and necessary living expenses?",
	"earning_capacity":    "What are your professional qualifications, and is there anything currently preventing you from working full-time?",
	"health_care":         "Are there any ongoing health issues or disabilities that require significant care or expense?",
	"relationship_length": "How many years were you in the relationship or marriage?",
	"standard_of_living":  "How would you describe the standard of living enjoyed during the relationship?",
	"need":                "Can you elaborate on your current financial need for maintenance?",
	"capacity_to_pay":     "Does the other party have the financial capacity to pay maintenance after meeting their own expenses?",

	// Family violence & safety
	"incidents":         "Could you describe any specific incidents of violence, threats, or coercive control?",
	"protection_orders": "Are there currently any AVOs, IVOs, or other protection orders in place?",
	"police_court":      "Have there been any police reports filed or criminal charges laid related to family violence?",
	"child_exposure":    "Were the children present during or exposed to the effects of any violent incidents?",
	"safety_plan":       "Do you currently have a safety plan or support services in place?",

	// Pre/post-nuptial agreements
	"agreement_date":        "When was the agreement signed? Was it before (Section 90B) or after (Section 90C) the marriage?",
	"legal_advice":          "Did both parties receive independent legal advice from separate lawyers before signing?",
	"financial_disclosure":  "Was there full and frank financial disclosure of all assets and liabilities before signing?",
	"pressure_duress":       "Was there any pressure, urgency, or 'unfair' circumstances surrounding the signing of the document?",
	"changed_circumstances": "Have there been major changes since signing, such as the birth of a child, that the agreement didn't account for?",
}

// topicKeywords supplies the vocabulary used to pick relevant tags when
// building the structured retrieval query for a topic.
var topicKeywords = map[models.Topic][]string{
	models.TopicPropertyDivision: {
		"asset pool", "liabilities", "superannuation", "valuations",
		"financial contributions", "non-financial contributions", "homemaker", "parenting contributions",
		"future needs", "earning capacity", "health", "age", "financial resources",
		"just and equitable", "percentage split", "initial contributions", "inheritance",
	},
	models.TopicChildrenParenting: {
		"living arrangements", "spend time", "communication", "changeover",
		"best interests", "primary carer", "parental responsibility", "decision making",
		"safety", "risk of harm", "family violence", "abuse", "neglect",
		"child's views", "wishes", "maturity", "expert reports", "family consultant",
	},
	models.TopicSpousalMaintenance: {
		"financial need", "adequately support", "capacity to pay",
		"income", "expenses", "budget", "shortfall",
		"earning capacity", "vocational skills", "health", "illness",
		"duration of marriage", "standard of living",
	},
	models.TopicFamilyViolence: {
		"incidents", "physical abuse", "emotional abuse", "coercive control",
		"protection orders", "intervention orders", "IVOs", "AVOs", "undertakings",
		"police reports", "charges", "criminal history", "witnesses",
		"impact on children", "exposure to violence", "safety planning",
	},
	models.TopicPrenupPostnup: {
		"binding financial agreement", "BFA", "pre-nuptial", "post-nuptial",
		"independent legal advice", "certificates of advice", "full disclosure",
		"duress", "undue influence", "unconscionable conduct", "pressure",
		"material change in circumstances", "hardship", "children's impact",
	},
}

// MissingFactors reports, in declared order, the factors of a topic whose
// keywords never appear in the text. Matching is case-insensitive substring.
func MissingFactors(text string, topic models.Topic) []string {
	lower := strings.ToLower(text)
	var missing []string
	for _, f := range topicFactors[topic] {
		found := false
		for _, kw := range f.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// ClarificationsForTopic checks the case summary text against the topic's
// factors and returns the missing field names with a matching client-facing
// question per field, both capped at maxClarificationQuestions.
func ClarificationsForTopic(topic models.Topic, summaryText string) (missingFields, questions []string) {
	for _, field := range MissingFactors(summaryText, topic) {
		question, ok := questionMap[field]
		if !ok {
			question = "Details about " + strings.ReplaceAll(field, "_", " ") + "?"
		}
		missingFields = append(missingFields, field)
		questions = append(questions, question)
		if len(missingFields) == maxClarificationQuestions {
			break
		}
	}
	return missingFields, questions
}

// SummarizeAnswers condenses each clarification answer longer than
// maxAnswerWords before it is written into the case summary. Condensation
// failures fall back to a hard word truncation so the patch always proceeds.
func SummarizeAnswers(ctx context.Context, completer llm.Completer, answers map[string]string) map[string]string {
	if len(answers) == 0 {
		return map[string]string{}
	}
	summarized := make(map[string]string, len(answers))
	for field, value := range answers {
		cleaned := strings.TrimSpace(value)
		if cleaned == "" {
			summarized[field] = ""
			continue
		}
		if len(strings.Fields(cleaned)) <= maxAnswerWords {
			summarized[field] = cleaned
			continue
		}

		prompt := "Summarize the following text to 50 words or fewer. " +
			"Keep concrete facts, dates, amounts, and parties. " +
			"Return only the summary.\n\nTEXT:\n" + cleaned
		summary, err := completer.Complete(ctx, prompt)
		summary = strings.TrimSpace(summary)
		if err != nil || summary == "" {
			log.Printf("Warning: failed to summarize clarification answer for %s, truncating: %v", field, err)
			summary = truncateWords(cleaned, maxAnswerWords)
		}
		summarized[field] = summary
	}
	return summarized
}

func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:maxWords], " ") + "…"
}
