package models

import (
	"encoding/json"
	"strings"
)

// Topic identifies one of the fixed legal subject categories.
type Topic string

const (
	TopicPropertyDivision   Topic = "property_division"
	TopicChildrenParenting  Topic = "children_parenting"
	TopicSpousalMaintenance Topic = "spousal_maintenance"
	TopicFamilyViolence     Topic = "family_violence_safety"
	TopicPrenupPostnup      Topic = "prenup_postnup"
	TopicOther              Topic = "other"
)

// Topics lists the classifiable legal topics (excludes "other").
func Topics() []Topic {
	return []Topic{
		TopicPropertyDivision,
		TopicChildrenParenting,
		TopicSpousalMaintenance,
		TopicFamilyViolence,
		TopicPrenupPostnup,
	}
}

// ParseTopic normalizes free text to a known topic, or TopicOther.
func ParseTopic(s string) Topic {
	t := Topic(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Topics() {
		if t == known {
			return known
		}
	}
	return TopicOther
}

// Label returns the human-readable topic name ("property_division" ->
// "Property Division").
func (t Topic) Label() string {
	parts := strings.Split(string(t), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// StringList is a summary leaf. Model output is not always well behaved, so
// it decodes null, a bare string, or a list of strings into one shape.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		single = strings.TrimSpace(single)
		if single == "" {
			*s = StringList{}
		} else {
			*s = StringList{single}
		}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		// Unknown leaf shape (object, number). Treat as absent rather than
		// failing the whole document.
		*s = StringList{}
		return nil
	}
	out := make(StringList, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	*s = out
	return nil
}

// PropertySection holds property-division fields of the case summary.
type PropertySection struct {
	AssetPool          StringList `json:"asset_pool"`
	Contributions      StringList `json:"contributions"`
	FutureNeeds        StringList `json:"future_needs"`
	JustEquitable      StringList `json:"just_equitable"`
	LivingArrangements StringList `json:"living_arrangements"`
	ExistingAgreements StringList `json:"existing_agreements"`
}

// SpousalSection holds spousal-maintenance fields.
type SpousalSection struct {
	Need               StringList `json:"need"`
	CapacityToPay      StringList `json:"capacity_to_pay"`
	StatutoryFactors   StringList `json:"statutory_factors"`
	IncomeExpenses     StringList `json:"income_expenses"`
	EarningCapacity    StringList `json:"earning_capacity"`
	HealthCare         StringList `json:"health_care"`
	RelationshipLength StringList `json:"relationship_length"`
	StandardOfLiving   StringList `json:"standard_of_living"`
}

// ParentingSection holds children-and-parenting fields.
type ParentingSection struct {
	ChildAges           StringList `json:"child_ages"`
	CurrentArrangements StringList `json:"current_arrangements"`
	CaregiverHistory    StringList `json:"caregiver_history"`
	Availability        StringList `json:"availability"`
	SafetyConcerns      StringList `json:"safety_concerns"`
	ChildViews          StringList `json:"child_views"`
	Allegations         StringList `json:"allegations"`
	ExpertEvidence      StringList `json:"expert_evidence"`
	BestInterests       StringList `json:"best_interests"`
	Orders              StringList `json:"orders"`
}

// ViolenceSection holds family-violence-and-safety fields.
type ViolenceSection struct {
	Incidents        StringList `json:"incidents"`
	ProtectionOrders StringList `json:"protection_orders"`
	PoliceCourt      StringList `json:"police_court"`
	ChildExposure    StringList `json:"child_exposure"`
	SafetyPlan       StringList `json:"safety_plan"`
}

// PrenupSection holds binding-financial-agreement fields.
type PrenupSection struct {
	AgreementDate        StringList `json:"agreement_date"`
	LegalAdvice          StringList `json:"legal_advice"`
	FinancialDisclosure  StringList `json:"financial_disclosure"`
	PressureDuress       StringList `json:"pressure_duress"`
	ChangedCircumstances StringList `json:"changed_circumstances"`
}

// ImpactSection holds the strategic impact analysis.
type ImpactSection struct {
	PivotalFindings StringList `json:"pivotal_findings"`
	StatutoryPivots StringList `json:"statutory_pivots"`
}

// CaseSummary is the canonical structured document extracted from one
// uploaded case. OutcomeOrders is a pointer: nil means "undecided matter",
// an empty list means "decided, no orders recorded".
type CaseSummary struct {
	CaseName string     `json:"case_name"`
	Court    string     `json:"court"`
	Date     string     `json:"date"`
	Parties  StringList `json:"parties"`
	Issues   StringList `json:"issues"`
	Facts    StringList `json:"facts"`

	Property           PropertySection  `json:"property"`
	SpousalMaintenance SpousalSection   `json:"spousal_maintenance"`
	Parenting          ParentingSection `json:"parenting"`
	FamilyViolence     ViolenceSection  `json:"family_violence_safety"`
	PrenupPostnup      PrenupSection    `json:"prenup_postnup"`

	OutcomeOrders    *StringList   `json:"outcome_orders"`
	ImpactAnalysis   ImpactSection `json:"impact_analysis"`
	ReasonsRationale StringList    `json:"reasons_rationale"`
	Uncertainties    StringList    `json:"uncertainties"`

	// RawSummary captures unparseable model output so nothing is lost.
	RawSummary string `json:"raw_summary,omitempty"`
}

// EmptyCaseSummary returns a well-formed placeholder document.
func EmptyCaseSummary() *CaseSummary {
	return &CaseSummary{
		Parties:          StringList{},
		Issues:           StringList{},
		Facts:            StringList{},
		OutcomeOrders:    &StringList{},
		ReasonsRationale: StringList{},
		Uncertainties:    StringList{},
	}
}

// topicField resolves a factor identifier to its list within the topic's
// section. Returns nil for unknown (topic, field) pairs.
func (c *CaseSummary) topicField(topic Topic, field string) *StringList {
	switch topic {
	case TopicPropertyDivision:
		switch field {
		case "asset_pool":
			return &c.Property.AssetPool
		case "contributions":
			return &c.Property.Contributions
		case "future_needs":
			return &c.Property.FutureNeeds
		case "just_equitable":
			return &c.Property.JustEquitable
		case "living_arrangements":
			return &c.Property.LivingArrangements
		case "existing_agreements":
			return &c.Property.ExistingAgreements
		}
	case TopicChildrenParenting:
		switch field {
		case "child_ages":
			return &c.Parenting.ChildAges
		case "current_arrangements":
			return &c.Parenting.CurrentArrangements
		case "caregiver_history":
			return &c.Parenting.CaregiverHistory
		case "availability":
			return &c.Parenting.Availability
		case "safety_concerns":
			return &c.Parenting.SafetyConcerns
		case "child_views":
			return &c.Parenting.ChildViews
		case "allegations":
			return &c.Parenting.Allegations
		case "expert_evidence":
			return &c.Parenting.ExpertEvidence
		case "best_interests":
			return &c.Parenting.BestInterests
		case "orders":
			return &c.Parenting.Orders
		}
	case TopicSpousalMaintenance:
		switch field {
		case "need":
			return &c.SpousalMaintenance.Need
		case "capacity_to_pay":
			return &c.SpousalMaintenance.CapacityToPay
		case "statutory_factors":
			return &c.SpousalMaintenance.StatutoryFactors
		case "income_expenses":
			return &c.SpousalMaintenance.IncomeExpenses
		case "earning_capacity":
			return &c.SpousalMaintenance.EarningCapacity
		case "health_care":
			return &c.SpousalMaintenance.HealthCare
		case "relationship_length":
			return &c.SpousalMaintenance.RelationshipLength
		case "standard_of_living":
			return &c.SpousalMaintenance.StandardOfLiving
		}
	case TopicFamilyViolence:
		switch field {
		case "incidents":
			return &c.FamilyViolence.Incidents
		case "protection_orders":
			return &c.FamilyViolence.ProtectionOrders
		case "police_court":
			return &c.FamilyViolence.PoliceCourt
		case "child_exposure":
			return &c.FamilyViolence.ChildExposure
		case "safety_plan":
			return &c.FamilyViolence.SafetyPlan
		}
	case TopicPrenupPostnup:
		switch field {
		case "agreement_date":
			return &c.PrenupPostnup.AgreementDate
		case "legal_advice":
			return &c.PrenupPostnup.LegalAdvice
		case "financial_disclosure":
			return &c.PrenupPostnup.FinancialDisclosure
		case "pressure_duress":
			return &c.PrenupPostnup.PressureDuress
		case "changed_circumstances":
			return &c.PrenupPostnup.ChangedCircumstances
		}
	}
	return nil
}

// AppendField appends a value to the named list under the given topic,
// preserving existing entries. Reports whether the field was recognized.
func (c *CaseSummary) AppendField(topic Topic, field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	target := c.topicField(topic, field)
	if target == nil {
		return false
	}
	*target = append(*target, value)
	return true
}

// FieldValues returns a copy of the named list under the given topic.
func (c *CaseSummary) FieldValues(topic Topic, field string) []string {
	target := c.topicField(topic, field)
	if target == nil {
		return nil
	}
	out := make([]string, len(*target))
	copy(out, *target)
	return out
}

// Marshal serializes the summary back to its stored JSON form.
func (c *CaseSummary) Marshal() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
