package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Rating is a risk rating letter. A is the best, E the worst.
type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
	RatingE Rating = "E"
)

// Valid reports whether r is one of A..E.
func (r Rating) Valid() bool {
	switch r {
	case RatingA, RatingB, RatingC, RatingD, RatingE:
		return true
	}
	return false
}

// KnockoutRuleSet holds the hard eligibility thresholds.
type KnockoutRuleSet struct {
	MinimumSimahScore            float64 `json:"minimumSimahScore"`
	MaximumActiveDefaults        float64 `json:"maximumActiveDefaults"`
	MinimumAverageBalance        float64 `json:"minimumAverageBalance"`
	MinimumMonthlyIncome         float64 `json:"minimumMonthlyIncome"`
	MaximumSpendingToIncomeRatio float64 `json:"maximumSpendingToIncomeRatio"`
	MinimumAge                   float64 `json:"minimumAge"`
}

// RangeRule awards points when min <= value and (max is nil or value <= max).
type RangeRule struct {
	Min    float64  `json:"min"`
	Max    *float64 `json:"max"`
	Points float64  `json:"points"`
}

// Contains reports whether v falls inside the rule's bounds.
func (r RangeRule) Contains(v float64) bool {
	return r.Min <= v && (r.Max == nil || v <= *r.Max)
}

// CountRule awards points when value <= count.
type CountRule struct {
	Count  float64 `json:"count"`
	Points float64 `json:"points"`
}

// ScoringRuleSet holds the per-category point tables.
type ScoringRuleSet struct {
	SimahScore             []RangeRule `json:"simahScore"`
	ActiveLoans            []CountRule `json:"activeLoans"`
	Defaults               []CountRule `json:"defaults"`
	AvgBankBalance         []RangeRule `json:"avgBankBalance"`
	EstimatedMonthlyIncome []RangeRule `json:"estimatedMonthlyIncome"`
	SpendingToIncomeRatio  []CountRule `json:"spendingToIncomeRatio"`
}

// RatingRange maps an inclusive normalized-score band to a rating.
type RatingRange struct {
	Rating   Rating  `json:"rating"`
	MinScore float64 `json:"minScore"`
	MaxScore float64 `json:"maxScore"`
}

// RiskRatingThresholds holds the rating bands.
type RiskRatingThresholds struct {
	RatingRanges []RatingRange `json:"ratingRanges"`
}

// Band returns the band configured for a rating.
func (t *RiskRatingThresholds) Band(r Rating) (RatingRange, bool) {
	for _, rr := range t.RatingRanges {
		if rr.Rating == r {
			return rr, true
		}
	}
	return RatingRange{}, false
}

// OfferRange is the loan amount range granted to a rating.
type OfferRange struct {
	Rating        Rating  `json:"rating"`
	MinimumAmount float64 `json:"minimumAmount"`
	MaximumAmount float64 `json:"maximumAmount"`
}

// LoanOfferRanges holds one offer range per rating.
type LoanOfferRanges struct {
	RatingRanges []OfferRange `json:"ratingRanges"`
}

// DBRSettings holds the debt burden ratio ceiling.
type DBRSettings struct {
	MaximumDBRPercentage float64 `json:"maximumDBRPercentage"`
}

// FraudDetectionRuleSet holds the fraud heuristic thresholds.
type FraudDetectionRuleSet struct {
	MaxUnrelatedIncomingTransactions    float64 `json:"maxUnrelatedIncomingTransactions"`
	MaxSuddenDepositMultiple            float64 `json:"maxSuddenDepositMultiple"`
	MinimumAccountAge                   float64 `json:"minimumAccountAge"`         // days
	MaxAllowedNoExpensePeriod           float64 `json:"maxAllowedNoExpensePeriod"` // days
	HighBalanceWithoutActivityThreshold float64 `json:"highBalanceWithoutActivityThreshold"`
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpExists       Operator = "exists"
	OpNotExists    Operator = "not_exists"
)

// Valid reports whether op is supported.
func (op Operator) Valid() bool {
	switch op {
	case OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual, OpNotEqual, OpExists, OpNotExists:
		return true
	}
	return false
}

// Unary reports whether op ignores the comparison value.
func (op Operator) Unary() bool {
	return op == OpExists || op == OpNotExists
}

// Trigger is the condition attached to an insight.
type Trigger struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`

	// Raw keeps a compact trigger string that could not be parsed.
	Raw string `json:"-"`
}

// UnmarshalJSON accepts either the object form or the compact string form
// "field operator value". An unparseable string is kept in Raw so the rule
// can be skipped with a warning instead of failing the whole aggregate.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = ParseTrigger(s)
		return nil
	}
	type plain Trigger
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Trigger(p)
	return nil
}

// ParseTrigger parses the compact "field operator value" form.
func ParseTrigger(s string) Trigger {
	parts := strings.Fields(s)
	switch {
	case len(parts) == 2 && Operator(parts[1]).Unary():
		return Trigger{Field: parts[0], Operator: Operator(parts[1])}
	case len(parts) >= 3:
		return Trigger{Field: parts[0], Operator: Operator(parts[1]), Value: strings.Join(parts[2:], " ")}
	}
	return Trigger{Raw: s}
}

// InsightRule emits Message when Trigger holds for the applicant.
type InsightRule struct {
	Message string  `json:"message"`
	Trigger Trigger `json:"trigger"`
}

// InsightMessages groups insight rules by polarity.
type InsightMessages struct {
	PositiveInsights []InsightRule `json:"positiveInsights"`
	NegativeInsights []InsightRule `json:"negativeInsights"`
	AlertInsights    []InsightRule `json:"alertInsights"`
}

// ConfigKind names a configuration aggregate.
type ConfigKind string

const (
	ConfigKnockout    ConfigKind = "knockout-rules"
	ConfigScoring     ConfigKind = "scoring-rules"
	ConfigRiskRatings ConfigKind = "risk-rating-thresholds"
	ConfigLoanOffers  ConfigKind = "loan-offer-ranges"
	ConfigDBR         ConfigKind = "dbr-settings"
	ConfigFraud       ConfigKind = "fraud-detection-rules"
	ConfigInsights    ConfigKind = "insight-messages"
)

// ConfigKinds lists every aggregate.
var ConfigKinds = []ConfigKind{
	ConfigKnockout,
	ConfigScoring,
	ConfigRiskRatings,
	ConfigLoanOffers,
	ConfigDBR,
	ConfigFraud,
	ConfigInsights,
}

// Valid reports whether k names a known aggregate.
func (k ConfigKind) Valid() bool {
	for _, c := range ConfigKinds {
		if c == k {
			return true
		}
	}
	return false
}

// ConfigRecord is a stored version of one aggregate.
type ConfigRecord struct {
	Kind      ConfigKind      `json:"kind"`
	Version   int             `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ConfigSnapshot is the immutable set of aggregates one evaluation runs
// against.
type ConfigSnapshot struct {
	Knockout    KnockoutRuleSet       `json:"knockoutRules"`
	Scoring     ScoringRuleSet        `json:"scoringRules"`
	RiskRatings RiskRatingThresholds  `json:"riskRatingThresholds"`
	LoanOffers  LoanOfferRanges       `json:"loanOfferRanges"`
	DBR         DBRSettings           `json:"dbrSettings"`
	Fraud       FraudDetectionRuleSet `json:"fraudDetectionRules"`
	Insights    InsightMessages       `json:"insightMessages"`

	Versions map[ConfigKind]int `json:"versions"`
	TakenAt  time.Time          `json:"takenAt"`
}
