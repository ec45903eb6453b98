package configstore

import (
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func ptr(v float64) *float64 { return &v }

// Defaults returns the configuration seeded into an empty store.
func Defaults() *domain.ConfigSnapshot {
	return &domain.ConfigSnapshot{
		Knockout: domain.KnockoutRuleSet{
			MinimumSimahScore:            550,
			MaximumActiveDefaults:        2,
			MinimumAverageBalance:        5000,
			MinimumMonthlyIncome:         3000,
			MaximumSpendingToIncomeRatio: 0.85,
			MinimumAge:                   21,
		},
		Scoring: domain.ScoringRuleSet{
			SimahScore: []domain.RangeRule{
				{Min: 750, Points: 30},
				{Min: 650, Max: ptr(749), Points: 20},
				{Min: 550, Max: ptr(649), Points: 10},
				{Min: 0, Max: ptr(549), Points: 0},
			},
			ActiveLoans: []domain.CountRule{
				{Count: 0, Points: 15},
				{Count: 2, Points: 10},
				{Count: 4, Points: 5},
			},
			Defaults: []domain.CountRule{
				{Count: 0, Points: 20},
				{Count: 1, Points: 5},
			},
			AvgBankBalance: []domain.RangeRule{
				{Min: 50000, Points: 15},
				{Min: 20000, Max: ptr(49999.99), Points: 10},
				{Min: 5000, Max: ptr(19999.99), Points: 5},
			},
			EstimatedMonthlyIncome: []domain.RangeRule{
				{Min: 20000, Points: 10},
				{Min: 10000, Max: ptr(19999.99), Points: 7},
				{Min: 3000, Max: ptr(9999.99), Points: 3},
			},
			SpendingToIncomeRatio: []domain.CountRule{
				{Count: 0.3, Points: 10},
				{Count: 0.5, Points: 6},
				{Count: 0.7, Points: 3},
			},
		},
		RiskRatings: domain.RiskRatingThresholds{RatingRanges: []domain.RatingRange{
			{Rating: domain.RatingA, MinScore: 90, MaxScore: 100},
			{Rating: domain.RatingB, MinScore: 70, MaxScore: 89},
			{Rating: domain.RatingC, MinScore: 50, MaxScore: 69},
			{Rating: domain.RatingD, MinScore: 30, MaxScore: 49},
			{Rating: domain.RatingE, MinScore: 0, MaxScore: 29},
		}},
		LoanOffers: domain.LoanOfferRanges{RatingRanges: []domain.OfferRange{
			{Rating: domain.RatingA, MinimumAmount: 300000, MaximumAmount: 500000},
			{Rating: domain.RatingB, MinimumAmount: 150000, MaximumAmount: 300000},
			{Rating: domain.RatingC, MinimumAmount: 75000, MaximumAmount: 150000},
			{Rating: domain.RatingD, MinimumAmount: 25000, MaximumAmount: 75000},
			{Rating: domain.RatingE, MinimumAmount: 10000, MaximumAmount: 25000},
		}},
		DBR: domain.DBRSettings{MaximumDBRPercentage: 65},
		Fraud: domain.FraudDetectionRuleSet{
			MaxUnrelatedIncomingTransactions:    5,
			MaxSuddenDepositMultiple:            3,
			MinimumAccountAge:                   90,
			MaxAllowedNoExpensePeriod:           45,
			HighBalanceWithoutActivityThreshold: 100000,
		},
		Insights: domain.InsightMessages{
			PositiveInsights: []domain.InsightRule{
				{Message: "Excellent credit bureau score.", Trigger: domain.Trigger{Field: domain.FieldSimahScore, Operator: domain.OpGreaterEqual, Value: 750.0}},
				{Message: "No defaults on record.", Trigger: domain.Trigger{Field: domain.FieldDefaults, Operator: domain.OpEqual, Value: 0.0}},
				{Message: "Healthy spending relative to income.", Trigger: domain.Trigger{Field: domain.FieldSpendingRatio, Operator: domain.OpLessEqual, Value: 0.3}},
			},
			NegativeInsights: []domain.InsightRule{
				{Message: "Multiple active loans.", Trigger: domain.Trigger{Field: domain.FieldActiveLoans, Operator: domain.OpGreater, Value: 2.0}},
				{Message: "High share of income already committed to debt.", Trigger: domain.Trigger{Field: domain.FieldDBRObligations, Operator: domain.OpGreater, Value: 50.0}},
				{Message: "Spending close to income.", Trigger: domain.Trigger{Field: domain.FieldSpendingRatio, Operator: domain.OpGreater, Value: 0.7}},
			},
			AlertInsights: []domain.InsightRule{
				{Message: "Applicant has a default on record.", Trigger: domain.Trigger{Field: domain.FieldDefaults, Operator: domain.OpGreaterEqual, Value: 1.0}},
				{Message: "Debt obligations not declared.", Trigger: domain.Trigger{Field: domain.FieldDBRObligations, Operator: domain.OpNotExists}},
			},
		},
	}
}

// payload returns the aggregate of kind from s, encoded for storage.
func payload(s *domain.ConfigSnapshot, kind domain.ConfigKind) (json.RawMessage, error) {
	var v any
	switch kind {
	case domain.ConfigKnockout:
		v = s.Knockout
	case domain.ConfigScoring:
		v = s.Scoring
	case domain.ConfigRiskRatings:
		v = s.RiskRatings
	case domain.ConfigLoanOffers:
		v = s.LoanOffers
	case domain.ConfigDBR:
		v = s.DBR
	case domain.ConfigFraud:
		v = s.Fraud
	case domain.ConfigInsights:
		v = s.Insights
	default:
		return nil, fmt.Errorf("unknown config kind: %s", kind)
	}
	return json.Marshal(v)
}
