package rules

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// goodProfile passes the standard knockout rules comfortably.
func goodProfile() *domain.ApplicantProfile {
	return &domain.ApplicantProfile{
		SimahScore:      intPtr(720),
		ActiveLoans:     intPtr(1),
		Defaults:        intPtr(0),
		AvgBankBalance:  floatPtr(25000),
		EstimatedIncome: floatPtr(15000),
		SpendingRatio:   floatPtr(0.3),
		Age:             intPtr(35),
		DBRObligations:  floatPtr(30),
	}
}

func standardKnockout() *domain.KnockoutRuleSet {
	return &domain.KnockoutRuleSet{
		MinimumSimahScore:            550,
		MaximumActiveDefaults:        2,
		MinimumAverageBalance:        5000,
		MinimumMonthlyIncome:         3000,
		MaximumSpendingToIncomeRatio: 0.85,
		MinimumAge:                   21,
	}
}

// standardScoring has a maximum attainable score of 120.
func standardScoring() *domain.ScoringRuleSet {
	return &domain.ScoringRuleSet{
		SimahScore: []domain.RangeRule{
			{Min: 700, Max: nil, Points: 30},
			{Min: 600, Max: floatPtr(699), Points: 20},
			{Min: 0, Max: floatPtr(599), Points: 5},
		},
		ActiveLoans: []domain.CountRule{
			{Count: 2, Points: 10},
			{Count: 5, Points: 5},
		},
		Defaults: []domain.CountRule{
			{Count: 0, Points: 20},
			{Count: 1, Points: 5},
		},
		AvgBankBalance: []domain.RangeRule{
			{Min: 20000, Max: nil, Points: 20},
			{Min: 5000, Max: floatPtr(19999.99), Points: 10},
		},
		EstimatedMonthlyIncome: []domain.RangeRule{
			{Min: 10000, Max: nil, Points: 20},
			{Min: 3000, Max: floatPtr(9999.99), Points: 10},
		},
		SpendingToIncomeRatio: []domain.CountRule{
			{Count: 0.4, Points: 20},
			{Count: 0.7, Points: 10},
		},
	}
}

func standardThresholds() *domain.RiskRatingThresholds {
	return &domain.RiskRatingThresholds{RatingRanges: []domain.RatingRange{
		{Rating: domain.RatingA, MinScore: 90, MaxScore: 100},
		{Rating: domain.RatingB, MinScore: 70, MaxScore: 89},
		{Rating: domain.RatingC, MinScore: 50, MaxScore: 69},
		{Rating: domain.RatingD, MinScore: 30, MaxScore: 49},
		{Rating: domain.RatingE, MinScore: 0, MaxScore: 29},
	}}
}

func standardOffers() *domain.LoanOfferRanges {
	return &domain.LoanOfferRanges{RatingRanges: []domain.OfferRange{
		{Rating: domain.RatingA, MinimumAmount: 300000, MaximumAmount: 500000},
		{Rating: domain.RatingB, MinimumAmount: 150000, MaximumAmount: 300000},
		{Rating: domain.RatingC, MinimumAmount: 75000, MaximumAmount: 150000},
		{Rating: domain.RatingD, MinimumAmount: 25000, MaximumAmount: 75000},
		{Rating: domain.RatingE, MinimumAmount: 10000, MaximumAmount: 25000},
	}}
}

func standardFraud() *domain.FraudDetectionRuleSet {
	return &domain.FraudDetectionRuleSet{
		MaxUnrelatedIncomingTransactions:    5,
		MaxSuddenDepositMultiple:            3,
		MinimumAccountAge:                   90,
		MaxAllowedNoExpensePeriod:           45,
		HighBalanceWithoutActivityThreshold: 100000,
	}
}
