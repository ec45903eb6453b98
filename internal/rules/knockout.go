package rules

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Knockout violation messages.
const (
	MsgSimahBelowMinimum    = "SIMAH score below minimum."
	MsgDefaultsAtMaximum    = "Active defaults at or above maximum."
	MsgBalanceBelowMinimum  = "Average bank balance below minimum."
	MsgIncomeBelowMinimum   = "Monthly income below minimum."
	MsgSpendingAboveMaximum = "Spending to income ratio above maximum."
	MsgAgeBelowMinimum      = "Applicant below minimum age."
	MsgDBRAboveMaximum      = "Debt burden ratio above maximum."
)

// KnockoutFields are the attributes the knockout stage reads.
var KnockoutFields = []string{
	domain.FieldSimahScore,
	domain.FieldDefaults,
	domain.FieldAvgBankBalance,
	domain.FieldEstimatedIncome,
	domain.FieldSpendingRatio,
	domain.FieldAge,
}

type knockoutCheck struct {
	name    string
	message string
	failed  func(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) bool
}

var knockoutChecks = []knockoutCheck{
	{
		name:    "minimumSimahScore",
		message: MsgSimahBelowMinimum,
		failed: func(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) bool {
			return float64(*p.SimahScore) < r.MinimumSimahScore
		},
	},
	{
		name:    "maximumActiveDefaults",
		message: MsgDefaultsAtMaximum,
		failed: func(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) bool {
			return float64(*p.Defaults) >= r.MaximumActiveDefaults
		},
	},
	{
		name:    "minimumAverageBalance",
		message: MsgBalanceBelowMinimum,
		failed: func(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) bool {
			return *p.AvgBankBalance < r.MinimumAverageBalance
		},
	},
	{
		name:    "minimumMonthlyIncome",
		message: MsgIncomeBelowMinimum,
		failed: func(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) bool {
			return *p.EstimatedIncome < r.MinimumMonthlyIncome
		},
	},
	{
		name:    "maximumSpendingToIncomeRatio",
		message: MsgSpendingAboveMaximum,
		failed: func(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) bool {
			return *p.SpendingRatio > r.MaximumSpendingToIncomeRatio
		},
	},
	{
		name:    "minimumAge",
		message: MsgAgeBelowMinimum,
		failed: func(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) bool {
			return float64(*p.Age) < r.MinimumAge
		},
	},
}

// CheckKnockout runs every knockout check; it never stops at the first
// failure so the details list all violations. The names of the violated
// checks are returned alongside for metrics.
func CheckKnockout(p *domain.ApplicantProfile, r *domain.KnockoutRuleSet) (domain.KnockoutResult, []string, error) {
	if missing := p.Missing(KnockoutFields...); len(missing) > 0 {
		return domain.KnockoutResult{}, nil, domain.MissingFieldError(missing...)
	}

	details := []string{}
	var violated []string
	for _, c := range knockoutChecks {
		if c.failed(p, r) {
			details = append(details, c.message)
			violated = append(violated, c.name)
		}
	}
	return domain.KnockoutResult{Passed: len(details) == 0, Details: details}, violated, nil
}
