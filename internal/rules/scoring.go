package rules

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ScoringFields are the attributes the scoring stage reads.
var ScoringFields = []string{
	domain.FieldSimahScore,
	domain.FieldActiveLoans,
	domain.FieldDefaults,
	domain.FieldAvgBankBalance,
	domain.FieldEstimatedIncome,
	domain.FieldSpendingRatio,
}

type categoryKind int

const (
	rangeCategory categoryKind = iota
	countCategory
)

// category is one scoring table bound to the applicant field it reads.
type category struct {
	name   string
	field  string
	kind   categoryKind
	ranges []domain.RangeRule
	counts []domain.CountRule
}

func (c category) empty() bool {
	return len(c.ranges) == 0 && len(c.counts) == 0
}

// maxPoints is the best award the category can give.
func (c category) maxPoints() float64 {
	best := math.Inf(-1)
	for _, r := range c.ranges {
		best = math.Max(best, r.Points)
	}
	for _, r := range c.counts {
		best = math.Max(best, r.Points)
	}
	return best
}

// award returns the points for v and whether a rule matched.
func (c category) award(v float64, policy domain.DecisionPolicy) (float64, bool) {
	if c.kind == rangeCategory {
		// RangeStrict tables are overlap-free after validation, so first
		// match is also the only match.
		for _, r := range c.ranges {
			if r.Contains(v) {
				return r.Points, true
			}
		}
		return 0, false
	}

	if policy.Count == domain.CountSmallestCeiling {
		var (
			best  domain.CountRule
			found bool
		)
		for _, r := range c.counts {
			if v <= r.Count && (!found || r.Count < best.Count) {
				best, found = r, true
			}
		}
		if !found {
			return 0, false
		}
		return best.Points, true
	}

	for _, r := range c.counts {
		if v <= r.Count {
			return r.Points, true
		}
	}
	return 0, false
}

func scoringCategories(rs *domain.ScoringRuleSet) []category {
	return []category{
		{name: "simahScore", field: domain.FieldSimahScore, kind: rangeCategory, ranges: rs.SimahScore},
		{name: "activeLoans", field: domain.FieldActiveLoans, kind: countCategory, counts: rs.ActiveLoans},
		{name: "defaults", field: domain.FieldDefaults, kind: countCategory, counts: rs.Defaults},
		{name: "avgBankBalance", field: domain.FieldAvgBankBalance, kind: rangeCategory, ranges: rs.AvgBankBalance},
		{name: "estimatedMonthlyIncome", field: domain.FieldEstimatedIncome, kind: rangeCategory, ranges: rs.EstimatedMonthlyIncome},
		{name: "spendingToIncomeRatio", field: domain.FieldSpendingRatio, kind: countCategory, counts: rs.SpendingToIncomeRatio},
	}
}

// MaxAttainableScore sums the best award of every configured category.
func MaxAttainableScore(rs *domain.ScoringRuleSet) float64 {
	total := 0.0
	for _, c := range scoringCategories(rs) {
		if !c.empty() {
			total += c.maxPoints()
		}
	}
	return total
}

// Score awards at most one rule per category and normalizes the total
// against the best attainable total. Categories with no rules add nothing
// and produce a warning.
func Score(p *domain.ApplicantProfile, rs *domain.ScoringRuleSet, policy domain.DecisionPolicy) (domain.ScoreResult, []domain.Warning, error) {
	if missing := p.Missing(ScoringFields...); len(missing) > 0 {
		return domain.ScoreResult{}, nil, domain.MissingFieldError(missing...)
	}

	var (
		raw      float64
		maxScore float64
		warnings []domain.Warning
	)
	for _, c := range scoringCategories(rs) {
		if c.empty() {
			warnings = append(warnings, domain.Warning{
				Stage:   domain.StageScoring,
				Message: fmt.Sprintf("scoring category %s has no rules", c.name),
			})
			continue
		}
		maxScore += c.maxPoints()

		v, _ := p.Lookup(c.field)
		points, _ := c.award(numeric(v), policy)
		raw += points
	}

	if maxScore <= 0 {
		return domain.ScoreResult{}, warnings, domain.NewConfigError(domain.CodeInvalidConfiguration,
			"scoring rules have no positive attainable score (max %.2f)", maxScore)
	}

	normalized := raw / maxScore * 100
	normalized = math.Max(-100, math.Min(100, normalized))

	return domain.ScoreResult{
		RawScore:        raw,
		NormalizedScore: round2(normalized),
	}, warnings, nil
}

func numeric(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
