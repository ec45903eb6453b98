package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// problems collects validation failures for one aggregate.
type problems struct {
	kind domain.ConfigKind
	list []string
}

func (p *problems) addf(format string, args ...any) {
	p.list = append(p.list, fmt.Sprintf(format, args...))
}

func (p *problems) err() error {
	if len(p.list) == 0 {
		return nil
	}
	return domain.NewConfigError(domain.CodeInvalidConfiguration, "%s: %s", p.kind, strings.Join(p.list, "; "))
}

func bad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// ValidateKnockout checks that every threshold is a non-negative number and
// the spending ratio lies in [0, 1].
func ValidateKnockout(r *domain.KnockoutRuleSet) error {
	p := &problems{kind: domain.ConfigKnockout}
	for name, v := range map[string]float64{
		"minimumSimahScore":            r.MinimumSimahScore,
		"maximumActiveDefaults":        r.MaximumActiveDefaults,
		"minimumAverageBalance":        r.MinimumAverageBalance,
		"minimumMonthlyIncome":         r.MinimumMonthlyIncome,
		"maximumSpendingToIncomeRatio": r.MaximumSpendingToIncomeRatio,
		"minimumAge":                   r.MinimumAge,
	} {
		if bad(v) || v < 0 {
			p.addf("%s must be a non-negative number", name)
		}
	}
	if r.MaximumSpendingToIncomeRatio > 1 {
		p.addf("maximumSpendingToIncomeRatio must be between 0 and 1")
	}
	sort.Strings(p.list)
	return p.err()
}

// ValidateScoring checks each rule table and, under RangeStrict, rejects
// overlapping range rules.
func ValidateScoring(rs *domain.ScoringRuleSet, policy domain.DecisionPolicy) error {
	p := &problems{kind: domain.ConfigScoring}
	for _, c := range scoringCategories(rs) {
		for i, r := range c.ranges {
			if bad(r.Min) || bad(r.Points) || (r.Max != nil && bad(*r.Max)) {
				p.addf("%s[%d] has a non-finite value", c.name, i)
			}
			if r.Max != nil && *r.Max < r.Min {
				p.addf("%s[%d] max %.2f is below min %.2f", c.name, i, *r.Max, r.Min)
			}
		}
		for i, r := range c.counts {
			if bad(r.Count) || bad(r.Points) {
				p.addf("%s[%d] has a non-finite value", c.name, i)
			}
			if r.Count < 0 {
				p.addf("%s[%d] count must not be negative", c.name, i)
			}
		}
		if policy.Range == domain.RangeStrict {
			for i := 0; i < len(c.ranges); i++ {
				for j := i + 1; j < len(c.ranges); j++ {
					if rangesOverlap(c.ranges[i], c.ranges[j]) {
						p.addf("%s[%d] overlaps %s[%d]", c.name, i, c.name, j)
					}
				}
			}
		}
	}
	if err := p.err(); err != nil {
		return err
	}
	if maxScore := MaxAttainableScore(rs); maxScore <= 0 {
		return domain.NewConfigError(domain.CodeInvalidConfiguration,
			"%s: maximum attainable score must be positive, got %.2f", domain.ConfigScoring, maxScore)
	}
	return nil
}

func rangesOverlap(a, b domain.RangeRule) bool {
	aMax, bMax := math.Inf(1), math.Inf(1)
	if a.Max != nil {
		aMax = *a.Max
	}
	if b.Max != nil {
		bMax = *b.Max
	}
	return a.Min <= bMax && b.Min <= aMax
}

// ValidateRiskRatings checks the rating bands: known letters, each used
// once, min <= max, no overlaps, and every integer score 0-100 covered.
func ValidateRiskRatings(t *domain.RiskRatingThresholds) error {
	p := &problems{kind: domain.ConfigRiskRatings}
	if len(t.RatingRanges) == 0 {
		p.addf("at least one rating range is required")
		return p.err()
	}

	seen := map[domain.Rating]bool{}
	for i, rr := range t.RatingRanges {
		if !rr.Rating.Valid() {
			p.addf("ratingRanges[%d] has unknown rating %q", i, rr.Rating)
		}
		if seen[rr.Rating] {
			p.addf("rating %s is configured more than once", rr.Rating)
		}
		seen[rr.Rating] = true
		if bad(rr.MinScore) || bad(rr.MaxScore) {
			p.addf("rating %s has a non-finite bound", rr.Rating)
		}
		if rr.MinScore > rr.MaxScore {
			p.addf("rating %s minScore %.2f is above maxScore %.2f", rr.Rating, rr.MinScore, rr.MaxScore)
		}
	}
	if err := p.err(); err != nil {
		return err
	}

	if err := checkBandOverlap(t); err != nil {
		return err
	}

	var gaps []string
	for s := 0; s <= 100; s++ {
		if _, ok := findBand(float64(s), t); !ok {
			gaps = append(gaps, fmt.Sprint(s))
		}
	}
	if len(gaps) > 0 {
		p.addf("scores %s are not covered by any rating", strings.Join(gaps, ","))
	}
	return p.err()
}

// ValidateLoanOffers checks each offer range: known rating, configured
// once, non-negative amounts and minimum <= maximum.
func ValidateLoanOffers(o *domain.LoanOfferRanges) error {
	p := &problems{kind: domain.ConfigLoanOffers}
	seen := map[domain.Rating]bool{}
	for i, r := range o.RatingRanges {
		if !r.Rating.Valid() {
			p.addf("ratingRanges[%d] has unknown rating %q", i, r.Rating)
		}
		if seen[r.Rating] {
			p.addf("rating %s is configured more than once", r.Rating)
		}
		seen[r.Rating] = true
		if bad(r.MinimumAmount) || bad(r.MaximumAmount) || r.MinimumAmount < 0 {
			p.addf("rating %s amounts must be non-negative numbers", r.Rating)
		}
		if r.MinimumAmount > r.MaximumAmount {
			p.addf("rating %s minimumAmount is above maximumAmount", r.Rating)
		}
	}
	return p.err()
}

// ValidateDBR checks the DBR ceiling.
func ValidateDBR(s *domain.DBRSettings) error {
	p := &problems{kind: domain.ConfigDBR}
	if bad(s.MaximumDBRPercentage) || s.MaximumDBRPercentage < 0 {
		p.addf("maximumDBRPercentage must be a non-negative number")
	}
	return p.err()
}

// ValidateFraud checks the fraud thresholds. The detector also tolerates
// malformed thresholds at run time, so this is only enforced on writes.
func ValidateFraud(r *domain.FraudDetectionRuleSet) error {
	p := &problems{kind: domain.ConfigFraud}
	for _, h := range Heuristics() {
		if v := h.Threshold(r); bad(v) || v < 0 {
			p.addf("threshold for %s must be a non-negative number", h.Code)
		}
	}
	return p.err()
}

// ValidateInsights checks every trigger against the applicant schema. Like
// ValidateFraud it is enforced on writes only.
func ValidateInsights(m *domain.InsightMessages) error {
	p := &problems{kind: domain.ConfigInsights}
	var empty domain.ApplicantProfile
	check := func(group string, rules []domain.InsightRule) {
		for i, r := range rules {
			if r.Message == "" {
				p.addf("%s[%d] has an empty message", group, i)
			}
			t := r.Trigger
			if t.Raw != "" || t.Field == "" {
				p.addf("%s[%d] has a malformed trigger", group, i)
				continue
			}
			if _, known := empty.Lookup(t.Field); !known {
				p.addf("%s[%d] references unknown field %q", group, i, t.Field)
			}
			if !t.Operator.Valid() {
				p.addf("%s[%d] uses unsupported operator %q", group, i, t.Operator)
			} else if !t.Operator.Unary() && t.Value == nil {
				p.addf("%s[%d] has no comparison value", group, i)
			}
		}
	}
	check("positiveInsights", m.PositiveInsights)
	check("negativeInsights", m.NegativeInsights)
	check("alertInsights", m.AlertInsights)
	return p.err()
}

// ValidateSnapshot validates the aggregates an evaluation cannot run
// without. Fraud and insight rules are advisory and checked per rule at
// run time instead.
func ValidateSnapshot(s *domain.ConfigSnapshot, policy domain.DecisionPolicy) error {
	for _, err := range []error{
		ValidateKnockout(&s.Knockout),
		ValidateScoring(&s.Scoring, policy),
		ValidateRiskRatings(&s.RiskRatings),
		ValidateLoanOffers(&s.LoanOffers),
		ValidateDBR(&s.DBR),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
