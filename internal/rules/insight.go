package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/condition"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// GenerateInsights evaluates every insight rule and keeps the messages of
// those that match, in configured order. A malformed rule (empty message,
// unparseable trigger, unknown field or operator, type mismatch) is
// skipped with a warning.
func GenerateInsights(p *domain.ApplicantProfile, m *domain.InsightMessages) (domain.InsightsResult, []domain.Warning) {
	var warnings []domain.Warning
	eval := func(group string, rules []domain.InsightRule) []string {
		out := []string{}
		for i, r := range rules {
			ok, err := matchInsight(p, r)
			if err != nil {
				warnings = append(warnings, domain.Warning{
					Stage:   domain.StageInsights,
					Message: fmt.Sprintf("%s[%d] skipped: %v", group, i, err),
				})
				continue
			}
			if ok {
				out = append(out, r.Message)
			}
		}
		return out
	}

	return domain.InsightsResult{
		PositiveInsights: eval("positiveInsights", m.PositiveInsights),
		NegativeInsights: eval("negativeInsights", m.NegativeInsights),
		AlertInsights:    eval("alertInsights", m.AlertInsights),
	}, warnings
}

func matchInsight(p *domain.ApplicantProfile, r domain.InsightRule) (bool, error) {
	if r.Message == "" {
		return false, fmt.Errorf("empty message")
	}
	t := r.Trigger
	if t.Raw != "" || t.Field == "" {
		return false, fmt.Errorf("malformed trigger %q", t.Raw)
	}
	if !t.Operator.Unary() && t.Value == nil {
		return false, fmt.Errorf("trigger on %s has no comparison value", t.Field)
	}
	return condition.Evaluate(p, t.Field, t.Operator, t.Value)
}
