package configstore

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	numberDef = `{"type": "number"}`

	rangeRulesDef = `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["min", "points"],
			"properties": {
				"min": {"type": "number"},
				"max": {"type": ["number", "null"]},
				"points": {"type": "number"}
			}
		}
	}`

	countRulesDef = `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["count", "points"],
			"properties": {
				"count": {"type": "number"},
				"points": {"type": "number"}
			}
		}
	}`

	ratingDef = `{"type": "string", "enum": ["A", "B", "C", "D", "E"]}`

	insightRulesDef = `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["message", "trigger"],
			"properties": {
				"message": {"type": "string", "minLength": 1},
				"trigger": {
					"oneOf": [
						{"type": "string", "minLength": 1},
						{
							"type": "object",
							"required": ["field", "operator"],
							"properties": {
								"field": {"type": "string"},
								"operator": {"type": "string"}
							}
						}
					]
				}
			}
		}
	}`
)

func object(required []string, props map[string]string) string {
	var b strings.Builder
	b.WriteString(`{"type": "object", "required": [`)
	for i, r := range required {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", r)
	}
	b.WriteString(`], "properties": {`)
	i := 0
	for name, def := range props {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %s", name, def)
		i++
	}
	b.WriteString("}}")
	return b.String()
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func allNumbers(names ...string) map[string]string {
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[n] = numberDef
	}
	return m
}

var (
	knockoutProps = allNumbers(
		"minimumSimahScore", "maximumActiveDefaults", "minimumAverageBalance",
		"minimumMonthlyIncome", "maximumSpendingToIncomeRatio", "minimumAge",
	)
	scoringProps = map[string]string{
		"simahScore":             rangeRulesDef,
		"activeLoans":            countRulesDef,
		"defaults":               countRulesDef,
		"avgBankBalance":         rangeRulesDef,
		"estimatedMonthlyIncome": rangeRulesDef,
		"spendingToIncomeRatio":  countRulesDef,
	}
	fraudProps = allNumbers(
		"maxUnrelatedIncomingTransactions", "maxSuddenDepositMultiple", "minimumAccountAge",
		"maxAllowedNoExpensePeriod", "highBalanceWithoutActivityThreshold",
	)
	insightProps = map[string]string{
		"positiveInsights": insightRulesDef,
		"negativeInsights": insightRulesDef,
		"alertInsights":    insightRulesDef,
	}
)

// schemaSources holds the JSON Schema each aggregate body must satisfy.
var schemaSources = map[domain.ConfigKind]string{
	domain.ConfigKnockout: object(keys(knockoutProps), knockoutProps),
	domain.ConfigScoring:  object(nil, scoringProps),
	domain.ConfigRiskRatings: object([]string{"ratingRanges"}, map[string]string{
		"ratingRanges": `{
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["rating", "minScore", "maxScore"],
				"properties": {
					"rating": ` + ratingDef + `,
					"minScore": {"type": "number"},
					"maxScore": {"type": "number"}
				}
			}
		}`,
	}),
	domain.ConfigLoanOffers: object([]string{"ratingRanges"}, map[string]string{
		"ratingRanges": `{
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["rating", "minimumAmount", "maximumAmount"],
				"properties": {
					"rating": ` + ratingDef + `,
					"minimumAmount": {"type": "number", "minimum": 0},
					"maximumAmount": {"type": "number", "minimum": 0}
				}
			}
		}`,
	}),
	domain.ConfigDBR: object([]string{"maximumDBRPercentage"}, map[string]string{
		"maximumDBRPercentage": `{"type": "number", "minimum": 0}`,
	}),
	domain.ConfigFraud:    object(keys(fraudProps), fraudProps),
	domain.ConfigInsights: object(nil, insightProps),
}

// schemas compiles every aggregate schema.
func schemas() (map[domain.ConfigKind]*gojsonschema.Schema, error) {
	out := make(map[domain.ConfigKind]*gojsonschema.Schema, len(schemaSources))
	for kind, src := range schemaSources {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", kind, err)
		}
		out[kind] = s
	}
	return out, nil
}

// checkShape validates a payload against the schema for its kind.
func checkShape(s *gojsonschema.Schema, kind domain.ConfigKind, payload []byte) error {
	res, err := s.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return domain.NewInputError(domain.CodeInvalidInput, "%s: malformed JSON: %v", kind, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return domain.NewInputError(domain.CodeInvalidInput, "%s: %s", kind, strings.Join(msgs, "; "))
}
