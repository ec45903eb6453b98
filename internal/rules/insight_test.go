package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestGenerateInsights(t *testing.T) {
	p := goodProfile()
	p.DBRObligations = floatPtr(55)
	p.Age = nil

	m := &domain.InsightMessages{
		PositiveInsights: []domain.InsightRule{
			{Message: "Strong credit history", Trigger: domain.Trigger{Field: "simahScore", Operator: domain.OpGreaterEqual, Value: 700.0}},
			{Message: "No defaults on record", Trigger: domain.Trigger{Field: "defaults", Operator: domain.OpEqual, Value: 0.0}},
		},
		NegativeInsights: []domain.InsightRule{
			{Message: "High existing debt burden", Trigger: domain.Trigger{Field: "dbrObligations", Operator: domain.OpGreater, Value: 50.0}},
			{Message: "Many active loans", Trigger: domain.Trigger{Field: "activeLoans", Operator: domain.OpGreater, Value: 3.0}},
		},
		AlertInsights: []domain.InsightRule{
			{Message: "Age not on file", Trigger: domain.Trigger{Field: "age", Operator: domain.OpNotExists}},
		},
	}

	res, warnings := GenerateInsights(p, m)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"Strong credit history", "No defaults on record"}, res.PositiveInsights)
	assert.Equal(t, []string{"High existing debt burden"}, res.NegativeInsights)
	assert.Equal(t, []string{"Age not on file"}, res.AlertInsights)
}

func TestGenerateInsights_SkipsMalformedRules(t *testing.T) {
	m := &domain.InsightMessages{
		NegativeInsights: []domain.InsightRule{
			{Message: "Unknown field", Trigger: domain.Trigger{Field: "creditLimit", Operator: domain.OpGreater, Value: 1.0}},
			{Message: "Bad operator", Trigger: domain.Trigger{Field: "age", Operator: "~"}},
			{Message: "No value", Trigger: domain.Trigger{Field: "age", Operator: domain.OpGreater}},
			{Message: "", Trigger: domain.Trigger{Field: "age", Operator: domain.OpExists}},
			{Message: "Garbled", Trigger: domain.ParseTrigger("dbrObligations")},
			{Message: "Low balance", Trigger: domain.Trigger{Field: "avgBankBalance", Operator: domain.OpLess, Value: 50000.0}},
		},
	}

	res, warnings := GenerateInsights(goodProfile(), m)
	assert.Len(t, warnings, 5)
	assert.Equal(t, []string{"Low balance"}, res.NegativeInsights)
	assert.Empty(t, res.PositiveInsights)
	assert.NotNil(t, res.PositiveInsights)
}

func TestTrigger_DecodesCompactForm(t *testing.T) {
	var m domain.InsightMessages
	payload := `{
		"negativeInsights": [
			{"message": "High existing debt burden", "trigger": "dbrObligations > 50"},
			{"message": "Age missing", "trigger": "age not_exists"}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(payload), &m))

	require.Len(t, m.NegativeInsights, 2)
	assert.Equal(t, domain.Trigger{Field: "dbrObligations", Operator: domain.OpGreater, Value: "50"}, m.NegativeInsights[0].Trigger)
	assert.Equal(t, domain.OpNotExists, m.NegativeInsights[1].Trigger.Operator)

	p := goodProfile()
	p.DBRObligations = floatPtr(55)
	res, warnings := GenerateInsights(p, &m)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"High existing debt burden"}, res.NegativeInsights)
}
