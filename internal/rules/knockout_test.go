package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestCheckKnockout_Passes(t *testing.T) {
	res, violated, err := CheckKnockout(goodProfile(), standardKnockout())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Details)
	assert.Empty(t, violated)
}

func TestCheckKnockout_SimahBelowMinimum(t *testing.T) {
	p := goodProfile()
	p.SimahScore = intPtr(500)

	res, violated, err := CheckKnockout(p, standardKnockout())
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{"SIMAH score below minimum."}, res.Details)
	assert.Equal(t, []string{"minimumSimahScore"}, violated)
}

func TestCheckKnockout_ReportsEveryViolation(t *testing.T) {
	p := &domain.ApplicantProfile{
		SimahScore:      intPtr(400),
		ActiveLoans:     intPtr(0),
		Defaults:        intPtr(2),
		AvgBankBalance:  floatPtr(100),
		EstimatedIncome: floatPtr(1000),
		SpendingRatio:   floatPtr(0.95),
		Age:             intPtr(19),
		DBRObligations:  floatPtr(10),
	}

	res, violated, err := CheckKnockout(p, standardKnockout())
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{
		MsgSimahBelowMinimum,
		MsgDefaultsAtMaximum,
		MsgBalanceBelowMinimum,
		MsgIncomeBelowMinimum,
		MsgSpendingAboveMaximum,
		MsgAgeBelowMinimum,
	}, res.Details)
	assert.Len(t, violated, 6)
}

func TestCheckKnockout_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *domain.ApplicantProfile)
		passed bool
	}{
		{"simah equal to minimum passes", func(p *domain.ApplicantProfile) { p.SimahScore = intPtr(550) }, true},
		{"defaults one below maximum passes", func(p *domain.ApplicantProfile) { p.Defaults = intPtr(1) }, true},
		{"defaults equal to maximum fails", func(p *domain.ApplicantProfile) { p.Defaults = intPtr(2) }, false},
		{"balance equal to minimum passes", func(p *domain.ApplicantProfile) { p.AvgBankBalance = floatPtr(5000) }, true},
		{"income equal to minimum passes", func(p *domain.ApplicantProfile) { p.EstimatedIncome = floatPtr(3000) }, true},
		{"ratio equal to maximum passes", func(p *domain.ApplicantProfile) { p.SpendingRatio = floatPtr(0.85) }, true},
		{"ratio above maximum fails", func(p *domain.ApplicantProfile) { p.SpendingRatio = floatPtr(0.86) }, false},
		{"age equal to minimum passes", func(p *domain.ApplicantProfile) { p.Age = intPtr(21) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := goodProfile()
			tt.mutate(p)
			res, _, err := CheckKnockout(p, standardKnockout())
			require.NoError(t, err)
			assert.Equal(t, tt.passed, res.Passed)
		})
	}
}

func TestCheckKnockout_MissingField(t *testing.T) {
	p := goodProfile()
	p.Age = nil
	p.SimahScore = nil

	_, _, err := CheckKnockout(p, standardKnockout())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingField))
	assert.Equal(t, domain.ClassInput, domain.ClassOf(err))
}
