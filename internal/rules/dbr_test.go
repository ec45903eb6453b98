package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestCheckDBR(t *testing.T) {
	settings := &domain.DBRSettings{MaximumDBRPercentage: 65}

	tests := []struct {
		name        string
		obligations float64
		passed      bool
	}{
		{"below ceiling", 45, true},
		{"at ceiling", 65, true},
		{"above ceiling", 65.01, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := goodProfile()
			p.DBRObligations = floatPtr(tt.obligations)
			res, err := CheckDBR(p, settings)
			require.NoError(t, err)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, tt.obligations, res.Details.CalculatedDBR)
		})
	}
}

func TestCheckDBR_MissingObligations(t *testing.T) {
	p := goodProfile()
	p.DBRObligations = nil

	_, err := CheckDBR(p, &domain.DBRSettings{MaximumDBRPercentage: 65})
	assert.True(t, errors.Is(err, domain.ErrMissingField))
}
