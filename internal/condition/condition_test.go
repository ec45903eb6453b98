package condition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// mapAttrs lets tests exercise non-numeric stored values.
type mapAttrs map[string]any

func (m mapAttrs) Lookup(field string) (any, bool) {
	v, ok := m[field]
	return v, ok
}

func TestEvaluate_Operators(t *testing.T) {
	profile := &domain.ApplicantProfile{
		SimahScore:     intPtr(700),
		DBRObligations: floatPtr(55),
		SpendingRatio:  floatPtr(0.4),
	}

	tests := []struct {
		name  string
		field string
		op    domain.Operator
		value any
		want  bool
	}{
		{"greater true", "dbrObligations", domain.OpGreater, 50.0, true},
		{"greater false", "dbrObligations", domain.OpGreater, 55.0, false},
		{"less", "spendingRatio", domain.OpLess, 0.5, true},
		{"greater equal boundary", "simahScore", domain.OpGreaterEqual, 700.0, true},
		{"less equal boundary", "simahScore", domain.OpLessEqual, 699.0, false},
		{"numeric string value", "dbrObligations", domain.OpGreater, "50", true},
		{"equal numeric across types", "simahScore", domain.OpEqual, 700.0, true},
		{"equal numeric string", "simahScore", domain.OpEqual, "700", true},
		{"not equal", "simahScore", domain.OpNotEqual, 650.0, true},
		{"exists present", "simahScore", domain.OpExists, nil, true},
		{"exists absent", "age", domain.OpExists, nil, false},
		{"not_exists absent", "age", domain.OpNotExists, nil, true},
		{"not_exists ignores value", "simahScore", domain.OpNotExists, "whatever", false},
		{"equal against absent", "age", domain.OpEqual, 30.0, false},
		{"not equal against absent", "age", domain.OpNotEqual, 30.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(profile, tt.field, tt.op, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_UnknownField(t *testing.T) {
	profile := &domain.ApplicantProfile{SimahScore: intPtr(700)}

	_, err := Evaluate(profile, "creditLimit", domain.OpGreater, 10.0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownField))

	// A known but absent field is not an unknown field.
	ok, err := Evaluate(profile, "age", domain.OpNotExists, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_TypeMismatch(t *testing.T) {
	attrs := mapAttrs{"employer": "ACME", "simahScore": 600}

	_, err := Evaluate(attrs, "employer", domain.OpGreater, 10.0)
	assert.True(t, errors.Is(err, domain.ErrTypeMismatch))

	_, err = Evaluate(attrs, "simahScore", domain.OpLess, "high")
	assert.True(t, errors.Is(err, domain.ErrTypeMismatch))

	// Ordering against an absent value is a mismatch too.
	_, err = Evaluate(mapAttrs{"age": nil}, "age", domain.OpGreater, 18.0)
	assert.True(t, errors.Is(err, domain.ErrTypeMismatch))
}

func TestEvaluate_StringEquality(t *testing.T) {
	attrs := mapAttrs{"employer": "ACME"}

	ok, err := Evaluate(attrs, "employer", domain.OpEqual, "ACME")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(attrs, "employer", domain.OpNotEqual, "Globex")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_InvalidOperator(t *testing.T) {
	_, err := Evaluate(mapAttrs{"age": 30}, "age", domain.Operator("~="), 30)
	assert.True(t, errors.Is(err, domain.ErrInvalidOperator))
}

func TestEvaluate_Deterministic(t *testing.T) {
	profile := &domain.ApplicantProfile{DBRObligations: floatPtr(55)}
	first, err := Evaluate(profile, "dbrObligations", domain.OpGreater, 50.0)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := Evaluate(profile, "dbrObligations", domain.OpGreater, 50.0)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}
