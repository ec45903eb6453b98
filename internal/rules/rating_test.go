package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestRate(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.Rating
	}{
		{100, domain.RatingA},
		{90, domain.RatingA},
		{89, domain.RatingB},
		{81.67, domain.RatingB},
		{89.5, domain.RatingB},
		{70, domain.RatingB},
		{69.99, domain.RatingC},
		{50, domain.RatingC},
		{30, domain.RatingD},
		{29.4, domain.RatingE},
		{0, domain.RatingE},
	}

	for _, tt := range tests {
		got, err := Rate(tt.score, standardThresholds())
		require.NoError(t, err, "score %v", tt.score)
		assert.Equal(t, tt.want, got, "score %v", tt.score)
	}
}

func TestRate_Unratable(t *testing.T) {
	thresholds := &domain.RiskRatingThresholds{RatingRanges: []domain.RatingRange{
		{Rating: domain.RatingA, MinScore: 80, MaxScore: 100},
		{Rating: domain.RatingB, MinScore: 50, MaxScore: 70},
	}}

	_, err := Rate(75, thresholds)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnratableScore))

	_, err = Rate(-12, standardThresholds())
	assert.True(t, errors.Is(err, domain.ErrUnratableScore))
}

func TestRate_OverlappingBands(t *testing.T) {
	thresholds := &domain.RiskRatingThresholds{RatingRanges: []domain.RatingRange{
		{Rating: domain.RatingA, MinScore: 60, MaxScore: 100},
		{Rating: domain.RatingB, MinScore: 0, MaxScore: 95},
	}}

	// both inside and outside the shared range
	for _, score := range []float64{100, 75, 10} {
		_, err := Rate(score, thresholds)
		require.Error(t, err, "score %v", score)
		assert.True(t, errors.Is(err, domain.ErrOverlappingThresholds), "score %v", score)
		assert.Equal(t, domain.ClassConfiguration, domain.ClassOf(err))
	}
}

func TestRate_Monotonic(t *testing.T) {
	order := map[domain.Rating]int{"A": 5, "B": 4, "C": 3, "D": 2, "E": 1}
	prev := 0
	for s := 0.0; s <= 100; s += 0.5 {
		r, err := Rate(s, standardThresholds())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, order[r], prev, "score %v", s)
		prev = order[r]
	}
}
