package rules

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rate maps a normalized score to the band whose inclusive bounds contain
// it. A fractional score that lands between two integer-bounded bands is
// rated by its floor, so 89.5 rates as 89. Overlapping bands are rejected
// on every run, whichever band the score falls in.
func Rate(score float64, t *domain.RiskRatingThresholds) (domain.Rating, error) {
	if err := checkBandOverlap(t); err != nil {
		return "", err
	}
	if r, ok := findBand(score, t); ok {
		return r, nil
	}
	if floor := math.Floor(score); floor != score {
		if r, ok := findBand(floor, t); ok {
			return r, nil
		}
	}
	return "", domain.UnratableScoreError(score)
}

func findBand(score float64, t *domain.RiskRatingThresholds) (domain.Rating, bool) {
	for _, rr := range t.RatingRanges {
		if rr.MinScore <= score && score <= rr.MaxScore {
			return rr.Rating, true
		}
	}
	return "", false
}

func checkBandOverlap(t *domain.RiskRatingThresholds) error {
	for i := 0; i < len(t.RatingRanges); i++ {
		for j := i + 1; j < len(t.RatingRanges); j++ {
			a, b := t.RatingRanges[i], t.RatingRanges[j]
			if a.MinScore <= b.MaxScore && b.MinScore <= a.MaxScore {
				return domain.NewConfigError(domain.CodeOverlappingThresholds,
					"%s: rating %s [%.2f, %.2f] overlaps rating %s [%.2f, %.2f]",
					domain.ConfigRiskRatings, a.Rating, a.MinScore, a.MaxScore, b.Rating, b.MinScore, b.MaxScore)
			}
		}
	}
	return nil
}
