package rules

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Offer looks up the loan amount range for a rating. A rating without a
// configured range is a configuration error, never a zero offer.
//
// With OfferInterpolated the minimum is kept and the maximum is scaled by
// the applicant's position inside the rating's score band, so the top of
// the band receives the full configured maximum.
func Offer(rating domain.Rating, score float64, ranges *domain.LoanOfferRanges, thresholds *domain.RiskRatingThresholds, policy domain.OfferPolicy) (domain.LoanOffer, error) {
	var (
		or    domain.OfferRange
		found bool
	)
	for _, r := range ranges.RatingRanges {
		if r.Rating == rating {
			or, found = r, true
			break
		}
	}
	if !found {
		return domain.LoanOffer{}, domain.NoOfferConfiguredError(rating)
	}

	minimum := decimal.NewFromFloat(or.MinimumAmount)
	maximum := decimal.NewFromFloat(or.MaximumAmount)

	if policy == domain.OfferInterpolated && thresholds != nil {
		if band, ok := thresholds.Band(rating); ok && band.MaxScore > band.MinScore {
			pos := decimal.NewFromFloat(score - band.MinScore).
				Div(decimal.NewFromFloat(band.MaxScore - band.MinScore))
			pos = decimal.Max(decimal.Zero, decimal.Min(decimal.NewFromInt(1), pos))
			maximum = minimum.Add(maximum.Sub(minimum).Mul(pos))
		}
	}

	return domain.LoanOffer{
		Minimum: minimum.Round(2).InexactFloat64(),
		Maximum: maximum.Round(2).InexactFloat64(),
	}, nil
}
