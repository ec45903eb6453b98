package rules

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// CheckDBR compares the applicant's debt obligations, already expressed as
// a percentage of income, with the configured ceiling. Equal passes.
func CheckDBR(p *domain.ApplicantProfile, s *domain.DBRSettings) (domain.DBRResult, error) {
	if p.DBRObligations == nil {
		return domain.DBRResult{}, domain.MissingFieldError(domain.FieldDBRObligations)
	}
	dbr := *p.DBRObligations
	return domain.DBRResult{
		Passed:  dbr <= s.MaximumDBRPercentage,
		Details: domain.DBRDetails{CalculatedDBR: dbr},
	}, nil
}
