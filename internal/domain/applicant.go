package domain

import (
	"strings"
	"time"
)

// Applicant attribute names. These form the schema the condition evaluator
// resolves insight triggers against.
const (
	FieldSimahScore      = "simahScore"
	FieldActiveLoans     = "activeLoans"
	FieldDefaults        = "defaults"
	FieldAvgBankBalance  = "avgBankBalance"
	FieldEstimatedIncome = "estimatedIncome"
	FieldSpendingRatio   = "spendingRatio"
	FieldAge             = "age"
	FieldDBRObligations  = "dbrObligations"
)

// ApplicantFields lists every attribute in schema order.
var ApplicantFields = []string{
	FieldSimahScore,
	FieldActiveLoans,
	FieldDefaults,
	FieldAvgBankBalance,
	FieldEstimatedIncome,
	FieldSpendingRatio,
	FieldAge,
	FieldDBRObligations,
}

// Applicant is a stored applicant record.
type Applicant struct {
	ID              string     `json:"id"`
	NationalID      string     `json:"nationalId"`
	FullName        string     `json:"fullName"`
	Email           string     `json:"email,omitempty"`
	AccountOpenedAt *time.Time `json:"accountOpenedAt,omitempty"`

	Profile ApplicantProfile `json:"profile"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ApplicantProfile is the read-only financial snapshot evaluated by the
// engine. Nil means the attribute is absent from the record.
type ApplicantProfile struct {
	SimahScore      *int     `json:"simahScore"`
	ActiveLoans     *int     `json:"activeLoans"`
	Defaults        *int     `json:"defaults"`
	AvgBankBalance  *float64 `json:"avgBankBalance"`
	EstimatedIncome *float64 `json:"estimatedIncome"`
	SpendingRatio   *float64 `json:"spendingRatio"`
	Age             *int     `json:"age"`
	DBRObligations  *float64 `json:"dbrObligations"`
}

// Lookup returns the value of a schema attribute. known is false for names
// outside the schema; value is nil for a known but absent attribute.
func (p *ApplicantProfile) Lookup(field string) (value any, known bool) {
	switch field {
	case FieldSimahScore:
		return intValue(p.SimahScore), true
	case FieldActiveLoans:
		return intValue(p.ActiveLoans), true
	case FieldDefaults:
		return intValue(p.Defaults), true
	case FieldAvgBankBalance:
		return floatValue(p.AvgBankBalance), true
	case FieldEstimatedIncome:
		return floatValue(p.EstimatedIncome), true
	case FieldSpendingRatio:
		return floatValue(p.SpendingRatio), true
	case FieldAge:
		return intValue(p.Age), true
	case FieldDBRObligations:
		return floatValue(p.DBRObligations), true
	}
	return nil, false
}

// Missing returns the names of the given fields that are absent.
func (p *ApplicantProfile) Missing(fields ...string) []string {
	var missing []string
	for _, f := range fields {
		if v, known := p.Lookup(f); known && v == nil {
			missing = append(missing, f)
		}
	}
	return missing
}

func intValue(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatValue(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// ApplicantRequest is the API payload for creating or replacing an applicant.
type ApplicantRequest struct {
	NationalID      string           `json:"nationalId"`
	FullName        string           `json:"fullName"`
	Email           string           `json:"email,omitempty"`
	AccountOpenedAt *time.Time       `json:"accountOpenedAt,omitempty"`
	Profile         ApplicantProfile `json:"profile"`
}

// Validate checks identity fields and value ranges.
func (r *ApplicantRequest) Validate() error {
	if strings.TrimSpace(r.NationalID) == "" {
		return NewInputError(CodeInvalidInput, "nationalId is required")
	}
	if strings.TrimSpace(r.FullName) == "" {
		return NewInputError(CodeInvalidInput, "fullName is required")
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return NewInputError(CodeInvalidInput, "email is invalid")
	}
	p := r.Profile
	if p.SpendingRatio != nil && (*p.SpendingRatio < 0 || *p.SpendingRatio > 1) {
		return NewInputError(CodeInvalidInput, "spendingRatio must be between 0 and 1")
	}
	for name, v := range map[string]*int{
		FieldSimahScore:  p.SimahScore,
		FieldActiveLoans: p.ActiveLoans,
		FieldDefaults:    p.Defaults,
		FieldAge:         p.Age,
	} {
		if v != nil && *v < 0 {
			return NewInputError(CodeInvalidInput, "%s must not be negative", name)
		}
	}
	return nil
}

// ToApplicant converts the request into an Applicant record.
func (r *ApplicantRequest) ToApplicant() *Applicant {
	now := time.Now().UTC()
	return &Applicant{
		NationalID:      strings.TrimSpace(r.NationalID),
		FullName:        strings.TrimSpace(r.FullName),
		Email:           strings.ToLower(strings.TrimSpace(r.Email)),
		AccountOpenedAt: r.AccountOpenedAt,
		Profile:         r.Profile,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
