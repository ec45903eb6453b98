package domain

import (
	"time"
)

// KnockoutResult is the outcome of the knockout stage.
type KnockoutResult struct {
	Passed  bool     `json:"passed"`
	Details []string `json:"details"`
}

// ScoreResult is the outcome of the scoring stage.
type ScoreResult struct {
	RawScore        float64 `json:"rawScore"`
	NormalizedScore float64 `json:"normalizedScore"`
}

// DBRDetails carries the computed debt burden ratio.
type DBRDetails struct {
	CalculatedDBR float64 `json:"calculatedDBR"`
}

// DBRResult is the outcome of the DBR stage.
type DBRResult struct {
	Passed  bool       `json:"passed"`
	Details DBRDetails `json:"details"`
}

// FraudFlag is raised by a violated fraud heuristic.
type FraudFlag struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Observed    float64 `json:"observed"`
	Threshold   float64 `json:"threshold"`
}

// LoanOffer is the amount range offered to the applicant.
type LoanOffer struct {
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
}

// InsightsResult holds the insight messages whose triggers matched.
type InsightsResult struct {
	PositiveInsights []string `json:"positiveInsights"`
	NegativeInsights []string `json:"negativeInsights"`
	AlertInsights    []string `json:"alertInsights"`
}

// Outcome names the terminal state of an evaluation.
type Outcome string

const (
	OutcomeRejected  Outcome = "REJECTED"
	OutcomeCompleted Outcome = "COMPLETED"
)

// Decision constants exposed to API clients.
const (
	DecisionAccept = "ACCEPT"
	DecisionReject = "REJECT"
)

// EvaluationStats summarizes every stored evaluation.
type EvaluationStats struct {
	Total      int64 `json:"total"`
	Accepted   int64 `json:"accepted"`
	Rejected   int64 `json:"rejected"`
	Applicants int64 `json:"applicants"`

	// ApprovalRate is the accepted share in percent, two decimals.
	ApprovalRate float64 `json:"approvalRate"`
}

// Stage names, used for warnings, spans and metrics.
const (
	StageKnockout = "knockout"
	StageScoring  = "scoring"
	StageRating   = "rating"
	StageDBR      = "dbr"
	StageFraud    = "fraud"
	StageOffer    = "offer"
	StageInsights = "insights"
)

// Result is the sum of the two terminal evaluation states: *Rejected or
// *Completed.
type Result interface {
	Outcome() Outcome
	Report() *Report
	isResult()
}

// Rejected is produced when a hard eligibility check fails. No score,
// rating or offer is computed.
type Rejected struct {
	Knockout KnockoutResult

	// RejectedBy is the stage that rejected the applicant.
	RejectedBy string

	// DBR is set when the blocking DBR policy caused the rejection.
	DBR *DBRResult
}

// Completed holds every stage output of an evaluation that passed knockout.
type Completed struct {
	Knockout   KnockoutResult
	Score      ScoreResult
	RiskRating Rating
	DBR        DBRResult
	FraudFlags []FraudFlag
	LoanOffer  LoanOffer
	Insights   InsightsResult
}

func (*Rejected) Outcome() Outcome  { return OutcomeRejected }
func (*Completed) Outcome() Outcome { return OutcomeCompleted }
func (*Rejected) isResult()         {}
func (*Completed) isResult()        {}

// Report is the wire form of a Result. Fields that do not apply to the
// outcome are omitted.
type Report struct {
	Decision       string          `json:"decision"`
	Outcome        Outcome         `json:"outcome"`
	RejectedBy     string          `json:"rejectedBy,omitempty"`
	KnockoutResult KnockoutResult  `json:"knockoutResult"`
	ScoreResult    *ScoreResult    `json:"scoreResult,omitempty"`
	RiskRating     Rating          `json:"riskRating,omitempty"`
	DBRResult      *DBRResult      `json:"dbrResult,omitempty"`
	FraudFlags     []FraudFlag     `json:"fraudFlags,omitempty"`
	LoanOffer      *LoanOffer      `json:"loanOffer,omitempty"`
	InsightsResult *InsightsResult `json:"insightsResult,omitempty"`
}

// Report converts the rejection to its wire form.
func (r *Rejected) Report() *Report {
	return &Report{
		Decision:       DecisionReject,
		Outcome:        OutcomeRejected,
		RejectedBy:     r.RejectedBy,
		KnockoutResult: r.Knockout,
		DBRResult:      r.DBR,
	}
}

// Report converts the completed evaluation to its wire form.
func (c *Completed) Report() *Report {
	score := c.Score
	dbr := c.DBR
	offer := c.LoanOffer
	insights := c.Insights
	flags := c.FraudFlags
	if flags == nil {
		flags = []FraudFlag{}
	}
	return &Report{
		Decision:       DecisionAccept,
		Outcome:        OutcomeCompleted,
		KnockoutResult: c.Knockout,
		ScoreResult:    &score,
		RiskRating:     c.RiskRating,
		DBRResult:      &dbr,
		FraudFlags:     flags,
		LoanOffer:      &offer,
		InsightsResult: &insights,
	}
}

// Evaluation is the persisted record of one engine run.
type Evaluation struct {
	ID          string    `json:"id"`
	ApplicantID string    `json:"applicantId"`
	Decision    string    `json:"decision"`
	Outcome     Outcome   `json:"outcome"`
	Timestamp   time.Time `json:"timestamp"`

	Report   *Report            `json:"report"`
	Warnings []Warning          `json:"warnings,omitempty"`
	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string             `json:"traceId,omitempty"`
	SnapshotMs     int64              `json:"snapshotMs"`
	EngineMs       int64              `json:"engineMs"`
	TotalMs        int64              `json:"totalMs"`
	ConfigVersions map[ConfigKind]int `json:"configVersions,omitempty"`
	EngineVersion  string             `json:"engineVersion"`
}

// EvaluationResponse is the API response for an evaluation.
type EvaluationResponse struct {
	EvaluationID string `json:"evaluationId"`
	ApplicantID  string `json:"applicantId"`
	*Report
	Warnings []Warning          `json:"warnings,omitempty"`
	Metadata EvaluationMetadata `json:"metadata"`
}

// ToResponse converts an Evaluation to an API response.
func (e *Evaluation) ToResponse() *EvaluationResponse {
	return &EvaluationResponse{
		EvaluationID: e.ID,
		ApplicantID:  e.ApplicantID,
		Report:       e.Report,
		Warnings:     e.Warnings,
		Metadata:     e.Metadata,
	}
}

// EvaluateRequest is the API payload for evaluating an applicant.
type EvaluateRequest struct {
	// ApplicantKey is an applicant id, e-mail address or national id.
	ApplicantKey string `json:"applicantKey"`
}
