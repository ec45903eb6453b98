package domain

import (
	"time"
)

// Direction is the side of an account movement.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Transaction is a single movement on an applicant's bank account. The
// activity metrics used by the fraud heuristics are derived from these.
type Transaction struct {
	ID          string    `json:"id"`
	ApplicantID string    `json:"applicantId"`
	Direction   Direction `json:"direction"`
	Amount      float64   `json:"amount"`

	// Counterparty is the other side of the movement (employer, merchant...).
	Counterparty string `json:"counterparty,omitempty"`

	// Related marks incoming funds with an explained source such as salary
	// or a transfer between the applicant's own accounts.
	Related bool `json:"related"`

	// BalanceAfter is the account balance once the movement settled.
	BalanceAfter *float64 `json:"balanceAfter,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// TransactionRequest is the API payload for recording account activity.
type TransactionRequest struct {
	Direction    Direction  `json:"direction"`
	Amount       float64    `json:"amount"`
	Counterparty string     `json:"counterparty,omitempty"`
	Related      bool       `json:"related"`
	BalanceAfter *float64   `json:"balanceAfter,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

// Validate checks the request for obviously malformed values.
func (r *TransactionRequest) Validate() error {
	if r.Direction != DirectionCredit && r.Direction != DirectionDebit {
		return NewInputError(CodeInvalidInput, "direction must be credit or debit")
	}
	if r.Amount <= 0 {
		return NewInputError(CodeInvalidInput, "amount must be positive")
	}
	return nil
}

// ToTransaction converts a request to a Transaction for the given applicant.
func (r *TransactionRequest) ToTransaction(applicantID string) *Transaction {
	now := time.Now().UTC()
	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	return &Transaction{
		ApplicantID:  applicantID,
		Direction:    r.Direction,
		Amount:       r.Amount,
		Counterparty: r.Counterparty,
		Related:      r.Related,
		BalanceAfter: r.BalanceAfter,
		Timestamp:    ts,
		CreatedAt:    now,
	}
}

// ActivityMetrics summarizes recent account behaviour for fraud heuristics.
type ActivityMetrics struct {
	UnrelatedIncomingTransactions int     `json:"unrelatedIncomingTransactions"`
	SuddenDepositMultiple         float64 `json:"suddenDepositMultiple"`
	AccountAgeDays                int     `json:"accountAgeDays"`
	NoExpensePeriodDays           int     `json:"noExpensePeriodDays"`
	CurrentBalance                float64 `json:"currentBalance"`
	OutgoingTransactions          int     `json:"outgoingTransactions"`
}
