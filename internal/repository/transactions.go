package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveTransaction stores an account movement.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" || tx.ApplicantID == "" {
		return fmt.Errorf("%w: transaction id and applicant id are required", ErrInvalidInput)
	}

	related := 0
	if tx.Related {
		related = 1
	}
	var balance sql.NullFloat64
	if tx.BalanceAfter != nil {
		balance = sql.NullFloat64{Float64: *tx.BalanceAfter, Valid: true}
	}

	query := `
		INSERT INTO transactions (
			id, applicant_id, direction, amount, counterparty,
			related, balance_after, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.ApplicantID, string(tx.Direction), tx.Amount, nullString(tx.Counterparty),
		related, balance, tx.Timestamp.UTC(), tx.CreatedAt.UTC(),
	)
	return err
}

// GetTransactionsByApplicant retrieves an applicant's movements since the
// given time, oldest first.
func (r *SQLRepository) GetTransactionsByApplicant(ctx context.Context, applicantID string, since time.Time) ([]*domain.Transaction, error) {
	query := `
		SELECT id, applicant_id, direction, amount, counterparty,
			   related, balance_after, timestamp, created_at
		FROM transactions
		WHERE applicant_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), applicantID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var (
			tx           domain.Transaction
			direction    string
			counterparty sql.NullString
			related      int
			balance      sql.NullFloat64
		)

		if err := rows.Scan(
			&tx.ID, &tx.ApplicantID, &direction, &tx.Amount, &counterparty,
			&related, &balance, &tx.Timestamp, &tx.CreatedAt,
		); err != nil {
			return nil, err
		}

		tx.Direction = domain.Direction(direction)
		tx.Counterparty = counterparty.String
		tx.Related = related == 1
		if balance.Valid {
			b := balance.Float64
			tx.BalanceAfter = &b
		}
		tx.Timestamp = tx.Timestamp.UTC()
		tx.CreatedAt = tx.CreatedAt.UTC()
		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// GetFirstTransactionTime returns the time of the applicant's oldest
// movement, or nil when there is none.
func (r *SQLRepository) GetFirstTransactionTime(ctx context.Context, applicantID string) (*time.Time, error) {
	query := `
		SELECT timestamp FROM transactions
		WHERE applicant_id = ?
		ORDER BY timestamp ASC
		LIMIT 1
	`

	var ts time.Time
	err := r.db.QueryRowContext(ctx, r.rebind(query), applicantID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

// GetLatestBalance returns the newest recorded balance strictly before the
// given time, or nil when no earlier movement carries one.
func (r *SQLRepository) GetLatestBalance(ctx context.Context, applicantID string, before time.Time) (*float64, error) {
	query := `
		SELECT balance_after FROM transactions
		WHERE applicant_id = ? AND timestamp < ? AND balance_after IS NOT NULL
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var balance float64
	err := r.db.QueryRowContext(ctx, r.rebind(query), applicantID, before.UTC()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}
