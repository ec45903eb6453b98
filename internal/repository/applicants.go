package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const applicantColumns = `id, national_id, full_name, email, account_opened_at, profile, created_at, updated_at`

// SaveApplicant inserts or replaces an applicant record.
func (r *SQLRepository) SaveApplicant(ctx context.Context, a *domain.Applicant) error {
	if a == nil || a.ID == "" || a.NationalID == "" {
		return fmt.Errorf("%w: applicant id and national id are required", ErrInvalidInput)
	}

	profile, err := json.Marshal(a.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	var opened sql.NullTime
	if a.AccountOpenedAt != nil {
		opened = sql.NullTime{Time: a.AccountOpenedAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO applicants (` + applicantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			national_id = excluded.national_id,
			full_name = excluded.full_name,
			email = excluded.email,
			account_opened_at = excluded.account_opened_at,
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.NationalID, a.FullName, nullString(a.Email), opened,
		string(profile), a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: national id %s is already registered", ErrConflict, a.NationalID)
	}
	return err
}

// GetApplicant retrieves an applicant by id.
func (r *SQLRepository) GetApplicant(ctx context.Context, id string) (*domain.Applicant, error) {
	query := `SELECT ` + applicantColumns + ` FROM applicants WHERE id = ?`
	return scanApplicant(r.db.QueryRowContext(ctx, r.rebind(query), id))
}

// FindApplicant resolves an applicant by id, national id or e-mail, in
// that order of preference. An e-mail shared by several applicants
// resolves to the oldest.
func (r *SQLRepository) FindApplicant(ctx context.Context, key string) (*domain.Applicant, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: applicant key is required", ErrInvalidInput)
	}
	email := strings.ToLower(key)

	query := `
		SELECT ` + applicantColumns + `
		FROM applicants
		WHERE id = ? OR national_id = ? OR email = ?
		ORDER BY CASE WHEN id = ? THEN 0 WHEN national_id = ? THEN 1 ELSE 2 END, created_at, id
		LIMIT 1
	`
	return scanApplicant(r.db.QueryRowContext(ctx, r.rebind(query), key, key, email, key, key))
}

// ListApplicants returns applicants, newest first.
func (r *SQLRepository) ListApplicants(ctx context.Context, limit, offset int) ([]*domain.Applicant, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + applicantColumns + `
		FROM applicants
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applicants := []*domain.Applicant{}
	for rows.Next() {
		a, err := scanApplicant(rows)
		if err != nil {
			return nil, err
		}
		applicants = append(applicants, a)
	}
	return applicants, rows.Err()
}

// DeleteApplicant removes an applicant and their account activity.
// Evaluations are kept as an audit trail.
func (r *SQLRepository) DeleteApplicant(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM transactions WHERE applicant_id = ?`), id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM applicants WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplicant(row rowScanner) (*domain.Applicant, error) {
	var (
		a       domain.Applicant
		email   sql.NullString
		opened  sql.NullTime
		profile string
	)

	err := row.Scan(
		&a.ID, &a.NationalID, &a.FullName, &email, &opened,
		&profile, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Email = email.String
	if opened.Valid {
		t := opened.Time.UTC()
		a.AccountOpenedAt = &t
	}
	if err := json.Unmarshal([]byte(profile), &a.Profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile for %s: %w", a.ID, err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	return &a, nil
}
