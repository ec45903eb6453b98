package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveEvaluation stores an evaluation result.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}

	report, err := json.Marshal(eval.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	warnings, _ := json.Marshal(eval.Warnings)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (
			id, applicant_id, decision, outcome, timestamp,
			report, warnings, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.ApplicantID, eval.Decision, string(eval.Outcome), eval.Timestamp.UTC(),
		string(report), string(warnings), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.Evaluation, error) {
	query := `
		SELECT id, applicant_id, decision, outcome, timestamp,
			   report, warnings, metadata
		FROM evaluations
		WHERE id = ?
	`
	return scanEvaluation(r.db.QueryRowContext(ctx, r.rebind(query), evalID))
}

// ListEvaluationsByApplicant returns the applicant's evaluations, newest
// first.
func (r *SQLRepository) ListEvaluationsByApplicant(ctx context.Context, applicantID string, limit int) ([]*domain.Evaluation, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, applicant_id, decision, outcome, timestamp,
			   report, warnings, metadata
		FROM evaluations
		WHERE applicant_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), applicantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evals := []*domain.Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

// EvaluationStats counts stored evaluations by decision.
func (r *SQLRepository) EvaluationStats(ctx context.Context) (*domain.EvaluationStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT decision, COUNT(*) FROM evaluations
		GROUP BY decision
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.EvaluationStats{}
	for rows.Next() {
		var (
			decision string
			n        int64
		)
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		switch decision {
		case domain.DecisionAccept:
			stats.Accepted += n
		case domain.DecisionReject:
			stats.Rejected += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT applicant_id) FROM evaluations`).Scan(&stats.Applicants)
	if err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.ApprovalRate = math.Round(float64(stats.Accepted)/float64(stats.Total)*10000) / 100
	}
	return stats, nil
}

func scanEvaluation(row rowScanner) (*domain.Evaluation, error) {
	var (
		eval     domain.Evaluation
		outcome  string
		report   string
		warnings sql.NullString
		metadata string
	)

	err := row.Scan(
		&eval.ID, &eval.ApplicantID, &eval.Decision, &outcome, &eval.Timestamp,
		&report, &warnings, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	eval.Outcome = domain.Outcome(outcome)
	eval.Timestamp = eval.Timestamp.UTC()
	if err := json.Unmarshal([]byte(report), &eval.Report); err != nil {
		return nil, fmt.Errorf("failed to parse report for %s: %w", eval.ID, err)
	}
	if warnings.Valid && warnings.String != "" {
		json.Unmarshal([]byte(warnings.String), &eval.Warnings)
	}
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}
