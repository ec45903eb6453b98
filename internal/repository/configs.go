package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveConfig stores payload as the next version of the aggregate.
func (r *SQLRepository) SaveConfig(ctx context.Context, kind domain.ConfigKind, payload json.RawMessage) (*domain.ConfigRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown configuration kind %q", ErrInvalidInput, kind)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		r.rebind(`SELECT COALESCE(MAX(version), 0) FROM config_records WHERE kind = ?`), string(kind),
	).Scan(&current)
	if err != nil {
		return nil, err
	}

	rec := &domain.ConfigRecord{
		Kind:      kind,
		Version:   int(current) + 1,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		r.rebind(`INSERT INTO config_records (kind, version, payload, created_at) VALUES (?, ?, ?, ?)`),
		string(kind), rec.Version, string(payload), rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: concurrent write to %s", ErrConflict, kind)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetConfig returns the latest version of the aggregate.
func (r *SQLRepository) GetConfig(ctx context.Context, kind domain.ConfigKind) (*domain.ConfigRecord, error) {
	query := `
		SELECT kind, version, payload, created_at
		FROM config_records
		WHERE kind = ?
		ORDER BY version DESC
		LIMIT 1
	`

	rec, err := scanConfig(r.db.QueryRowContext(ctx, r.rebind(query), string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListConfigVersions returns every stored version, newest first.
func (r *SQLRepository) ListConfigVersions(ctx context.Context, kind domain.ConfigKind) ([]*domain.ConfigRecord, error) {
	query := `
		SELECT kind, version, payload, created_at
		FROM config_records
		WHERE kind = ?
		ORDER BY version DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ConfigRecord
	for rows.Next() {
		rec, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanConfig(row rowScanner) (*domain.ConfigRecord, error) {
	var (
		rec     domain.ConfigRecord
		kind    string
		payload string
	)
	if err := row.Scan(&kind, &rec.Version, &payload, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Kind = domain.ConfigKind(kind)
	rec.Payload = json.RawMessage(payload)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
