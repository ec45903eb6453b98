// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Applicant operations
	SaveApplicant(ctx context.Context, a *Applicant) error
	GetApplicant(ctx context.Context, id string) (*Applicant, error)
	// FindApplicant resolves an applicant by id, e-mail or national id.
	FindApplicant(ctx context.Context, key string) (*Applicant, error)
	ListApplicants(ctx context.Context, limit, offset int) ([]*Applicant, error)
	DeleteApplicant(ctx context.Context, id string) error

	// Account activity operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransactionsByApplicant(ctx context.Context, applicantID string, since time.Time) ([]*Transaction, error)
	GetFirstTransactionTime(ctx context.Context, applicantID string) (*time.Time, error)
	GetLatestBalance(ctx context.Context, applicantID string, before time.Time) (*float64, error)

	// Configuration operations. Every save creates a new version.
	SaveConfig(ctx context.Context, kind ConfigKind, payload json.RawMessage) (*ConfigRecord, error)
	GetConfig(ctx context.Context, kind ConfigKind) (*ConfigRecord, error)
	ListConfigVersions(ctx context.Context, kind ConfigKind) ([]*ConfigRecord, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, eval *Evaluation) error
	GetEvaluation(ctx context.Context, evalID string) (*Evaluation, error)
	ListEvaluationsByApplicant(ctx context.Context, applicantID string, limit int) ([]*Evaluation, error)
	EvaluationStats(ctx context.Context) (*EvaluationStats, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
