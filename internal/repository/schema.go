package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaApplicants = `
CREATE TABLE IF NOT EXISTS applicants (
    id TEXT PRIMARY KEY,
    national_id TEXT NOT NULL UNIQUE,
    full_name TEXT NOT NULL,
    email TEXT,
    account_opened_at TIMESTAMP,
    profile TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applicants_email ON applicants(email);
CREATE INDEX IF NOT EXISTS idx_applicants_created ON applicants(created_at);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    applicant_id TEXT NOT NULL,
    direction TEXT NOT NULL,
    amount REAL NOT NULL,
    counterparty TEXT,
    related INTEGER NOT NULL DEFAULT 0,
    balance_after REAL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_applicant ON transactions(applicant_id, timestamp);
`

// schemaConfigRecords keeps every saved version of each configuration
// aggregate; the highest version is the current one.
const schemaConfigRecords = `
CREATE TABLE IF NOT EXISTS config_records (
    kind TEXT NOT NULL,
    version INTEGER NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (kind, version)
);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    applicant_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    outcome TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    report TEXT NOT NULL,
    warnings TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_applicant ON evaluations(applicant_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_evaluations_decision ON evaluations(decision);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaApplicants,
		schemaTransactions,
		schemaConfigRecords,
		schemaEvaluations,
	}
}
