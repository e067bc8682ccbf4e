package store

import "fmt"

// schema returns the DDL statements for the dialect, one statement per entry.
func schema(d Dialect) []string {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == Postgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
    id                TEXT PRIMARY KEY,
    enrollment_id     TEXT NOT NULL DEFAULT '',
    name              TEXT NOT NULL,
    display_name      TEXT NOT NULL DEFAULT '',
    type              TEXT NOT NULL,
    subtype           TEXT NOT NULL DEFAULT '',
    institution_name  TEXT NOT NULL DEFAULT '',
    last_four         TEXT NOT NULL DEFAULT '',
    currency          TEXT NOT NULL DEFAULT 'USD',
    status            TEXT NOT NULL DEFAULT 'open',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS balances (
    id                %s,
    account_id        TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    available         TEXT NOT NULL,
    ledger            TEXT NOT NULL,
    timestamp         TEXT NOT NULL
)`, serial),
		`CREATE TABLE IF NOT EXISTS transactions (
    id                TEXT PRIMARY KEY,
    account_id        TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    amount            TEXT NOT NULL,
    date              TEXT NOT NULL,
    description       TEXT NOT NULL,
    category          TEXT NOT NULL DEFAULT '',
    counterparty      TEXT NOT NULL DEFAULT '',
    type              TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'posted',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS scheduled_payments (
    id                %s,
    name              TEXT NOT NULL,
    amount            TEXT NOT NULL,
    account_id        TEXT REFERENCES accounts(id) ON DELETE SET NULL,
    day_of_month      INTEGER NOT NULL,
    month             INTEGER NOT NULL DEFAULT 0,
    due_date          TEXT,
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    is_recurring      BOOLEAN NOT NULL DEFAULT TRUE,
    frequency         TEXT NOT NULL DEFAULT 'monthly',
    email             TEXT NOT NULL DEFAULT '',
    category          TEXT NOT NULL DEFAULT '',
    notes             TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL
)`, serial),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_enrollments (
    id                %s,
    enrollment_id     TEXT NOT NULL UNIQUE,
    user_id           TEXT NOT NULL,
    access_token      TEXT NOT NULL,
    institution_name  TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    last_synced       TEXT,
    is_active         BOOLEAN NOT NULL DEFAULT TRUE
)`, serial),
		`CREATE TABLE IF NOT EXISTS sync_runs (
    id                    TEXT PRIMARY KEY,
    enrollment_id         TEXT NOT NULL,
    started_at            TEXT NOT NULL,
    finished_at           TEXT,
    status                TEXT NOT NULL,
    accounts              INTEGER NOT NULL DEFAULT 0,
    balances              INTEGER NOT NULL DEFAULT 0,
    transactions_added    INTEGER NOT NULL DEFAULT 0,
    transactions_updated  INTEGER NOT NULL DEFAULT 0,
    transactions_removed  INTEGER NOT NULL DEFAULT 0,
    error                 TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_enrollment ON accounts(enrollment_id)`,
		`CREATE INDEX IF NOT EXISTS idx_balances_account_ts ON balances(account_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions(account_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_user ON user_enrollments(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at)`,
	}
}
