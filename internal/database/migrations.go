package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Schema migrations run in order at startup. Each statement is idempotent so
// restarts are safe without a migration-version table.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		display_name  TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user',
		telegram_id   TEXT NOT NULL DEFAULT '',
		last_login    TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS accounts (
		id                      TEXT PRIMARY KEY,
		user_id                 TEXT NOT NULL UNIQUE REFERENCES users(id),
		currency                TEXT NOT NULL DEFAULT 'usd',
		available               BIGINT NOT NULL DEFAULT 0 CHECK (available >= 0),
		reserved                BIGINT NOT NULL DEFAULT 0 CHECK (reserved >= 0),
		subscription_expires_at TIMESTAMPTZ,
		version                 INTEGER NOT NULL DEFAULT 1,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id               TEXT PRIMARY KEY,
		account_id       TEXT NOT NULL REFERENCES accounts(id),
		kind             TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending',
		amount           BIGINT NOT NULL,
		currency         TEXT NOT NULL,
		content_id       TEXT NOT NULL DEFAULT '',
		related_entry_id TEXT REFERENCES ledger_entries(id),
		external_ref     TEXT NOT NULL DEFAULT '',
		idempotency_key  TEXT UNIQUE,
		reason           TEXT NOT NULL DEFAULT '',
		actor_ref        TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		committed_at     TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_status ON ledger_entries (status) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_related ON ledger_entries (related_entry_id) WHERE related_entry_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS entitlements (
		account_id      TEXT NOT NULL REFERENCES accounts(id),
		content_id      TEXT NOT NULL,
		source_entry_id TEXT NOT NULL REFERENCES ledger_entries(id),
		granted_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_at      TIMESTAMPTZ,
		PRIMARY KEY (account_id, content_id)
	)`,

	`CREATE TABLE IF NOT EXISTS deposit_codes (
		code_hash  TEXT PRIMARY KEY,
		entry_id   TEXT NOT NULL REFERENCES ledger_entries(id),
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount     BIGINT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate applies the embedded schema.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	log.Printf("[DB] %d migrations applied", len(migrations))
	return nil
}
