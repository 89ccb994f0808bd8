package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	provider_id TEXT NOT NULL DEFAULT '',
	email_verified BOOLEAN NOT NULL DEFAULT FALSE,
	failed_logins INT NOT NULL DEFAULT 0,
	last_failed_login TIMESTAMPTZ,
	locked_until TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_lower_key ON accounts (LOWER(email));
CREATE INDEX IF NOT EXISTS accounts_provider_idx ON accounts (provider, provider_id) WHERE provider <> '';

CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts (id) ON DELETE CASCADE,
	refresh_token_hash TEXT NOT NULL UNIQUE,
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS sessions_account_idx ON sessions (account_id) WHERE revoked_at IS NULL;

CREATE TABLE IF NOT EXISTS oauth_codes (
	code TEXT PRIMARY KEY,
	account_id UUID NOT NULL,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS challenges (
	kind TEXT NOT NULL,
	token TEXT NOT NULL,
	account_id UUID NOT NULL,
	used BOOLEAN NOT NULL DEFAULT FALSE,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, token)
);

CREATE INDEX IF NOT EXISTS challenges_account_idx ON challenges (kind, account_id);
`

// Migrate creates the schema. Idempotent; safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
