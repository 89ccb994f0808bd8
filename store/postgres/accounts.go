package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lockplane/authcore"
)

const uniqueViolation = "23505"

// AccountStore is a PostgreSQL-backed [authcore.AccountStore].
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an account store on pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

func wrapStoreErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", authcore.ErrStoreUnavailable, op, err)
}

const accountColumns = `id, email, password_hash, role, provider, provider_id, email_verified,
	failed_logins, last_failed_login, locked_until, created_at`

func scanAccount(row pgx.Row) (*authcore.Account, error) {
	var a authcore.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.Provider, &a.ProviderID, &a.EmailVerified,
		&a.FailedLogins, &a.LastFailedLogin, &a.LockedUntil, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrNotFound
		}
		return nil, wrapStoreErr("scan account", err)
	}
	return &a, nil
}

func (s *AccountStore) Create(ctx context.Context, account authcore.Account) error {
	// The stored email is the canonical lowercase form.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, provider, provider_id, email_verified, created_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8)
	`, account.ID, account.Email, account.PasswordHash, account.Role,
		account.Provider, account.ProviderID, account.EmailVerified, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return authcore.ErrDuplicateAccount
		}
		return wrapStoreErr("insert account", err)
	}
	return nil
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email))
}

func (s *AccountStore) GetByProvider(ctx context.Context, provider, providerID string) (*authcore.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE provider = $1 AND provider_id = $2`, provider, providerID))
}

func (s *AccountStore) LinkProvider(ctx context.Context, id, provider, providerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET provider = $2, provider_id = $3 WHERE id = $1`, id, provider, providerID)
	if err != nil {
		return wrapStoreErr("link provider", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return wrapStoreErr("update password hash", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (s *AccountStore) MarkEmailVerified(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET email_verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return wrapStoreErr("mark verified", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// RecordLoginFailure runs as one UPDATE so racing failures serialize on the
// row: the counter stops advancing once the lock is set, and every caller at
// or past the threshold sees the same lock expiry.
func (s *AccountStore) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	lockUntil := now.Add(lockFor)
	var lockedUntil *time.Time
	err := s.pool.QueryRow(ctx, `
		UPDATE accounts SET
			failed_logins = CASE
				WHEN locked_until IS NOT NULL AND locked_until > $2 THEN failed_logins
				ELSE failed_logins + 1
			END,
			last_failed_login = CASE
				WHEN locked_until IS NOT NULL AND locked_until > $2 THEN last_failed_login
				ELSE $2
			END,
			locked_until = CASE
				WHEN locked_until IS NOT NULL AND locked_until > $2 THEN locked_until
				WHEN failed_logins + 1 >= $3 THEN $4
				ELSE locked_until
			END
		WHERE id = $1
		RETURNING locked_until
	`, id, now, maxAttempts, lockUntil).Scan(&lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrNotFound
		}
		return nil, wrapStoreErr("record login failure", err)
	}
	if lockedUntil == nil || !now.Before(*lockedUntil) {
		return nil, nil
	}
	return lockedUntil, nil
}

func (s *AccountStore) ResetLoginFailures(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_logins = 0, last_failed_login = NULL, locked_until = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return wrapStoreErr("reset login failures", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrNotFound
	}
	return nil
}
