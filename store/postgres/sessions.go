package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lockplane/authcore"
)

// SessionStore is a PostgreSQL-backed [authcore.SessionStore].
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a session store on pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const sessionColumns = `id, account_id, refresh_token_hash, ip, user_agent, expires_at, revoked_at, created_at`

func scanSession(row pgx.Row) (*authcore.Session, error) {
	var s authcore.Session
	err := row.Scan(
		&s.ID, &s.AccountID, &s.RefreshTokenHash, &s.IP, &s.UserAgent,
		&s.ExpiresAt, &s.RevokedAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrNotFound
		}
		return nil, wrapStoreErr("scan session", err)
	}
	return &s, nil
}

func (s *SessionStore) Create(ctx context.Context, session authcore.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, account_id, refresh_token_hash, ip, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.AccountID, session.RefreshTokenHash,
		session.IP, session.UserAgent, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return wrapStoreErr("insert session", err)
	}
	return nil
}

func (s *SessionStore) FindValid(ctx context.Context, refreshTokenHash string, now time.Time) (*authcore.Session, error) {
	return scanSession(s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
	`, refreshTokenHash, now))
}

// Claim revokes the session and returns its pre-revocation state in one
// statement. Concurrent claims on the same hash race on the row lock; the
// loser's WHERE no longer matches and it gets ErrNotFound.
func (s *SessionStore) Claim(ctx context.Context, refreshTokenHash string, now time.Time) (*authcore.Session, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, `
		UPDATE sessions SET revoked_at = $2
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		RETURNING id, account_id, refresh_token_hash, ip, user_agent, expires_at, NULL::timestamptz, created_at
	`, refreshTokenHash, now))
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionStore) Revoke(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL
	`, sessionID, now)
	if err != nil {
		return false, wrapStoreErr("revoke session", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SessionStore) RevokeAll(ctx context.Context, accountID string, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL
	`, accountID, now)
	if err != nil {
		return 0, wrapStoreErr("revoke all sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *SessionStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions WHERE revoked_at IS NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, wrapStoreErr("sweep expired sessions", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *SessionStore) SweepRevokedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions WHERE revoked_at IS NOT NULL AND revoked_at < $1
	`, cutoff)
	if err != nil {
		return 0, wrapStoreErr("sweep revoked sessions", err)
	}
	return int(tag.RowsAffected()), nil
}
