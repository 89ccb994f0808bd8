package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lockplane/authcore"
)

// CodeStore is a PostgreSQL-backed [authcore.CodeStore].
type CodeStore struct {
	pool *pgxpool.Pool
}

// NewCodeStore creates a one-time-code store on pool.
func NewCodeStore(pool *pgxpool.Pool) *CodeStore {
	return &CodeStore{pool: pool}
}

func (s *CodeStore) Insert(ctx context.Context, code authcore.OneTimeCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO oauth_codes (code, account_id, access_token, refresh_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, code.Code, code.AccountID, code.AccessToken, code.RefreshToken, code.ExpiresAt, code.CreatedAt)
	if err != nil {
		return wrapStoreErr("insert code", err)
	}
	return nil
}

// Redeem deletes and returns the code in one statement, so exactly one of
// any set of concurrent redeemers gets the row back.
func (s *CodeStore) Redeem(ctx context.Context, code string, now time.Time) (*authcore.OneTimeCode, error) {
	var c authcore.OneTimeCode
	err := s.pool.QueryRow(ctx, `
		DELETE FROM oauth_codes WHERE code = $1 AND expires_at > $2
		RETURNING code, account_id, access_token, refresh_token, expires_at, created_at
	`, code, now).Scan(&c.Code, &c.AccountID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrNotFound
		}
		return nil, wrapStoreErr("redeem code", err)
	}
	return &c, nil
}

func (s *CodeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM oauth_codes WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, wrapStoreErr("sweep expired codes", err)
	}
	return int(tag.RowsAffected()), nil
}
