package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lockplane/authcore"
)

// ChallengeStore is a PostgreSQL-backed [authcore.ChallengeStore].
type ChallengeStore struct {
	pool *pgxpool.Pool
}

// NewChallengeStore creates a challenge store on pool.
func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

func (s *ChallengeStore) Insert(ctx context.Context, challenge authcore.Challenge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO challenges (kind, token, account_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, token) DO NOTHING
	`, challenge.Kind, challenge.Token, challenge.AccountID, challenge.ExpiresAt, challenge.CreatedAt)
	if err != nil {
		return wrapStoreErr("insert challenge", err)
	}
	return nil
}

// Consume marks the challenge used and reports whether it already was. The
// inner SELECT takes the row lock, so concurrent consumers serialize and
// all but the first see alreadyUsed.
func (s *ChallengeStore) Consume(ctx context.Context, kind authcore.ChallengeKind, tokenValue string, now time.Time) (string, bool, error) {
	var accountID string
	var wasUsed bool
	err := s.pool.QueryRow(ctx, `
		UPDATE challenges AS c SET used = TRUE
		FROM (
			SELECT kind, token, used AS was_used FROM challenges
			WHERE kind = $1 AND token = $2
			FOR UPDATE
		) AS old
		WHERE c.kind = old.kind AND c.token = old.token AND c.expires_at > $3
		RETURNING c.account_id, old.was_used
	`, kind, tokenValue, now).Scan(&accountID, &wasUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, authcore.ErrNotFound
		}
		return "", false, wrapStoreErr("consume challenge", err)
	}
	return accountID, wasUsed, nil
}

func (s *ChallengeStore) DeleteByAccount(ctx context.Context, kind authcore.ChallengeKind, accountID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM challenges WHERE kind = $1 AND account_id = $2
	`, kind, accountID)
	if err != nil {
		return wrapStoreErr("delete challenges", err)
	}
	return nil
}

func (s *ChallengeStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, wrapStoreErr("sweep expired challenges", err)
	}
	return int(tag.RowsAffected()), nil
}
